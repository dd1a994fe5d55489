package model

import "time"

type JobOutcome string

const (
	OutcomeClaimFailed      JobOutcome = "claim_failed"
	OutcomeExecutionFailed  JobOutcome = "execution_failed"
	OutcomeArtifactsMissing JobOutcome = "artifacts_missing"
	OutcomePublishFailed    JobOutcome = "publish_failed"
	OutcomeCompleted        JobOutcome = "completed"
	OutcomeSkippedDryRun    JobOutcome = "skipped_dry_run"
)

// Issue is the raw tracker record as returned by a search. Only the
// fields the extraction filter needs are mapped.
type Issue struct {
	IID       int64
	Title     string
	Labels    []string
	Type      string // "issue", "incident", ... non-issues are filtered out
	State     string
	CreatedAt time.Time
	WebURL    string
}

// Job is one claimed wake-word build task. CanonicalID and Lang are
// derived from the phrase every cycle, never stored remotely; the tracker
// labels are the only durable state.
type Job struct {
	IID         int64
	Title       string
	Phrase      string
	CanonicalID string
	Lang        string
}
