package tracker

import (
	"context"

	"wakewatch.dev/watcher/internal/model"
)

// Tracker is the typed surface over the issue tracker. Implementations
// collapse transport failures and non-2xx responses into a single error;
// callers decide control flow, not status codes.
//
// The processing label doubles as the claim token. Label-add is not
// compare-and-swap on GitLab, so two watcher instances polling the same
// project could both claim a job; the deployment model is single-instance
// and the race is accepted.
type Tracker interface {
	// SearchOpenJobs returns open issues whose title matches the job
	// prefix, oldest first. Search-class API calls are rate-limited
	// server-side; callers must back off a full poll interval on error
	// rather than retry.
	SearchOpenJobs(ctx context.Context) ([]model.Issue, error)

	// AddLabels additively applies labels to an issue. A failed claim
	// means no work may start on the job.
	AddLabels(ctx context.Context, iid int64, labels ...string) error

	// Comment posts a note on an issue. Advisory, not part of the
	// locking protocol.
	Comment(ctx context.Context, iid int64, body string) error

	// Close transitions the issue to closed.
	Close(ctx context.Context, iid int64) error
}
