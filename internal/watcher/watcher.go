package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"wakewatch.dev/watcher/common"
	"wakewatch.dev/watcher/common/logger"
	"wakewatch.dev/watcher/internal/model"
	"wakewatch.dev/watcher/internal/publisher"
	"wakewatch.dev/watcher/internal/tracker"
	"wakewatch.dev/watcher/internal/trainer"
)

type Config struct {
	PollInterval      time.Duration
	DryRun            bool
	ProcessingLabel   string
	DoneLabel         string
	CompletionComment string
	BasePath          string
	TrainWorkdir      string
}

// Watcher drains the tracker's job queue, one job at a time. It holds no
// durable state of its own: job state is recomputed from tracker labels
// every cycle, which makes restart recovery trivial.
type Watcher struct {
	tracker   tracker.Tracker
	publisher publisher.Publisher
	trainer   trainer.Trainer
	cfg       Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(t tracker.Tracker, p publisher.Publisher, tr trainer.Trainer, cfg Config) *Watcher {
	return &Watcher{
		tracker:   t,
		publisher: p,
		trainer:   tr,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run polls until the context is cancelled or Stop is called. Every cycle
// sleeps the full poll interval afterwards, whether it found work,
// processed jobs, or failed outright; search-class tracker queries are
// strictly rate-limited and must never be retried hot.
func (w *Watcher) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "watcher.loop"})

	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "watcher started",
		"poll_interval", w.cfg.PollInterval,
		"dry_run", w.cfg.DryRun)

	for {
		w.PollOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "watcher stopping")
			return nil
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// Stop signals the watcher to stop after the in-flight cycle and waits
// for it.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

// PollOnce runs a single search → extract → process-all cycle. Failures
// never escape: a failed search or a failed job resolves to logging and
// the next poll.
func (w *Watcher) PollOnce(ctx context.Context) {
	pollCyclesTotal.Inc()

	issues, err := w.tracker.SearchOpenJobs(ctx)
	if err != nil {
		pollFailuresTotal.Inc()
		slog.ErrorContext(ctx, "job search failed, waiting for next poll", "error", err)
		return
	}

	candidates := ExtractCandidates(issues, w.cfg.ProcessingLabel, w.cfg.DoneLabel)
	if len(candidates) == 0 {
		slog.DebugContext(ctx, "no candidate jobs", "open_issues", len(issues))
		return
	}

	slog.InfoContext(ctx, "candidates found", "count", len(candidates))

	// Oldest first, strictly sequential. One job's failure must not block
	// the ones behind it.
	for _, c := range candidates {
		outcome := w.processJobSafe(ctx, c)
		jobsTotal.WithLabelValues(string(outcome)).Inc()
	}
}

func (w *Watcher) processJobSafe(ctx context.Context, c Candidate) (outcome model.JobOutcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered while processing job",
				"panic", r,
				"job_iid", c.IID)
			outcome = model.OutcomeExecutionFailed
		}
	}()
	return w.processJob(ctx, c)
}

// processJob drives one job through claim → train → verify → publish →
// finalize. Any failure after the claim leaves the issue open and
// labeled processing: the label filter keeps it from being re-queued, so
// an operator must relabel it. That is deliberate; a failed training run
// needs a human look, not an automatic retry.
func (w *Watcher) processJob(ctx context.Context, c Candidate) model.JobOutcome {
	id, lang := common.Normalize(c.Phrase)
	job := model.Job{
		IID:         c.IID,
		Title:       c.Title,
		Phrase:      c.Phrase,
		CanonicalID: id,
		Lang:        lang,
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		JobIID:      logger.Ptr(job.IID),
		CanonicalID: logger.Ptr(job.CanonicalID),
		Lang:        logger.Ptr(job.Lang),
	})

	if w.cfg.DryRun {
		slog.InfoContext(ctx, "dry run: would claim and train", "phrase", job.Phrase)
		return model.OutcomeSkippedDryRun
	}

	// Claim before any work. If the label write fails the job is
	// untouched and stays eligible for a future cycle.
	if err := w.tracker.AddLabels(ctx, job.IID, w.cfg.ProcessingLabel); err != nil {
		slog.WarnContext(ctx, "claim failed, skipping job", "error", err)
		return model.OutcomeClaimFailed
	}

	slog.InfoContext(ctx, "job claimed", "phrase", job.Phrase)

	spec := trainer.TrainSpec{
		Phrase:      job.Phrase,
		CanonicalID: job.CanonicalID,
		Lang:        job.Lang,
	}
	if err := w.trainer.Train(ctx, spec); err != nil {
		slog.ErrorContext(ctx, "training failed", "error", err)
		w.comment(ctx, job.IID, fmt.Sprintf("Training failed for `%s`: %v", job.CanonicalID, err))
		return model.OutcomeExecutionFailed
	}

	missing, err := trainer.VerifyArtifacts(w.cfg.TrainWorkdir, job.CanonicalID)
	if err != nil {
		slog.ErrorContext(ctx, "artifact check failed", "error", err)
		w.comment(ctx, job.IID, fmt.Sprintf("Training reported success but artifacts could not be verified: %v", err))
		return model.OutcomeArtifactsMissing
	}
	if missing != "" {
		slog.ErrorContext(ctx, "artifact missing after training", "missing", missing)
		w.comment(ctx, job.IID, fmt.Sprintf("Training reported success but `%s` is missing.", missing))
		return model.OutcomeArtifactsMissing
	}

	if outcome := w.publishArtifacts(ctx, job); outcome != model.OutcomeCompleted {
		return outcome
	}

	w.finalize(ctx, job)
	return model.OutcomeCompleted
}

// publishArtifacts uploads the model blob then the manifest. If the model
// upload lands and the manifest upload fails, the model is not rolled
// back; the job is commented and left for an operator. Known
// inconsistency window, accepted.
func (w *Watcher) publishArtifacts(ctx context.Context, job model.Job) model.JobOutcome {
	modelPath, manifestPath := trainer.ArtifactPaths(w.cfg.TrainWorkdir, job.CanonicalID)

	modelBytes, err := os.ReadFile(modelPath)
	if err != nil {
		slog.ErrorContext(ctx, "reading model artifact failed", "error", err)
		w.comment(ctx, job.IID, fmt.Sprintf("Could not read trained model `%s.tflite`: %v", job.CanonicalID, err))
		return model.OutcomeArtifactsMissing
	}

	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		slog.ErrorContext(ctx, "reading manifest artifact failed", "error", err)
		w.comment(ctx, job.IID, fmt.Sprintf("Could not read manifest `%s.json`: %v", job.CanonicalID, err))
		return model.OutcomeArtifactsMissing
	}

	var manifest model.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		slog.ErrorContext(ctx, "manifest is not valid JSON", "error", err)
		w.comment(ctx, job.IID, fmt.Sprintf("Manifest `%s.json` is not valid JSON: %v", job.CanonicalID, err))
		return model.OutcomeArtifactsMissing
	}
	if manifest.Model != job.CanonicalID+".tflite" {
		slog.WarnContext(ctx, "manifest names a different model file",
			"manifest_model", manifest.Model)
	}

	remoteModel := path.Join(w.cfg.BasePath, job.CanonicalID+".tflite")
	message := fmt.Sprintf("Add wake word model %s", job.CanonicalID)
	if err := w.publisher.Publish(ctx, remoteModel, modelBytes, message); err != nil {
		slog.ErrorContext(ctx, "model publish failed", "error", err, "path", remoteModel)
		w.comment(ctx, job.IID, fmt.Sprintf("Uploading `%s.tflite` failed: %v", job.CanonicalID, err))
		return model.OutcomePublishFailed
	}

	remoteManifest := path.Join(w.cfg.BasePath, job.CanonicalID+".json")
	if err := w.publisher.Publish(ctx, remoteManifest, manifestBytes, message); err != nil {
		slog.ErrorContext(ctx, "manifest publish failed, model already uploaded", "error", err, "path", remoteManifest)
		w.comment(ctx, job.IID, fmt.Sprintf("Uploading `%s.json` failed (model blob already uploaded): %v", job.CanonicalID, err))
		return model.OutcomePublishFailed
	}

	slog.InfoContext(ctx, "artifacts published", "model", remoteModel, "manifest", remoteManifest)
	return model.OutcomeCompleted
}

// finalize comments, labels done, and closes, in that order. Each step is
// best-effort; a failed close leaves the issue done-per-label yet open,
// which is reported but not retried this cycle.
func (w *Watcher) finalize(ctx context.Context, job model.Job) {
	w.comment(ctx, job.IID, w.cfg.CompletionComment)

	if err := w.tracker.AddLabels(ctx, job.IID, w.cfg.DoneLabel); err != nil {
		slog.WarnContext(ctx, "adding done label failed", "error", err)
	}

	if err := w.tracker.Close(ctx, job.IID); err != nil {
		slog.WarnContext(ctx, "closing issue failed, job is done per label but still open", "error", err)
		return
	}

	slog.InfoContext(ctx, "job completed")
}

func (w *Watcher) comment(ctx context.Context, iid int64, body string) {
	if err := w.tracker.Comment(ctx, iid, body); err != nil {
		slog.WarnContext(ctx, "posting comment failed", "error", err)
	}
}
