package watcher

import (
	"context"
	"slices"
	"sync"

	"wakewatch.dev/watcher/internal/model"
	"wakewatch.dev/watcher/internal/trainer"
)

// fakeTracker keeps label/comment/close state in memory so a test can run
// several poll cycles against it; SearchOpenJobs reflects labels applied
// by earlier cycles, which is exactly how the real tracker behaves.
type fakeTracker struct {
	mu sync.Mutex

	issues   []model.Issue
	searchFn func() ([]model.Issue, error)

	addLabelsErr error
	commentErr   error
	closeErr     error

	comments map[int64][]string
	closed   []int64
}

func newFakeTracker(issues ...model.Issue) *fakeTracker {
	return &fakeTracker{
		issues:   issues,
		comments: make(map[int64][]string),
	}
}

func (f *fakeTracker) SearchOpenJobs(ctx context.Context) ([]model.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchFn != nil {
		return f.searchFn()
	}
	open := make([]model.Issue, 0, len(f.issues))
	for _, issue := range f.issues {
		if !slices.Contains(f.closed, issue.IID) {
			open = append(open, issue)
		}
	}
	return open, nil
}

func (f *fakeTracker) AddLabels(ctx context.Context, iid int64, labels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addLabelsErr != nil {
		return f.addLabelsErr
	}
	for i := range f.issues {
		if f.issues[i].IID == iid {
			f.issues[i].Labels = append(f.issues[i].Labels, labels...)
		}
	}
	return nil
}

func (f *fakeTracker) Comment(ctx context.Context, iid int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentErr != nil {
		return f.commentErr
	}
	f.comments[iid] = append(f.comments[iid], body)
	return nil
}

func (f *fakeTracker) Close(ctx context.Context, iid int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closed = append(f.closed, iid)
	return nil
}

func (f *fakeTracker) labelsOf(iid int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, issue := range f.issues {
		if issue.IID == iid {
			return slices.Clone(issue.Labels)
		}
	}
	return nil
}

func (f *fakeTracker) commentsOf(iid int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.comments[iid])
}

func (f *fakeTracker) isClosed(iid int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.closed, iid)
}

type fakePublisher struct {
	publishFn func(path string, content []byte, message string) error
	published []string
}

func (f *fakePublisher) Publish(ctx context.Context, path string, content []byte, message string) error {
	if f.publishFn != nil {
		if err := f.publishFn(path, content, message); err != nil {
			return err
		}
	}
	f.published = append(f.published, path)
	return nil
}

type fakeTrainer struct {
	trainFn func(ctx context.Context, spec trainer.TrainSpec) error
	calls   []trainer.TrainSpec
}

func (f *fakeTrainer) Train(ctx context.Context, spec trainer.TrainSpec) error {
	f.calls = append(f.calls, spec)
	if f.trainFn != nil {
		return f.trainFn(ctx, spec)
	}
	return nil
}
