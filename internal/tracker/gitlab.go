package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"wakewatch.dev/watcher/core/config"
	"wakewatch.dev/watcher/internal/model"
)

// SearchTerm is the fixed title prefix the tracker search matches on.
// Extraction applies the full grammar afterwards; the search only
// narrows the result set.
const SearchTerm = "mww:"

type gitLabTracker struct {
	client  *gitlab.Client
	project string
}

// NewGitLabTracker builds a Tracker over the GitLab issues API for the
// configured jobs project.
func NewGitLabTracker(cfg config.TrackerConfig) (Tracker, error) {
	client, err := newClient(cfg.BaseURL, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	return &gitLabTracker{
		client:  client,
		project: cfg.JobsProject,
	}, nil
}

func newClient(baseURL, token string) (*gitlab.Client, error) {
	if baseURL == "" {
		return gitlab.NewClient(token)
	}
	apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
	return gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
}

func (t *gitLabTracker) SearchOpenJobs(ctx context.Context) ([]model.Issue, error) {
	opts := &gitlab.ListProjectIssuesOptions{
		ListOptions: gitlab.ListOptions{PerPage: 100},
		State:       gitlab.Ptr("opened"),
		Search:      gitlab.Ptr(SearchTerm),
		In:          gitlab.Ptr("title"),
		OrderBy:     gitlab.Ptr("created_at"),
		Sort:        gitlab.Ptr("asc"),
	}

	issues, resp, err := t.client.Issues.ListProjectIssues(t.project, opts, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("searching open jobs: %w", err)
	}

	if resp != nil {
		if remaining := resp.Header.Get("RateLimit-Remaining"); remaining != "" {
			slog.DebugContext(ctx, "tracker search response",
				"status", resp.StatusCode,
				"ratelimit_remaining", remaining,
				"results", len(issues))
		}
	}

	return mapIssues(issues), nil
}

func (t *gitLabTracker) AddLabels(ctx context.Context, iid int64, labels ...string) error {
	add := gitlab.LabelOptions(labels)
	_, _, err := t.client.Issues.UpdateIssue(t.project, iid, &gitlab.UpdateIssueOptions{
		AddLabels: &add,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("adding labels to issue %d: %w", iid, err)
	}
	return nil
}

func (t *gitLabTracker) Comment(ctx context.Context, iid int64, body string) error {
	_, _, err := t.client.Notes.CreateIssueNote(t.project, iid, &gitlab.CreateIssueNoteOptions{
		Body: gitlab.Ptr(body),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("commenting on issue %d: %w", iid, err)
	}
	return nil
}

func (t *gitLabTracker) Close(ctx context.Context, iid int64) error {
	_, _, err := t.client.Issues.UpdateIssue(t.project, iid, &gitlab.UpdateIssueOptions{
		StateEvent: gitlab.Ptr("close"),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("closing issue %d: %w", iid, err)
	}
	return nil
}

func mapIssues(issues []*gitlab.Issue) []model.Issue {
	mapped := make([]model.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue == nil {
			continue
		}

		m := model.Issue{
			IID:    int64(issue.IID),
			Title:  issue.Title,
			Labels: append([]string(nil), issue.Labels...),
			State:  issue.State,
			WebURL: issue.WebURL,
		}
		if issue.IssueType != nil {
			m.Type = *issue.IssueType
		}
		if issue.CreatedAt != nil {
			m.CreatedAt = *issue.CreatedAt
		}

		mapped = append(mapped, m)
	}
	return mapped
}
