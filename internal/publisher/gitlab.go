package publisher

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"wakewatch.dev/watcher/core/config"
)

type gitLabPublisher struct {
	client  *gitlab.Client
	project string
	branch  string
}

// NewGitLabPublisher builds a Publisher over the GitLab repository files
// API for the configured models project and branch.
func NewGitLabPublisher(trackerCfg config.TrackerConfig, cfg config.ArtifactConfig) (Publisher, error) {
	client, err := newClient(trackerCfg.BaseURL, trackerCfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	return &gitLabPublisher{
		client:  client,
		project: cfg.ModelsProject,
		branch:  cfg.Branch,
	}, nil
}

func newClient(baseURL, token string) (*gitlab.Client, error) {
	if baseURL == "" {
		return gitlab.NewClient(token)
	}
	apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
	return gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
}

func (p *gitLabPublisher) Publish(ctx context.Context, path string, content []byte, message string) error {
	lastCommitID, exists, err := p.probe(ctx, path)
	if err != nil {
		return fmt.Errorf("probing %s: %w", path, err)
	}

	encoded := base64.StdEncoding.EncodeToString(content)

	if !exists {
		_, _, err := p.client.RepositoryFiles.CreateFile(p.project, path, &gitlab.CreateFileOptions{
			Branch:        gitlab.Ptr(p.branch),
			Content:       gitlab.Ptr(encoded),
			Encoding:      gitlab.Ptr("base64"),
			CommitMessage: gitlab.Ptr(message),
		}, gitlab.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		slog.DebugContext(ctx, "artifact created", "path", path, "branch", p.branch)
		return nil
	}

	opts := &gitlab.UpdateFileOptions{
		Branch:        gitlab.Ptr(p.branch),
		Content:       gitlab.Ptr(encoded),
		Encoding:      gitlab.Ptr("base64"),
		CommitMessage: gitlab.Ptr(message),
	}
	// Carrying the probed revision turns a stale write into a rejection
	// instead of a lost update.
	if lastCommitID != "" {
		opts.LastCommitID = gitlab.Ptr(lastCommitID)
	}

	if _, _, err := p.client.RepositoryFiles.UpdateFile(p.project, path, opts, gitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("updating %s: %w", path, err)
	}
	slog.DebugContext(ctx, "artifact updated", "path", path, "branch", p.branch, "last_commit", lastCommitID)
	return nil
}

// probe checks whether path exists on the branch. Absence is a normal
// outcome, not an error: it selects create semantics for the write.
func (p *gitLabPublisher) probe(ctx context.Context, path string) (lastCommitID string, exists bool, err error) {
	meta, resp, err := p.client.RepositoryFiles.GetFileMetaData(p.project, path, &gitlab.GetFileMetaDataOptions{
		Ref: gitlab.Ptr(p.branch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return meta.LastCommitID, true, nil
}
