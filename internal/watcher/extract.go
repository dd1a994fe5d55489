package watcher

import (
	"regexp"
	"slices"
	"strings"

	"wakewatch.dev/watcher/internal/model"
)

// Title grammar: case-insensitive "mww:" prefix, captured phrase trimmed.
var titleRe = regexp.MustCompile(`(?i)^\s*mww:\s*(.+?)\s*$`)

// Candidate is one job eligible for claiming this cycle.
type Candidate struct {
	IID    int64
	Title  string
	Phrase string
}

// ExtractCandidates filters raw search results down to claimable jobs,
// preserving the tracker's oldest-first ordering. Items already carrying
// the processing or done label are skipped, as are non-issue entries and
// titles that don't match the grammar. Degenerate input yields an empty
// slice, never an error; extraction must not abort the poll cycle.
func ExtractCandidates(issues []model.Issue, processingLabel, doneLabel string) []Candidate {
	candidates := make([]Candidate, 0, len(issues))

	for _, issue := range issues {
		if issue.Type != "" && !strings.EqualFold(issue.Type, "issue") {
			continue
		}
		if slices.Contains(issue.Labels, processingLabel) || slices.Contains(issue.Labels, doneLabel) {
			continue
		}

		m := titleRe.FindStringSubmatch(issue.Title)
		if m == nil || m[1] == "" {
			continue
		}

		candidates = append(candidates, Candidate{
			IID:    issue.IID,
			Title:  issue.Title,
			Phrase: m[1],
		})
	}

	return candidates
}
