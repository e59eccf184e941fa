// Package changelog turns new commits into dated, human-readable entries.
package changelog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/docsync/internal/analysis"
	"github.com/kurihiro0119/docsync/internal/domain"
	"github.com/kurihiro0119/docsync/internal/llm"
	"github.com/kurihiro0119/docsync/internal/prompts"
)

const tag = "changelog"

// commitTimeLayout is the timestamp layout used in prompts and accepted back from the collaborator
const commitTimeLayout = "2006-01-02 15:04:05"

// Store is the persistence the generator needs
type Store interface {
	LatestChangelogDate(ctx context.Context, repositoryID string) (time.Time, bool, error)
	AppendChangelog(ctx context.Context, entries []*domain.ChangelogEntry) error
}

// CommitLister lists commits of a working copy committed after since
type CommitLister interface {
	ListCommits(ctx context.Context, path string, since time.Time) ([]*domain.Commit, error)
}

// item is one entry as the collaborator writes it
type item struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Generator records changelog entries for a repository
type Generator struct {
	store   Store
	commits CommitLister
	invoker *analysis.Invoker
	options llm.Options
	stream  bool
	logger  *slog.Logger
	now     func() time.Time
}

// Options tunes the analysis call of the generator
type Options struct {
	LLM    llm.Options
	Stream bool
}

// NewGenerator creates a changelog generator
func NewGenerator(store Store, commits CommitLister, invoker *analysis.Invoker, opts Options, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		store:   store,
		commits: commits,
		invoker: invoker,
		options: opts.LLM,
		stream:  opts.Stream,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ErrNoWorkingCopy is returned when Generate is given no working copy path
var ErrNoWorkingCopy = errors.New("no working copy path")

// Generate appends entries for the commits of the working copy at path made
// after the latest recorded entry. With no such commits it returns an empty
// list without calling the collaborator.
func (g *Generator) Generate(ctx context.Context, repo *domain.Repository, path string) ([]*domain.ChangelogEntry, error) {
	if path == "" {
		return nil, ErrNoWorkingCopy
	}

	since, ok, err := g.store.LatestChangelogDate(ctx, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest changelog date: %w", err)
	}
	if !ok {
		since = time.Time{}
	}

	commits, err := g.commits.ListCommits(ctx, path, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}
	if len(commits) == 0 {
		return nil, nil
	}

	prompt, err := prompts.RenderChangelog(prompts.Changelog{
		Repository: repo.DisplayAddress(),
		Branch:     repo.Branch,
		Readme:     readReadme(path),
		Commits:    FormatCommits(commits),
	})
	if err != nil {
		return nil, err
	}

	items, err := analysis.Run[[]item](ctx, g.invoker, analysis.Request{
		Prompt:  prompt,
		Tag:     tag,
		Options: g.options,
		Stream:  g.stream,
	})
	if err != nil {
		return nil, err
	}

	entries := g.entries(repo.ID, items, commits)
	if len(entries) == 0 {
		return nil, nil
	}
	if err := g.store.AppendChangelog(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to append changelog: %w", err)
	}

	g.logger.Info("changelog updated", "repository_id", repo.ID, "commits", len(commits), "entries", len(entries))
	return entries, nil
}

func (g *Generator) entries(repositoryID string, items []item, commits []*domain.Commit) []*domain.ChangelogEntry {
	// an unparseable date falls back to the newest commit so the next run starts after it
	fallback := commits[len(commits)-1].CommittedAt
	now := g.now()

	out := make([]*domain.ChangelogEntry, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Title) == "" && strings.TrimSpace(it.Description) == "" {
			continue
		}
		date, ok := ParseDate(it.Date)
		if !ok {
			g.logger.Warn("changelog entry has an unreadable date", "repository_id", repositoryID, "date", it.Date)
			date = fallback
		}
		out = append(out, &domain.ChangelogEntry{
			ID:           uuid.New().String(),
			RepositoryID: repositoryID,
			Date:         date,
			Title:        strings.TrimSpace(it.Title),
			Description:  strings.TrimSpace(it.Description),
			CreatedAt:    now,
		})
	}
	return out
}

// FormatCommits renders commits newest first, one block each
func FormatCommits(commits []*domain.Commit) string {
	var b strings.Builder
	for i := len(commits) - 1; i >= 0; i-- {
		c := commits[i]
		fmt.Fprintf(&b, "Committer: %s\nCommit content\n<message>\n%s</message>\nCommit time: %s\n",
			c.CommitterName, c.Message, c.CommittedAt.UTC().Format(commitTimeLayout))
	}
	return b.String()
}

var dateLayouts = []string{time.RFC3339, commitTimeLayout, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDate reads the dates the collaborator tends to produce, as UTC
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func readReadme(dir string) string {
	for _, name := range []string{"README.md", "readme.md", "README"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return string(data)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			break
		}
	}
	return ""
}
