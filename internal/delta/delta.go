// Package delta computes what changed in a repository since the last processed revision.
package delta

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kurihiro0119/docsync/internal/domain"
	"github.com/kurihiro0119/docsync/internal/remote"
)

// VCS is the version-control collaborator the extractor reads from
type VCS interface {
	Pull(ctx context.Context, path, address, marker, branch string, creds *domain.Credentials) ([]*domain.Commit, string, error)
	Diff(ctx context.Context, path, parent, commit string) ([]domain.FileChange, error)
}

// Source identifies a working copy and the revision already processed
type Source struct {
	Path        string
	Address     string
	Branch      string
	Revision    string
	Credentials *domain.Credentials
}

// CommitDelta is one new commit with its paths changed against the first parent
type CommitDelta struct {
	Commit  *domain.Commit
	Changes []domain.FileChange
}

// Delta is the result of one extraction
type Delta struct {
	FromRevision string
	ToRevision   string
	Commits      []CommitDelta // oldest first
}

// HasWork reports whether there is at least one new commit
func (d *Delta) HasWork() bool {
	return d != nil && len(d.Commits) > 0
}

// PathHistory is the sequence of change kinds a path went through
type PathHistory struct {
	Path  string
	Kinds []domain.ChangeKind
}

// Changes combines per-commit changes by path, in order of first appearance
func (d *Delta) Changes() []PathHistory {
	index := make(map[string]int)
	var out []PathHistory
	for _, c := range d.Commits {
		for _, fc := range c.Changes {
			i, ok := index[fc.Path]
			if !ok {
				i = len(out)
				index[fc.Path] = i
				out = append(out, PathHistory{Path: fc.Path})
			}
			out[i].Kinds = append(out[i].Kinds, fc.Kind)
		}
	}
	return out
}

// Summary renders the commits for the analysis prompt
func (d *Delta) Summary() string {
	var b strings.Builder
	for _, c := range d.Commits {
		b.WriteString("<commit>\n")
		b.WriteString(strings.TrimSpace(c.Commit.Message))
		b.WriteString("\n")
		for _, fc := range c.Changes {
			if fc.OldPath != "" {
				fmt.Fprintf(&b, " - %s: %s -> %s\n", fc.Kind, fc.OldPath, fc.Path)
				continue
			}
			fmt.Fprintf(&b, " - %s: %s\n", fc.Kind, fc.Path)
		}
		b.WriteString("</commit>\n")
	}
	return b.String()
}

// Extractor computes deltas through a VCS, optionally short-circuiting
// through a remote head probe
type Extractor struct {
	vcs    VCS
	prober remote.Prober
	logger *slog.Logger
}

// NewExtractor creates an extractor. prober may be nil.
func NewExtractor(vcs VCS, prober remote.Prober, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{vcs: vcs, prober: prober, logger: logger}
}

// Extract pulls the working copy and returns the commits after src.Revision.
// Zero new commits is reported through Delta.HasWork, not as an error.
func (e *Extractor) Extract(ctx context.Context, src Source) (*Delta, error) {
	if e.upToDate(ctx, src) {
		return &Delta{FromRevision: src.Revision, ToRevision: src.Revision}, nil
	}

	commits, head, err := e.vcs.Pull(ctx, src.Path, src.Address, src.Revision, src.Branch, src.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to pull %s: %w", src.Address, err)
	}

	d := &Delta{FromRevision: src.Revision, ToRevision: head}
	for _, commit := range commits {
		changes, err := e.vcs.Diff(ctx, src.Path, commit.FirstParent(), commit.Sha)
		if err != nil {
			return nil, fmt.Errorf("failed to diff commit %s: %w", commit.Sha, err)
		}
		d.Commits = append(d.Commits, CommitDelta{Commit: commit, Changes: changes})
	}

	e.logger.Debug("extracted delta", "from", d.FromRevision, "to", d.ToRevision, "commits", len(d.Commits))
	return d, nil
}

// upToDate asks the remote for its head; any doubt means a real pull
func (e *Extractor) upToDate(ctx context.Context, src Source) bool {
	if e.prober == nil || src.Revision == "" {
		return false
	}
	head, supported, err := e.prober.BranchHead(ctx, src.Address, src.Branch)
	if err != nil {
		e.logger.Warn("remote head probe failed, pulling anyway", "address", src.Address, "error", err)
		return false
	}
	return supported && head == src.Revision
}
