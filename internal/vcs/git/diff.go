package git

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/kurihiro0119/docsync/internal/domain"
)

// Diff lists the paths changed between parent and commit with their change
// kind and line counts. A root commit (empty parent) has no diff.
func (c *Client) Diff(ctx context.Context, path, parent, commit string) ([]domain.FileChange, error) {
	if parent == "" {
		return nil, nil
	}

	out, err := c.run(ctx, path, "diff-tree", "--no-commit-id", "-r", "-M", "--name-status", "-z", parent, commit)
	if err != nil {
		return nil, fmt.Errorf("git diff-tree failed: %w", err)
	}
	changes, err := parseNameStatus(out)
	if err != nil {
		return nil, err
	}

	patch, err := c.run(ctx, path, "diff", "--no-color", "--no-ext-diff", "-M", parent, commit)
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}
	stats, err := lineStats(patch)
	if err != nil {
		// counts are informational, the change list is still usable
		c.logger.Warn("failed to parse patch for line stats", "commit", commit, "error", err)
		return changes, nil
	}
	for i := range changes {
		if s, ok := stats[changes[i].Path]; ok {
			changes[i].Additions = s[0]
			changes[i].Deletions = s[1]
		}
	}
	return changes, nil
}

// parseNameStatus reads NUL separated `git diff-tree --name-status -z` output
func parseNameStatus(output []byte) ([]domain.FileChange, error) {
	tokens := strings.Split(strings.TrimRight(string(output), "\x00"), "\x00")
	var changes []domain.FileChange

	for i := 0; i < len(tokens); {
		status := tokens[i]
		if status == "" {
			i++
			continue
		}
		kind, ok := changeKind(status[0])
		if !ok {
			return nil, fmt.Errorf("unknown change status %q", status)
		}

		if kind == domain.ChangeRenamed || kind == domain.ChangeCopied {
			if i+2 >= len(tokens) {
				return nil, fmt.Errorf("truncated %s entry", kind)
			}
			changes = append(changes, domain.FileChange{Kind: kind, OldPath: tokens[i+1], Path: tokens[i+2]})
			i += 3
			continue
		}

		if i+1 >= len(tokens) {
			return nil, fmt.Errorf("truncated %s entry", kind)
		}
		changes = append(changes, domain.FileChange{Kind: kind, Path: tokens[i+1]})
		i += 2
	}
	return changes, nil
}

func changeKind(status byte) (domain.ChangeKind, bool) {
	switch status {
	case 'A':
		return domain.ChangeAdded, true
	case 'M':
		return domain.ChangeModified, true
	case 'D':
		return domain.ChangeDeleted, true
	case 'R':
		return domain.ChangeRenamed, true
	case 'C':
		return domain.ChangeCopied, true
	case 'T':
		return domain.ChangeTypeChanged, true
	default:
		return "", false
	}
}

// lineStats maps each path of a unified diff to its added and removed line counts
func lineStats(patch []byte) (map[string][2]int, error) {
	stats := make(map[string][2]int)
	if len(bytes.TrimSpace(patch)) == 0 {
		return stats, nil
	}

	fileDiffs, err := diff.NewMultiFileDiffReader(bytes.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil, err
	}

	for _, fd := range fileDiffs {
		name := strings.TrimPrefix(fd.NewName, "b/")
		if fd.NewName == "/dev/null" {
			name = strings.TrimPrefix(fd.OrigName, "a/")
		}

		var counts [2]int
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				switch {
				case strings.HasPrefix(line, "+"):
					counts[0]++
				case strings.HasPrefix(line, "-"):
					counts[1]++
				}
			}
		}
		stats[name] = counts
	}
	return stats, nil
}
