package domain

import "time"

// AccessLogEvent represents one served API request waiting to be persisted
type AccessLogEvent struct {
	ResourceType string
	ResourceID   string
	UserID       string
	IPAddress    string
	UserAgent    string
	Path         string
	Method       string
	StatusCode   int
	Latency      time.Duration
	OccurredAt   time.Time
}

// ChangeKind represents how a path changed in a commit
type ChangeKind string

const (
	ChangeAdded       ChangeKind = "Added"
	ChangeModified    ChangeKind = "Modified"
	ChangeDeleted     ChangeKind = "Deleted"
	ChangeRenamed     ChangeKind = "Renamed"
	ChangeCopied      ChangeKind = "Copied"
	ChangeTypeChanged ChangeKind = "TypeChanged"
)

// FileChange is one changed path of a commit relative to its first parent
type FileChange struct {
	Kind      ChangeKind
	Path      string
	OldPath   string // set for renames and copies
	Additions int
	Deletions int
}

// Commit represents a commit read from the local working copy
type Commit struct {
	Sha           string
	Parents       []string
	AuthorName    string
	CommitterName string
	CommittedAt   time.Time
	Message       string
}

// FirstParent returns the first parent sha, empty for root commits
func (c *Commit) FirstParent() string {
	if len(c.Parents) == 0 {
		return ""
	}
	return c.Parents[0]
}
