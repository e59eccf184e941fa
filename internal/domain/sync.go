package domain

import "time"

// SyncStatus represents the state of a sync attempt
type SyncStatus string

const (
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusSuccess    SyncStatus = "success"
	SyncStatusFailed     SyncStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusSuccess || s == SyncStatusFailed
}

// SyncTrigger tells what started a sync attempt
type SyncTrigger string

const (
	SyncTriggerAutomatic SyncTrigger = "automatic"
	SyncTriggerManual    SyncTrigger = "manual"
)

// SyncRecord tracks one reconciliation cycle of a repository
type SyncRecord struct {
	ID           string      `json:"id"`
	RepositoryID string      `json:"repository_id"`
	Status       SyncStatus  `json:"status"`
	StartedAt    time.Time   `json:"started_at"`
	EndedAt      *time.Time  `json:"ended_at,omitempty"`
	FromVersion  string      `json:"from_version"`
	ToVersion    string      `json:"to_version,omitempty"`
	FileCount    int         `json:"file_count"`
	Trigger      SyncTrigger `json:"trigger"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// Succeed moves the record to the success state
func (r *SyncRecord) Succeed(toVersion string, at time.Time) {
	r.Status = SyncStatusSuccess
	r.ToVersion = toVersion
	r.EndedAt = &at
}

// Fail moves the record to the failed state
func (r *SyncRecord) Fail(message string, at time.Time) {
	r.Status = SyncStatusFailed
	r.ErrorMessage = message
	r.EndedAt = &at
}

// ChangelogEntry is one human-readable change description
type ChangelogEntry struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repository_id"`
	Date         time.Time `json:"date"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Author       string    `json:"author"`
	CreatedAt    time.Time `json:"created_at"`
}
