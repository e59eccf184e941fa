package domain

import "time"

// TimeRange represents a time range for statistics
type TimeRange struct {
	Start       time.Time
	End         time.Time
	Granularity string // "day", "week", "month"
}

// SyncStats summarizes the sync history of one repository
type SyncStats struct {
	RepositoryID  string     `json:"repository_id"`
	Name          string     `json:"name"`
	Version       string     `json:"version"`
	Attempts      int64      `json:"attempts"`
	Successes     int64      `json:"successes"`
	Failures      int64      `json:"failures"`
	NoWork        int64      `json:"no_work"` // failures that only meant no new commits
	ManualTrigger int64      `json:"manual_triggers"`
	SuccessRate   float64    `json:"success_rate"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// SyncTimelinePoint counts the sync attempts of one period
type SyncTimelinePoint struct {
	Period    time.Time `json:"period"`
	Successes int64     `json:"successes"`
	Failures  int64     `json:"failures"`
}

// SyncTimeline is a per-period series of sync outcomes
type SyncTimeline struct {
	RepositoryID string              `json:"repository_id,omitempty"`
	Granularity  string              `json:"granularity"`
	Points       []SyncTimelinePoint `json:"points"`
}
