package aggregator

import (
	"context"
	"strings"
	"time"

	"github.com/kurihiro0119/docsync/internal/domain"
)

// Store is the persistence the aggregator reads
type Store interface {
	GetRepository(ctx context.Context, id string) (*domain.Repository, error)
	ListRepositories(ctx context.Context) ([]*domain.Repository, error)
	ListSyncRecords(ctx context.Context, repositoryID string, limit int) ([]*domain.SyncRecord, error)
}

// Aggregator defines the interface for aggregating sync history
type Aggregator interface {
	// RepositoryStats summarizes the sync records of one repository
	RepositoryStats(ctx context.Context, repositoryID string) (*domain.SyncStats, error)

	// AllStats summarizes every tracked repository
	AllStats(ctx context.Context) ([]*domain.SyncStats, error)

	// Timeline counts outcomes per period; an empty repositoryID covers all repositories
	Timeline(ctx context.Context, repositoryID string, timeRange domain.TimeRange) (*domain.SyncTimeline, error)
}

// aggregator implements the Aggregator interface
type aggregator struct {
	storage Store
}

// NewAggregator creates a new aggregator
func NewAggregator(storage Store) Aggregator {
	return &aggregator{
		storage: storage,
	}
}

// RepositoryStats summarizes the sync records of one repository
func (a *aggregator) RepositoryStats(ctx context.Context, repositoryID string) (*domain.SyncStats, error) {
	repo, err := a.storage.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	records, err := a.storage.ListSyncRecords(ctx, repositoryID, 0)
	if err != nil {
		return nil, err
	}
	return Summarize(repo, records), nil
}

// AllStats summarizes every tracked repository
func (a *aggregator) AllStats(ctx context.Context) ([]*domain.SyncStats, error) {
	repos, err := a.storage.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}
	records, err := a.storage.ListSyncRecords(ctx, "", 0)
	if err != nil {
		return nil, err
	}

	byRepo := make(map[string][]*domain.SyncRecord)
	for _, r := range records {
		byRepo[r.RepositoryID] = append(byRepo[r.RepositoryID], r)
	}

	stats := make([]*domain.SyncStats, 0, len(repos))
	for _, repo := range repos {
		stats = append(stats, Summarize(repo, byRepo[repo.ID]))
	}
	return stats, nil
}

// Summarize folds records, newest first, into stats. Records still in progress are not counted.
func Summarize(repo *domain.Repository, records []*domain.SyncRecord) *domain.SyncStats {
	stats := &domain.SyncStats{
		RepositoryID: repo.ID,
		Name:         repo.Name,
		Version:      repo.Version,
	}

	for _, r := range records {
		if !r.Status.IsTerminal() {
			continue
		}
		stats.Attempts++
		if r.Trigger == domain.SyncTriggerManual {
			stats.ManualTrigger++
		}

		switch r.Status {
		case domain.SyncStatusSuccess:
			stats.Successes++
			if stats.LastSuccessAt == nil && r.EndedAt != nil {
				at := *r.EndedAt
				stats.LastSuccessAt = &at
			}
		case domain.SyncStatusFailed:
			stats.Failures++
			if isNoWork(r) {
				stats.NoWork++
			} else if stats.LastError == "" {
				stats.LastError = r.ErrorMessage
			}
		}
	}

	if stats.Attempts > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.Attempts)
	}
	return stats
}

func isNoWork(r *domain.SyncRecord) bool {
	return strings.HasPrefix(r.ErrorMessage, "no new commits since")
}

// Timeline counts outcomes per period; an empty repositoryID covers all repositories
func (a *aggregator) Timeline(ctx context.Context, repositoryID string, timeRange domain.TimeRange) (*domain.SyncTimeline, error) {
	records, err := a.storage.ListSyncRecords(ctx, repositoryID, 0)
	if err != nil {
		return nil, err
	}

	// Group records by period
	successes := make(map[time.Time]int64)
	failures := make(map[time.Time]int64)
	for _, r := range records {
		if !r.Status.IsTerminal() || r.StartedAt.Before(timeRange.Start) || r.StartedAt.After(timeRange.End) {
			continue
		}
		period := truncateTime(r.StartedAt, timeRange.Granularity)
		if r.Status == domain.SyncStatusSuccess {
			successes[period]++
		} else {
			failures[period]++
		}
	}

	// Generate all periods in the range
	var points []domain.SyncTimelinePoint
	current := truncateTime(timeRange.Start, timeRange.Granularity)
	for !current.After(timeRange.End) {
		points = append(points, domain.SyncTimelinePoint{
			Period:    current,
			Successes: successes[current],
			Failures:  failures[current],
		})
		current = getNextPeriod(current, timeRange.Granularity)
	}

	return &domain.SyncTimeline{
		RepositoryID: repositoryID,
		Granularity:  timeRange.Granularity,
		Points:       points,
	}, nil
}

// truncateTime truncates a time to the start of the period based on granularity
func truncateTime(t time.Time, granularity string) time.Time {
	t = t.UTC()
	switch granularity {
	case "week":
		// Get the start of the week (Monday)
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return time.Date(t.Year(), t.Month(), t.Day()-weekday+1, 0, 0, 0, 0, time.UTC)
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// getNextPeriod returns the start of the next period
func getNextPeriod(t time.Time, granularity string) time.Time {
	switch granularity {
	case "week":
		return t.AddDate(0, 0, 7)
	case "month":
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}
