package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/docsync/internal/domain"
)

const syncColumns = `id, repository_id, status, started_at, ended_at, from_version, to_version, file_count, trigger_kind, error_message`

// CreateSyncRecord inserts a new sync record
func (s *Store) CreateSyncRecord(ctx context.Context, rec *domain.SyncRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = domain.SyncStatusInProgress
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO sync_records (`+syncColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		rec.ID,
		rec.RepositoryID,
		string(rec.Status),
		rec.StartedAt.UTC(),
		nullTime(rec.EndedAt),
		rec.FromVersion,
		rec.ToVersion,
		rec.FileCount,
		string(rec.Trigger),
		rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync record: %w", err)
	}
	return nil
}

// FinishSyncRecord stores the terminal state of a record. Records that
// already left in_progress are not touched again.
func (s *Store) FinishSyncRecord(ctx context.Context, rec *domain.SyncRecord) error {
	if !rec.Status.IsTerminal() {
		return fmt.Errorf("sync record %s: status %q is not terminal", rec.ID, rec.Status)
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE sync_records
		SET status = ?, ended_at = ?, to_version = ?, error_message = ?
		WHERE id = ? AND status = ?
	`),
		string(rec.Status),
		nullTime(rec.EndedAt),
		rec.ToVersion,
		rec.ErrorMessage,
		rec.ID,
		string(domain.SyncStatusInProgress),
	)
	if err != nil {
		return fmt.Errorf("failed to finish sync record %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sync record %s is not in progress", rec.ID)
	}
	return nil
}

// ListSyncRecords retrieves records newest first
func (s *Store) ListSyncRecords(ctx context.Context, repositoryID string, limit int) ([]*domain.SyncRecord, error) {
	query := `SELECT ` + syncColumns + ` FROM sync_records`
	var args []any
	if repositoryID != "" {
		query += ` WHERE repository_id = ?`
		args = append(args, repositoryID)
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.SyncRecord
	for rows.Next() {
		var r domain.SyncRecord
		var status, trigger string
		var endedAt sql.NullTime
		err := rows.Scan(&r.ID, &r.RepositoryID, &status, &r.StartedAt, &endedAt,
			&r.FromVersion, &r.ToVersion, &r.FileCount, &trigger, &r.ErrorMessage)
		if err != nil {
			return nil, err
		}
		r.Status = domain.SyncStatus(status)
		r.Trigger = domain.SyncTrigger(trigger)
		if endedAt.Valid {
			r.EndedAt = &endedAt.Time
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// LatestChangelogDate returns the date of the newest changelog entry
func (s *Store) LatestChangelogDate(ctx context.Context, repositoryID string) (time.Time, bool, error) {
	var date time.Time
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT date FROM changelog_entries
		WHERE repository_id = ?
		ORDER BY date DESC
		LIMIT 1
	`), repositoryID).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return date, true, nil
}

// AppendChangelog inserts entries in one transaction
func (s *Store) AppendChangelog(ctx context.Context, entries []*domain.ChangelogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.q(`
		INSERT INTO changelog_entries (id, repository_id, date, title, description, author, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		_, err := stmt.ExecContext(ctx, e.ID, e.RepositoryID, e.Date.UTC(), e.Title, e.Description, e.Author, e.CreatedAt.UTC())
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListChangelog retrieves entries newest first
func (s *Store) ListChangelog(ctx context.Context, repositoryID string, limit int) ([]*domain.ChangelogEntry, error) {
	query := `
		SELECT id, repository_id, date, title, description, author, created_at
		FROM changelog_entries WHERE repository_id = ?
		ORDER BY date DESC, created_at DESC`
	args := []any{repositoryID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.ChangelogEntry
	for rows.Next() {
		var e domain.ChangelogEntry
		if err := rows.Scan(&e.ID, &e.RepositoryID, &e.Date, &e.Title, &e.Description, &e.Author, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// SaveAccessLog persists one access-log event
func (s *Store) SaveAccessLog(ctx context.Context, event *domain.AccessLogEvent) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO access_logs (id, resource_type, resource_id, user_id, ip_address, user_agent, path, method, status_code, latency_ms, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		uuid.New().String(),
		event.ResourceType,
		event.ResourceID,
		event.UserID,
		event.IPAddress,
		event.UserAgent,
		event.Path,
		event.Method,
		event.StatusCode,
		event.Latency.Milliseconds(),
		event.OccurredAt.UTC(),
	)
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
