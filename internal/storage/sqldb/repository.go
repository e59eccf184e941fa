package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/docsync/internal/domain"
	apperrors "github.com/kurihiro0119/docsync/internal/errors"
)

const repositoryColumns = `id, name, address, branch, username, password, version, enable_sync, status, created_at, updated_at`

// SaveRepository inserts or updates a repository
func (s *Store) SaveRepository(ctx context.Context, repo *domain.Repository) error {
	if repo.ID == "" {
		repo.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if repo.CreatedAt.IsZero() {
		repo.CreatedAt = now
	}
	repo.UpdatedAt = now
	if repo.Status == "" {
		repo.Status = domain.RepositoryStatusPending
	}

	query := `
		INSERT INTO repositories (` + repositoryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			branch = excluded.branch,
			username = excluded.username,
			password = excluded.password,
			version = excluded.version,
			enable_sync = excluded.enable_sync,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, s.q(query),
		repo.ID,
		repo.Name,
		repo.Address,
		repo.Branch,
		repo.Username,
		repo.Password,
		repo.Version,
		repo.EnableSync,
		string(repo.Status),
		repo.CreatedAt.UTC(),
		repo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save repository %s: %w", repo.ID, err)
	}
	return nil
}

// GetRepository retrieves a repository by ID
func (s *Store) GetRepository(ctx context.Context, id string) (*domain.Repository, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+repositoryColumns+` FROM repositories WHERE id = ?`), id)
	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("repository " + id)
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// ListRepositories retrieves all repositories ordered by name
func (s *Store) ListRepositories(ctx context.Context) ([]*domain.Repository, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+repositoryColumns+` FROM repositories ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []*domain.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

// UpdateRepositoryVersion advances the processed revision marker
func (s *Store) UpdateRepositoryVersion(ctx context.Context, id, version string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE repositories SET version = ?, updated_at = ? WHERE id = ?`),
		version, at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("repository " + id)
	}
	return nil
}

// SaveDocument inserts or updates a document
func (s *Store) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO documents (id, repository_id, git_path, last_update, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			git_path = excluded.git_path,
			last_update = excluded.last_update
	`
	_, err := s.db.ExecContext(ctx, s.q(query),
		doc.ID, doc.RepositoryID, doc.GitPath, doc.LastUpdate.UTC(), doc.CreatedAt.UTC())
	return err
}

// ListDocuments retrieves the documents of a repository
func (s *Store) ListDocuments(ctx context.Context, repositoryID string) ([]*domain.Document, error) {
	return s.queryDocuments(ctx, `
		SELECT id, repository_id, git_path, last_update, created_at
		FROM documents WHERE repository_id = ?
		ORDER BY created_at, id
	`, repositoryID)
}

// TouchDocuments sets last_update on all documents of a repository
func (s *Store) TouchDocuments(ctx context.Context, repositoryID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE documents SET last_update = ? WHERE repository_id = ?`),
		at.UTC(), repositoryID)
	return err
}

// NextSyncCandidate picks the repository whose oldest stale document is the oldest overall
func (s *Store) NextSyncCandidate(ctx context.Context, staleBefore time.Time) (*domain.Repository, []*domain.Document, error) {
	staleBefore = staleBefore.UTC()
	query := `
		SELECT ` + repositoryColumns + `
		FROM repositories r
		WHERE r.status = ? AND r.enable_sync = ?
		  AND EXISTS (SELECT 1 FROM documents d WHERE d.repository_id = r.id AND d.last_update < ?)
		ORDER BY (SELECT MIN(d.last_update) FROM documents d WHERE d.repository_id = r.id), r.id
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, s.q(query), string(domain.RepositoryStatusCompleted), true, staleBefore)
	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to select sync candidate: %w", err)
	}

	docs, err := s.queryDocuments(ctx, `
		SELECT id, repository_id, git_path, last_update, created_at
		FROM documents WHERE repository_id = ? AND last_update < ?
		ORDER BY last_update, id
	`, repo.ID, staleBefore)
	if err != nil {
		return nil, nil, err
	}
	return repo, docs, nil
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]*domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.RepositoryID, &d.GitPath, &d.LastUpdate, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRepository(row scanner) (*domain.Repository, error) {
	var r domain.Repository
	var status string
	err := row.Scan(&r.ID, &r.Name, &r.Address, &r.Branch, &r.Username, &r.Password,
		&r.Version, &r.EnableSync, &status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = domain.RepositoryStatus(status)
	return &r, nil
}
