package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kurihiro0119/docsync/internal/domain"
	apperrors "github.com/kurihiro0119/docsync/internal/errors"
)

const catalogColumns = `id, repository_id, document_id, parent_id, name, slug, description, prompt, sort_order, is_deleted, deleted_at, created_at`

// LiveCatalog retrieves the non-deleted catalog nodes of a repository
func (s *Store) LiveCatalog(ctx context.Context, repositoryID string) ([]*domain.CatalogNode, error) {
	query := `
		SELECT ` + catalogColumns + `
		FROM catalog_nodes
		WHERE repository_id = ? AND is_deleted = ?
		ORDER BY parent_id, sort_order, row_id
	`
	rows, err := s.db.QueryContext(ctx, s.q(query), repositoryID, false)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*domain.CatalogNode
	for rows.Next() {
		var n domain.CatalogNode
		var deletedAt sql.NullTime
		err := rows.Scan(&n.ID, &n.RepositoryID, &n.DocumentID, &n.ParentID, &n.Name, &n.Slug,
			&n.Description, &n.Prompt, &n.Order, &n.IsDeleted, &deletedAt, &n.CreatedAt)
		if err != nil {
			return nil, err
		}
		if deletedAt.Valid {
			n.DeletedAt = &deletedAt.Time
		}
		nodes = append(nodes, &n)
	}
	return nodes, rows.Err()
}

// ApplyCatalog soft-deletes the batch deletions, then writes every node in
// order. An update soft-deletes the live row with the same ID before the
// revised row is inserted. Everything happens in one transaction.
func (s *Store) ApplyCatalog(ctx context.Context, batch *domain.CatalogBatch) error {
	at := batch.At.UTC()
	if batch.At.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	softDelete, err := tx.PrepareContext(ctx, s.q(`
		UPDATE catalog_nodes SET is_deleted = ?, deleted_at = ?
		WHERE repository_id = ? AND id = ? AND is_deleted = ?
	`))
	if err != nil {
		return err
	}
	defer softDelete.Close()

	insert, err := tx.PrepareContext(ctx, s.q(`
		INSERT INTO catalog_nodes (`+catalogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer insert.Close()

	for _, id := range batch.DeleteIDs {
		if _, err := softDelete.ExecContext(ctx, true, at, batch.RepositoryID, id, false); err != nil {
			return fmt.Errorf("failed to delete catalog node %s: %w", id, err)
		}
	}

	for _, w := range batch.Writes {
		n := w.Node
		if w.Kind == domain.NodeKindUpdate {
			if _, err := softDelete.ExecContext(ctx, true, at, batch.RepositoryID, n.ID, false); err != nil {
				return fmt.Errorf("failed to retire catalog node %s: %w", n.ID, err)
			}
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = at
		}
		_, err := insert.ExecContext(ctx,
			n.ID,
			batch.RepositoryID,
			n.DocumentID,
			n.ParentID,
			n.Name,
			n.Slug,
			n.Description,
			n.Prompt,
			n.Order,
			false,
			nil,
			n.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert catalog node %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// SaveCatalogContent inserts or replaces the generated body of a node
func (s *Store) SaveCatalogContent(ctx context.Context, content *domain.CatalogContent) error {
	if content.UpdatedAt.IsZero() {
		content.UpdatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO catalog_contents (node_id, repository_id, content, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (node_id) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, s.q(query),
		content.NodeID, content.RepositoryID, content.Content, content.UpdatedAt.UTC())
	return err
}

// GetCatalogContent retrieves the generated body of a node
func (s *Store) GetCatalogContent(ctx context.Context, nodeID string) (*domain.CatalogContent, error) {
	var c domain.CatalogContent
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT node_id, repository_id, content, updated_at
		FROM catalog_contents WHERE node_id = ?
	`), nodeID).Scan(&c.NodeID, &c.RepositoryID, &c.Content, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("catalog content " + nodeID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
