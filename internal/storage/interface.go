package storage

import (
	"context"
	"time"

	"github.com/kurihiro0119/docsync/internal/domain"
)

// Storage is the abstract interface for the persistence layer
type Storage interface {
	// Repository operations
	SaveRepository(ctx context.Context, repo *domain.Repository) error
	GetRepository(ctx context.Context, id string) (*domain.Repository, error)
	ListRepositories(ctx context.Context) ([]*domain.Repository, error)
	UpdateRepositoryVersion(ctx context.Context, id, version string, at time.Time) error

	// Document operations
	SaveDocument(ctx context.Context, doc *domain.Document) error
	ListDocuments(ctx context.Context, repositoryID string) ([]*domain.Document, error)
	// TouchDocuments sets last_update on every document of the repository
	TouchDocuments(ctx context.Context, repositoryID string, at time.Time) error

	// NextSyncCandidate returns a completed, sync-enabled repository that has
	// documents last updated before staleBefore, together with those documents.
	// It returns a nil repository when nothing is due.
	NextSyncCandidate(ctx context.Context, staleBefore time.Time) (*domain.Repository, []*domain.Document, error)

	// Catalog operations
	LiveCatalog(ctx context.Context, repositoryID string) ([]*domain.CatalogNode, error)
	// ApplyCatalog writes one reconciliation batch atomically
	ApplyCatalog(ctx context.Context, batch *domain.CatalogBatch) error
	SaveCatalogContent(ctx context.Context, content *domain.CatalogContent) error
	GetCatalogContent(ctx context.Context, nodeID string) (*domain.CatalogContent, error)

	// Sync record operations
	CreateSyncRecord(ctx context.Context, rec *domain.SyncRecord) error
	// FinishSyncRecord persists the terminal state of a record still in progress
	FinishSyncRecord(ctx context.Context, rec *domain.SyncRecord) error
	// ListSyncRecords returns newest first; an empty repositoryID lists all repositories
	ListSyncRecords(ctx context.Context, repositoryID string, limit int) ([]*domain.SyncRecord, error)

	// Changelog operations
	LatestChangelogDate(ctx context.Context, repositoryID string) (time.Time, bool, error)
	AppendChangelog(ctx context.Context, entries []*domain.ChangelogEntry) error
	ListChangelog(ctx context.Context, repositoryID string, limit int) ([]*domain.ChangelogEntry, error)

	// Access log
	SaveAccessLog(ctx context.Context, event *domain.AccessLogEvent) error

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
