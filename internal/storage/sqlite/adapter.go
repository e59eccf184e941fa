package sqlite

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/docsync/internal/storage"
	"github.com/kurihiro0119/docsync/internal/storage/sqldb"
)

const schema = `
	CREATE TABLE IF NOT EXISTS repositories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL,
		branch TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL DEFAULT '',
		enable_sync BOOLEAN NOT NULL DEFAULT 1,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_repositories_status ON repositories(status, enable_sync);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL REFERENCES repositories(id),
		git_path TEXT NOT NULL DEFAULT '',
		last_update TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_repo_last_update ON documents(repository_id, last_update);

	CREATE TABLE IF NOT EXISTS catalog_nodes (
		row_id INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		repository_id TEXT NOT NULL,
		document_id TEXT NOT NULL DEFAULT '',
		parent_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL,
		is_deleted BOOLEAN NOT NULL DEFAULT 0,
		deleted_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_catalog_nodes_live_id ON catalog_nodes(id) WHERE is_deleted = 0;
	CREATE INDEX IF NOT EXISTS idx_catalog_nodes_repo ON catalog_nodes(repository_id, is_deleted);

	CREATE TABLE IF NOT EXISTS catalog_contents (
		node_id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL,
		content TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_records (
		id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP,
		from_version TEXT NOT NULL DEFAULT '',
		to_version TEXT NOT NULL DEFAULT '',
		file_count INTEGER NOT NULL DEFAULT 0,
		trigger_kind TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sync_records_repo_started ON sync_records(repository_id, started_at);

	CREATE TABLE IF NOT EXISTS changelog_entries (
		id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL,
		date TIMESTAMP NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_changelog_entries_repo_date ON changelog_entries(repository_id, date);

	CREATE TABLE IF NOT EXISTS access_logs (
		id TEXT PRIMARY KEY,
		resource_type TEXT NOT NULL DEFAULT '',
		resource_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL,
		method TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		occurred_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_access_logs_occurred_at ON access_logs(occurred_at);
`

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1")
	if err != nil {
		return nil, err
	}

	s := sqldb.New(db, sqldb.Dialect{Name: "sqlite3", Schema: schema, Placeholder: sqldb.Question})
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}
