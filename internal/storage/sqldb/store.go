// Package sqldb implements storage.Storage on database/sql. The sqlite and
// postgres packages supply the driver, schema and placeholder style.
package sqldb

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Placeholder is the bind variable style of a driver
type Placeholder int

const (
	// Question binds with ?
	Question Placeholder = iota
	// Dollar binds with $1, $2, ...
	Dollar
)

// Dialect describes what differs between the supported databases
type Dialect struct {
	Name        string
	Schema      string
	Placeholder Placeholder
}

// Store is a storage.Storage backed by a SQL database
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database. Call Migrate before use.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the schema if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Schema)
	return err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// q rewrites ? placeholders for the dialect
func (s *Store) q(query string) string {
	if s.dialect.Placeholder != Dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
