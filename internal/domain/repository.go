package domain

import (
	"strings"
	"time"
)

// RepositoryStatus represents the lifecycle status of a tracked repository
type RepositoryStatus string

const (
	RepositoryStatusPending    RepositoryStatus = "pending"
	RepositoryStatusProcessing RepositoryStatus = "processing"
	RepositoryStatusCompleted  RepositoryStatus = "completed"
	RepositoryStatusFailed     RepositoryStatus = "failed"
)

// Repository represents a tracked source repository
type Repository struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Address    string           `json:"address"` // clone URL
	Branch     string           `json:"branch"`
	Username   string           `json:"-"`
	Password   string           `json:"-"`
	Version    string           `json:"version"` // last processed revision
	EnableSync bool             `json:"enable_sync"`
	Status     RepositoryStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// DisplayAddress returns the address without a trailing .git suffix
func (r *Repository) DisplayAddress() string {
	return strings.TrimSuffix(r.Address, ".git")
}

// Credentials returns the repository credentials, nil when none are configured
func (r *Repository) Credentials() *Credentials {
	if r.Username == "" && r.Password == "" {
		return nil
	}
	return &Credentials{Username: r.Username, Password: r.Password}
}

// Credentials holds basic auth credentials for a remote
type Credentials struct {
	Username string
	Password string
}

// Document represents the generated documentation set of a repository
type Document struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repository_id"`
	GitPath      string    `json:"git_path"` // local working copy
	LastUpdate   time.Time `json:"last_update"`
	CreatedAt    time.Time `json:"created_at"`
}
