// Package scheduler selects repositories whose documentation went stale and
// runs one synchronization cycle for each of them.
//
// One scheduler loop runs per process. Several processes sharing a store
// are not coordinated and may interleave sync records of the same repository.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/docsync/internal/catalog"
	"github.com/kurihiro0119/docsync/internal/delta"
	"github.com/kurihiro0119/docsync/internal/domain"
	"github.com/kurihiro0119/docsync/internal/metrics"
)

// ErrTriggerQueueFull is returned when too many manual syncs are waiting
var ErrTriggerQueueFull = errors.New("manual sync queue is full")

// Store is the persistence the scheduler needs
type Store interface {
	GetRepository(ctx context.Context, id string) (*domain.Repository, error)
	ListDocuments(ctx context.Context, repositoryID string) ([]*domain.Document, error)
	NextSyncCandidate(ctx context.Context, staleBefore time.Time) (*domain.Repository, []*domain.Document, error)
	LiveCatalog(ctx context.Context, repositoryID string) ([]*domain.CatalogNode, error)
	CreateSyncRecord(ctx context.Context, rec *domain.SyncRecord) error
	FinishSyncRecord(ctx context.Context, rec *domain.SyncRecord) error
	TouchDocuments(ctx context.Context, repositoryID string, at time.Time) error
	UpdateRepositoryVersion(ctx context.Context, id, version string, at time.Time) error
}

// Extractor computes the commits a working copy gained since a revision
type Extractor interface {
	Extract(ctx context.Context, src delta.Source) (*delta.Delta, error)
}

// FileLister lists the tracked files of a working copy
type FileLister interface {
	ListFiles(ctx context.Context, path string) ([]string, error)
}

// Proposer produces the catalog delta for a repository
type Proposer interface {
	Propose(ctx context.Context, in catalog.ProposalInput) (*domain.CatalogProposal, error)
}

// Reconciler merges a proposal into the persisted catalog
type Reconciler interface {
	Reconcile(ctx context.Context, repositoryID, documentID string, proposal *domain.CatalogProposal) ([]*domain.CatalogNode, error)
}

// ContentGenerator writes the pages of freshly written nodes
type ContentGenerator interface {
	Generate(ctx context.Context, repo *domain.Repository, nodes []*domain.CatalogNode, files []string) int
}

// ChangelogGenerator records history for new commits
type ChangelogGenerator interface {
	Generate(ctx context.Context, repo *domain.Repository, path string) ([]*domain.ChangelogEntry, error)
}

// Config tunes the loop
type Config struct {
	Enabled         bool
	PollInterval    time.Duration // idle wait when nothing is due
	FailureBackoff  time.Duration // wait after a failed cycle
	StalenessWindow time.Duration
	StartupDelay    time.Duration
	RepositoriesDir string // working copies of documents without a git path
}

// DefaultConfig returns the loop defaults
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		PollInterval:    time.Minute,
		FailureBackoff:  time.Minute,
		StalenessWindow: 5 * 24 * time.Hour,
		RepositoriesDir: "./repositories",
	}
}

// Deps are the collaborators of a cycle. Content and Changelog are optional.
type Deps struct {
	Store      Store
	Extractor  Extractor
	Files      FileLister
	Proposer   Proposer
	Reconciler Reconciler
	Content    ContentGenerator
	Changelog  ChangelogGenerator
	Logger     *slog.Logger
}

// Scheduler drives sync cycles
type Scheduler struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	manual chan string
	now    func() time.Time
}

// New creates a scheduler
func New(cfg Config, deps Deps) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.FailureBackoff <= 0 {
		cfg.FailureBackoff = cfg.PollInterval
	}
	return &Scheduler{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		manual: make(chan string, 16),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Trigger asks the running loop to sync a repository regardless of staleness
func (s *Scheduler) Trigger(repositoryID string) error {
	select {
	case s.manual <- repositoryID:
		return nil
	default:
		return ErrTriggerQueueFull
	}
}

// Run polls for due repositories until ctx is done. A failed cycle is logged
// and followed by the failure backoff; it never stops the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Warn("incremental update is disabled, scheduler not started")
		return nil
	}
	s.logger.Info("scheduler started", "poll_interval", s.cfg.PollInterval, "staleness_window", s.cfg.StalenessWindow)

	if err := s.wait(ctx, s.cfg.StartupDelay); err != nil {
		return nil
	}

	for {
		worked, err := s.RunOnce(ctx)

		wait := time.Duration(0)
		switch {
		case ctx.Err() != nil:
			s.logger.Info("scheduler stopped")
			return nil
		case err != nil:
			s.logger.Error("sync cycle failed", "error", err)
			wait = s.cfg.FailureBackoff
		case !worked:
			wait = s.cfg.PollInterval
		}

		if err := s.wait(ctx, wait); err != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}
	}
}

// wait sleeps for d while serving manual triggers. It returns ctx.Err() once ctx is done.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-s.manual:
			if _, err := s.SyncByID(ctx, id); err != nil {
				s.logger.Error("manual sync failed", "repository_id", id, "error", err)
			}
		case <-timer.C:
			return nil
		}
	}
}

// RunOnce syncs the next due repository. It reports whether one was due.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	staleBefore := s.now().Add(-s.cfg.StalenessWindow)
	repo, docs, err := s.deps.Store.NextSyncCandidate(ctx, staleBefore)
	if err != nil {
		return false, fmt.Errorf("failed to select sync candidate: %w", err)
	}
	if repo == nil {
		return false, nil
	}

	_, err = s.SyncRepository(ctx, repo, docs, domain.SyncTriggerAutomatic)
	return true, err
}

// SyncByID runs a manual cycle over every document of a repository
func (s *Scheduler) SyncByID(ctx context.Context, repositoryID string) (*domain.SyncRecord, error) {
	repo, err := s.deps.Store.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	docs, err := s.deps.Store.ListDocuments(ctx, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("repository %s has no documents", repositoryID)
	}
	return s.SyncRepository(ctx, repo, docs, domain.SyncTriggerManual)
}

// SyncRepository runs one cycle and returns its finished record. The
// record is finished even when ctx is cancelled mid-cycle.
func (s *Scheduler) SyncRepository(ctx context.Context, repo *domain.Repository, docs []*domain.Document, trigger domain.SyncTrigger) (*domain.SyncRecord, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("repository %s has no documents", repo.ID)
	}
	started := time.Now()

	rec := &domain.SyncRecord{
		ID:           uuid.New().String(),
		RepositoryID: repo.ID,
		Status:       domain.SyncStatusInProgress,
		StartedAt:    s.now(),
		FromVersion:  repo.Version,
		FileCount:    len(docs),
		Trigger:      trigger,
	}
	if err := s.deps.Store.CreateSyncRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create sync record: %w", err)
	}

	logger := s.logger.With("repository_id", repo.ID, "sync_id", rec.ID, "trigger", trigger)
	logger.Info("sync started", "from_version", repo.Version, "documents", len(docs))

	status, cycleErr := s.cycle(ctx, logger, repo, docs, rec)

	// bookkeeping must land even if the cycle was cancelled
	finishCtx := context.WithoutCancel(ctx)
	if cycleErr != nil {
		rec.Fail(cycleErr.Error(), s.now())
	}
	if err := s.deps.Store.FinishSyncRecord(finishCtx, rec); err != nil {
		logger.Error("failed to finish sync record", "error", err)
		if cycleErr == nil {
			cycleErr = fmt.Errorf("failed to finish sync record: %w", err)
		}
	}

	metrics.SyncCycles.WithLabelValues(status, string(trigger)).Inc()
	metrics.SyncDuration.Observe(time.Since(started).Seconds())

	if cycleErr != nil {
		logger.Warn("sync failed", "error", cycleErr)
		return rec, cycleErr
	}
	logger.Info("sync finished", "status", rec.Status, "to_version", rec.ToVersion)
	return rec, nil
}

// cycle runs the pipeline and fills rec on success or no work. It returns
// the metric status label and the error that failed the cycle.
func (s *Scheduler) cycle(ctx context.Context, logger *slog.Logger, repo *domain.Repository, docs []*domain.Document, rec *domain.SyncRecord) (string, error) {
	doc := docs[0]
	path := s.workingCopy(repo, doc)

	d, err := s.deps.Extractor.Extract(ctx, delta.Source{
		Path:        path,
		Address:     repo.Address,
		Branch:      repo.Branch,
		Revision:    repo.Version,
		Credentials: repo.Credentials(),
	})
	if err != nil {
		return "failed", err
	}

	if !d.HasWork() {
		rec.Fail(fmt.Sprintf("no new commits since %s", repo.Version), s.now())
		if err := s.deps.Store.TouchDocuments(context.WithoutCancel(ctx), repo.ID, s.now()); err != nil {
			return "failed", fmt.Errorf("failed to touch documents: %w", err)
		}
		logger.Info("no new commits", "version", repo.Version)
		return "no_work", nil
	}

	files, err := s.deps.Files.ListFiles(ctx, path)
	if err != nil {
		return "failed", fmt.Errorf("failed to list files: %w", err)
	}

	live, err := s.deps.Store.LiveCatalog(ctx, repo.ID)
	if err != nil {
		return "failed", fmt.Errorf("failed to load live catalog: %w", err)
	}

	proposal, err := s.deps.Proposer.Propose(ctx, catalog.ProposalInput{
		Repository: repo,
		Live:       live,
		Commits:    d.Summary(),
		Files:      files,
	})
	if err != nil {
		return "failed", err
	}

	written, err := s.deps.Reconciler.Reconcile(ctx, repo.ID, doc.ID, proposal)
	if err != nil {
		return "failed", err
	}

	if s.deps.Content != nil && len(written) > 0 {
		s.deps.Content.Generate(ctx, repo, written, files)
	}

	if s.deps.Changelog != nil {
		if _, err := s.deps.Changelog.Generate(ctx, repo, path); err != nil {
			return "failed", fmt.Errorf("changelog generation failed: %w", err)
		}
	}

	at := s.now()
	finishCtx := context.WithoutCancel(ctx)
	if err := s.deps.Store.UpdateRepositoryVersion(finishCtx, repo.ID, d.ToRevision, at); err != nil {
		return "failed", fmt.Errorf("failed to advance repository version: %w", err)
	}
	if err := s.deps.Store.TouchDocuments(finishCtx, repo.ID, at); err != nil {
		return "failed", fmt.Errorf("failed to touch documents: %w", err)
	}

	rec.Succeed(d.ToRevision, at)
	return "success", nil
}

func (s *Scheduler) workingCopy(repo *domain.Repository, doc *domain.Document) string {
	if doc.GitPath != "" {
		return doc.GitPath
	}
	return filepath.Join(s.cfg.RepositoriesDir, repo.ID)
}
