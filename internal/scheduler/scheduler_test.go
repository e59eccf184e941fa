package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/docsync/internal/catalog"
	"github.com/kurihiro0119/docsync/internal/delta"
	"github.com/kurihiro0119/docsync/internal/domain"
	apperrors "github.com/kurihiro0119/docsync/internal/errors"
	"github.com/kurihiro0119/docsync/internal/storage"
	"github.com/kurihiro0119/docsync/internal/storage/sqlite"
)

type fakeExtractor struct {
	delta *delta.Delta
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, src delta.Source) (*delta.Delta, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	d := *f.delta
	d.FromRevision = src.Revision
	return &d, nil
}

type fakeFiles struct{}

func (fakeFiles) ListFiles(context.Context, string) ([]string, error) {
	return []string{"README.md", "a.md"}, nil
}

type fakeProposer struct {
	proposal *domain.CatalogProposal
	calls    int
	input    catalog.ProposalInput
}

func (p *fakeProposer) Propose(_ context.Context, in catalog.ProposalInput) (*domain.CatalogProposal, error) {
	p.calls++
	p.input = in
	return p.proposal, nil
}

type fakeContent struct {
	mu    sync.Mutex
	nodes []*domain.CatalogNode
}

func (c *fakeContent) Generate(_ context.Context, _ *domain.Repository, nodes []*domain.CatalogNode, _ []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = append(c.nodes, nodes...)
	return len(nodes)
}

type fakeChangelog struct {
	err   error
	calls int
	path  string
}

func (c *fakeChangelog) Generate(_ context.Context, _ *domain.Repository, path string) ([]*domain.ChangelogEntry, error) {
	c.calls++
	c.path = path
	return nil, c.err
}

type fixture struct {
	store     storage.Storage
	repo      *domain.Repository
	extractor *fakeExtractor
	proposer  *fakeProposer
	content   *fakeContent
	changelog *fakeChangelog
	sched     *Scheduler
	stale     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "docsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	stale := time.Now().UTC().Add(-10 * 24 * time.Hour).Truncate(time.Second)
	repo := &domain.Repository{
		Name:       "koala",
		Address:    "https://github.com/acme/koala.git",
		Branch:     "main",
		Version:    "m0",
		EnableSync: true,
		Status:     domain.RepositoryStatusCompleted,
	}
	require.NoError(t, store.SaveRepository(ctx, repo))
	require.NoError(t, store.SaveDocument(ctx, &domain.Document{RepositoryID: repo.ID, GitPath: t.TempDir(), LastUpdate: stale}))

	f := &fixture{
		store: store,
		repo:  repo,
		extractor: &fakeExtractor{delta: &delta.Delta{
			ToRevision: "m2",
			Commits: []delta.CommitDelta{
				{Commit: &domain.Commit{Sha: "m1", Parents: []string{"m0"}, Message: "add a.md"},
					Changes: []domain.FileChange{{Kind: domain.ChangeAdded, Path: "a.md"}}},
				{Commit: &domain.Commit{Sha: "m2", Parents: []string{"m1"}, Message: "extend a.md"},
					Changes: []domain.FileChange{{Kind: domain.ChangeModified, Path: "a.md"}}},
			},
		}},
		proposer:  &fakeProposer{proposal: &domain.CatalogProposal{}},
		content:   &fakeContent{},
		changelog: &fakeChangelog{},
		stale:     stale,
	}

	cfg := DefaultConfig()
	cfg.PollInterval = time.Hour
	cfg.FailureBackoff = time.Hour
	f.sched = New(cfg, Deps{
		Store:      store,
		Extractor:  f.extractor,
		Files:      fakeFiles{},
		Proposer:   f.proposer,
		Reconciler: catalog.NewReconciler(store, nil),
		Content:    f.content,
		Changelog:  f.changelog,
	})
	return f
}

func (f *fixture) lastRecord(t *testing.T) *domain.SyncRecord {
	t.Helper()
	recs, err := f.store.ListSyncRecords(context.Background(), f.repo.ID, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0]
}

func (f *fixture) documentsTouched(t *testing.T) bool {
	t.Helper()
	docs, err := f.store.ListDocuments(context.Background(), f.repo.ID)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	return docs[0].LastUpdate.After(f.stale)
}

func TestRunOnceAddsIntroNode(t *testing.T) {
	f := newFixture(t)
	f.proposer.proposal = &domain.CatalogProposal{Items: []*domain.ProposedNode{
		{Title: "Intro", Type: domain.NodeKindAdd, Prompt: "explain a.md"},
	}}

	worked, err := f.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	rec := f.lastRecord(t)
	assert.Equal(t, domain.SyncStatusSuccess, rec.Status)
	assert.Equal(t, "m0", rec.FromVersion)
	assert.Equal(t, "m2", rec.ToVersion)
	assert.Equal(t, 1, rec.FileCount)
	assert.Equal(t, domain.SyncTriggerAutomatic, rec.Trigger)
	assert.NotNil(t, rec.EndedAt)

	live, err := f.store.LiveCatalog(context.Background(), f.repo.ID)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "Intro", live[0].Name)
	assert.Equal(t, 0, live[0].Order)

	repo, err := f.store.GetRepository(context.Background(), f.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "m2", repo.Version)
	assert.True(t, f.documentsTouched(t))

	assert.Contains(t, f.proposer.input.Commits, " - Added: a.md")
	assert.Equal(t, []string{"README.md", "a.md"}, f.proposer.input.Files)
	require.Len(t, f.content.nodes, 1)
	assert.Equal(t, 1, f.changelog.calls)

	// documents are fresh now, nothing else is due
	worked, err = f.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestRunOnceDeletesNode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	docs, err := f.store.ListDocuments(ctx, f.repo.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.ApplyCatalog(ctx, &domain.CatalogBatch{
		RepositoryID: f.repo.ID,
		Writes: []domain.CatalogWrite{{Kind: domain.NodeKindAdd, Node: &domain.CatalogNode{
			ID: "x1", RepositoryID: f.repo.ID, DocumentID: docs[0].ID, Name: "Old page", Slug: "Oldpage", CreatedAt: time.Now().UTC(),
		}}},
		At: time.Now().UTC(),
	}))
	f.proposer.proposal = &domain.CatalogProposal{DeleteIDs: []string{"x1"}}

	_, err = f.sched.RunOnce(ctx)
	require.NoError(t, err)

	live, err := f.store.LiveCatalog(ctx, f.repo.ID)
	require.NoError(t, err)
	assert.Empty(t, live)

	rec := f.lastRecord(t)
	assert.Equal(t, domain.SyncStatusSuccess, rec.Status)
	assert.Equal(t, "m0", rec.FromVersion)
	assert.Equal(t, "m2", rec.ToVersion)
	assert.Empty(t, f.content.nodes)
}

func TestRunOnceWithoutNewCommits(t *testing.T) {
	f := newFixture(t)
	f.extractor.delta = &delta.Delta{ToRevision: "m0"}

	worked, err := f.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	rec := f.lastRecord(t)
	assert.Equal(t, domain.SyncStatusFailed, rec.Status)
	assert.Equal(t, "no new commits since m0", rec.ErrorMessage)
	assert.Empty(t, rec.ToVersion)

	repo, err := f.store.GetRepository(context.Background(), f.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "m0", repo.Version)
	assert.True(t, f.documentsTouched(t))
	assert.Zero(t, f.proposer.calls)
}

func TestRunOnceStructuralProposalFails(t *testing.T) {
	f := newFixture(t)
	f.proposer.proposal = &domain.CatalogProposal{DeleteIDs: []string{"ghost"}}

	_, err := f.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsStructural(err))

	rec := f.lastRecord(t)
	assert.Equal(t, domain.SyncStatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "ghost")

	repo, err := f.store.GetRepository(context.Background(), f.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "m0", repo.Version)
	assert.False(t, f.documentsTouched(t))
	assert.Zero(t, f.changelog.calls)
}

func TestChangelogFailureFailsCycle(t *testing.T) {
	f := newFixture(t)
	f.changelog.err = apperrors.NewTransientError("analysis \"changelog\" failed after 3 attempts", errors.New("503"))

	_, err := f.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))

	rec := f.lastRecord(t)
	assert.Equal(t, domain.SyncStatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "changelog")
	assert.Empty(t, rec.ToVersion)

	repo, err := f.store.GetRepository(context.Background(), f.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "m0", repo.Version)
	assert.False(t, f.documentsTouched(t))
}

func TestChangelogReadsFallbackWorkingCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	docs, err := f.store.ListDocuments(ctx, f.repo.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	docs[0].GitPath = ""
	require.NoError(t, f.store.SaveDocument(ctx, docs[0]))

	root := t.TempDir()
	f.sched.cfg.RepositoriesDir = root

	_, err = f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, f.repo.ID), f.changelog.path)
	assert.Equal(t, domain.SyncStatusSuccess, f.lastRecord(t).Status)
}

func TestExtractorErrorFailsRecord(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = errors.New("remote hung up")

	_, err := f.sched.RunOnce(context.Background())
	require.Error(t, err)

	rec := f.lastRecord(t)
	assert.Equal(t, domain.SyncStatusFailed, rec.Status)
	assert.Equal(t, "remote hung up", rec.ErrorMessage)
}

func TestRunServesManualTrigger(t *testing.T) {
	f := newFixture(t)
	// fresh documents: only a manual trigger causes a cycle
	require.NoError(t, f.store.TouchDocuments(context.Background(), f.repo.ID, time.Now().UTC()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sched.Run(ctx) }()

	require.NoError(t, f.sched.Trigger(f.repo.ID))
	require.Eventually(t, func() bool {
		recs, err := f.store.ListSyncRecords(context.Background(), f.repo.ID, 1)
		return err == nil && len(recs) == 1 && recs[0].Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	rec := f.lastRecord(t)
	assert.Equal(t, domain.SyncTriggerManual, rec.Trigger)
	assert.Equal(t, domain.SyncStatusSuccess, rec.Status)
}

func TestRunDisabledReturns(t *testing.T) {
	sched := New(Config{Enabled: false}, Deps{})
	require.NoError(t, sched.Run(context.Background()))
}
