package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/docsync/internal/domain"
	apperrors "github.com/kurihiro0119/docsync/internal/errors"
	"github.com/kurihiro0119/docsync/internal/storage"
)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "docsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRepository(t *testing.T, s storage.Storage, status domain.RepositoryStatus, enable bool, lastUpdate time.Time) *domain.Repository {
	t.Helper()
	ctx := context.Background()
	repo := &domain.Repository{
		Name:       "koala",
		Address:    "https://github.com/acme/koala.git",
		Branch:     "main",
		Version:    "m0",
		EnableSync: enable,
		Status:     status,
	}
	require.NoError(t, s.SaveRepository(ctx, repo))
	require.NoError(t, s.SaveDocument(ctx, &domain.Document{RepositoryID: repo.ID, GitPath: "/tmp/koala", LastUpdate: lastUpdate}))
	return repo
}

func TestRepositoryRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	repo := seedRepository(t, s, domain.RepositoryStatusCompleted, true, time.Now())

	got, err := s.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "koala", got.Name)
	assert.Equal(t, "m0", got.Version)
	assert.True(t, got.EnableSync)
	assert.Equal(t, domain.RepositoryStatusCompleted, got.Status)

	require.NoError(t, s.UpdateRepositoryVersion(ctx, repo.ID, "m2", time.Now()))
	got, err = s.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "m2", got.Version)

	_, err = s.GetRepository(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestNextSyncCandidate(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()
	staleBefore := now.Add(-5 * 24 * time.Hour)

	seedRepository(t, s, domain.RepositoryStatusCompleted, true, now.Add(-time.Hour))        // fresh
	seedRepository(t, s, domain.RepositoryStatusCompleted, false, now.Add(-30*24*time.Hour)) // sync disabled
	seedRepository(t, s, domain.RepositoryStatusPending, true, now.Add(-30*24*time.Hour))    // not completed

	repo, docs, err := s.NextSyncCandidate(ctx, staleBefore)
	require.NoError(t, err)
	assert.Nil(t, repo)
	assert.Empty(t, docs)

	due := seedRepository(t, s, domain.RepositoryStatusCompleted, true, now.Add(-6*24*time.Hour))
	repo, docs, err = s.NextSyncCandidate(ctx, staleBefore)
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Equal(t, due.ID, repo.ID)
	assert.Len(t, docs, 1)

	require.NoError(t, s.TouchDocuments(ctx, due.ID, now))
	repo, _, err = s.NextSyncCandidate(ctx, staleBefore)
	require.NoError(t, err)
	assert.Nil(t, repo)
}

func TestApplyCatalogUpdateKeepsOneLiveNode(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	at := time.Now().UTC()

	first := &domain.CatalogBatch{
		RepositoryID: "r1",
		At:           at,
		Writes: []domain.CatalogWrite{
			{Kind: domain.NodeKindAdd, Node: &domain.CatalogNode{ID: "x1", Name: "Overview", Slug: "Overview", Order: 0}},
			{Kind: domain.NodeKindAdd, Node: &domain.CatalogNode{ID: "x2", Name: "Setup", Slug: "Setup", Order: 1}},
		},
	}
	require.NoError(t, s.ApplyCatalog(ctx, first))

	second := &domain.CatalogBatch{
		RepositoryID: "r1",
		At:           at.Add(time.Minute),
		DeleteIDs:    []string{"x2"},
		Writes: []domain.CatalogWrite{
			{Kind: domain.NodeKindUpdate, Node: &domain.CatalogNode{ID: "x1", Name: "Overview v2", Slug: "Overviewv2", Order: 0}},
		},
	}
	require.NoError(t, s.ApplyCatalog(ctx, second))

	live, err := s.LiveCatalog(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "x1", live[0].ID)
	assert.Equal(t, "Overview v2", live[0].Name)
	assert.False(t, live[0].IsDeleted)

	// re-inserting the soft-deleted id makes it live again
	third := &domain.CatalogBatch{
		RepositoryID: "r1",
		Writes: []domain.CatalogWrite{
			{Kind: domain.NodeKindAdd, Node: &domain.CatalogNode{ID: "x2", Name: "Setup", Slug: "Setup", Order: 1}},
		},
	}
	require.NoError(t, s.ApplyCatalog(ctx, third))
	live, err = s.LiveCatalog(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, live, 2)
}

func TestApplyCatalogIsAtomic(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyCatalog(ctx, &domain.CatalogBatch{
		RepositoryID: "r1",
		Writes:       []domain.CatalogWrite{{Kind: domain.NodeKindAdd, Node: &domain.CatalogNode{ID: "a", Name: "A", Slug: "A"}}},
	}))

	// second live row with the same id violates the live-id index
	err := s.ApplyCatalog(ctx, &domain.CatalogBatch{
		RepositoryID: "r1",
		DeleteIDs:    []string{"a"},
		Writes: []domain.CatalogWrite{
			{Kind: domain.NodeKindAdd, Node: &domain.CatalogNode{ID: "b", Name: "B", Slug: "B"}},
			{Kind: domain.NodeKindAdd, Node: &domain.CatalogNode{ID: "b", Name: "B", Slug: "B"}},
		},
	})
	require.Error(t, err)

	live, err := s.LiveCatalog(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "a", live[0].ID)
}

func TestSyncRecordFinishesOnce(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	rec := &domain.SyncRecord{RepositoryID: "r1", FromVersion: "m0", FileCount: 2, Trigger: domain.SyncTriggerAutomatic}
	require.NoError(t, s.CreateSyncRecord(ctx, rec))
	assert.Equal(t, domain.SyncStatusInProgress, rec.Status)

	rec.Succeed("m2", time.Now())
	require.NoError(t, s.FinishSyncRecord(ctx, rec))

	rec.Fail("late failure", time.Now())
	assert.Error(t, s.FinishSyncRecord(ctx, rec))

	records, err := s.ListSyncRecords(ctx, "r1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.SyncStatusSuccess, records[0].Status)
	assert.Equal(t, "m0", records[0].FromVersion)
	assert.Equal(t, "m2", records[0].ToVersion)
	assert.NotNil(t, records[0].EndedAt)
	assert.Empty(t, records[0].ErrorMessage)
}

func TestChangelog(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, ok, err := s.LatestChangelogDate(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok)

	d1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.AppendChangelog(ctx, []*domain.ChangelogEntry{
		{RepositoryID: "r1", Date: d1, Title: "first"},
		{RepositoryID: "r1", Date: d2, Title: "second"},
	}))

	latest, ok, err := s.LatestChangelogDate(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, d2.Equal(latest))

	entries, err := s.ListChangelog(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Title)
	assert.Empty(t, entries[0].Author)
}

func TestCatalogContentAndAccessLog(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCatalogContent(ctx, &domain.CatalogContent{NodeID: "n1", RepositoryID: "r1", Content: "v1"}))
	require.NoError(t, s.SaveCatalogContent(ctx, &domain.CatalogContent{NodeID: "n1", RepositoryID: "r1", Content: "v2"}))
	c, err := s.GetCatalogContent(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "v2", c.Content)

	_, err = s.GetCatalogContent(ctx, "n2")
	assert.True(t, apperrors.IsNotFound(err))

	assert.NoError(t, s.SaveAccessLog(ctx, &domain.AccessLogEvent{
		Path: "/api/v1/repositories", Method: "GET", StatusCode: 200,
		Latency: 3 * time.Millisecond, OccurredAt: time.Now(),
	}))
}
