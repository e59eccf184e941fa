package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/docsync/internal/aggregator"
	"github.com/kurihiro0119/docsync/internal/domain"
	"github.com/kurihiro0119/docsync/internal/scheduler"
	"github.com/kurihiro0119/docsync/internal/storage"
	"github.com/kurihiro0119/docsync/internal/storage/sqlite"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []*domain.AccessLogEvent
}

func (r *captureRecorder) Record(event *domain.AccessLogEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return true
}

type fakeTrigger struct {
	ids []string
	err error
}

func (f *fakeTrigger) Trigger(id string) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	return nil
}

type testServer struct {
	router   *gin.Engine
	store    storage.Storage
	recorder *captureRecorder
	trigger  *fakeTrigger
	repo     *domain.Repository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "docsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	repo := &domain.Repository{
		Name:       "koala",
		Address:    "https://github.com/acme/koala.git",
		Branch:     "main",
		Password:   "s3cret",
		Version:    "m2",
		EnableSync: true,
		Status:     domain.RepositoryStatusCompleted,
	}
	require.NoError(t, store.SaveRepository(ctx, repo))
	doc := &domain.Document{RepositoryID: repo.ID, GitPath: t.TempDir(), LastUpdate: time.Now().UTC()}
	require.NoError(t, store.SaveDocument(ctx, doc))

	now := time.Now().UTC()
	require.NoError(t, store.ApplyCatalog(ctx, &domain.CatalogBatch{
		RepositoryID: repo.ID,
		Writes: []domain.CatalogWrite{
			{Kind: domain.NodeKindAdd, Node: &domain.CatalogNode{ID: "n1", RepositoryID: repo.ID, DocumentID: doc.ID, Name: "Overview", Slug: "Overview", CreatedAt: now}},
			{Kind: domain.NodeKindAdd, Node: &domain.CatalogNode{ID: "n2", RepositoryID: repo.ID, DocumentID: doc.ID, ParentID: "n1", Name: "Intro", Slug: "Intro", CreatedAt: now}},
		},
		At: now,
	}))
	require.NoError(t, store.SaveCatalogContent(ctx, &domain.CatalogContent{NodeID: "n2", RepositoryID: repo.ID, Content: "# Intro", UpdatedAt: now}))

	ts := &testServer{store: store, recorder: &captureRecorder{}, trigger: &fakeTrigger{}, repo: repo}
	handler := NewHandler(store, aggregator.NewAggregator(store), ts.trigger)
	ts.router = SetupRoutes(handler, ts.recorder, nil)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(UserIDHeader, "user-7")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var body map[string]json.RawMessage
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &body)
	}
	return w, body
}

func TestGetRepositoryHidesCredentials(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(t, http.MethodGet, "/api/v1/repositories/"+ts.repo.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "s3cret")

	var repo domain.Repository
	require.NoError(t, json.Unmarshal(body["data"], &repo))
	assert.Equal(t, "koala", repo.Name)
	assert.Equal(t, "m2", repo.Version)
}

func TestGetRepositoryNotFound(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(t, http.MethodGet, "/api/v1/repositories/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, string(body["error"]), "NOT_FOUND")
}

func TestGetCatalogNested(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(t, http.MethodGet, "/api/v1/repositories/"+ts.repo.ID+"/catalog")
	require.Equal(t, http.StatusOK, w.Code)

	var tree []struct {
		ID       string `json:"id"`
		Children []struct {
			ID string `json:"id"`
		} `json:"children"`
	}
	require.NoError(t, json.Unmarshal(body["data"], &tree))
	require.Len(t, tree, 1)
	assert.Equal(t, "n1", tree[0].ID)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "n2", tree[0].Children[0].ID)
}

func TestGetCatalogContent(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodGet, "/api/v1/repositories/"+ts.repo.ID+"/catalog/n2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# Intro")

	w, _ = ts.do(t, http.MethodGet, "/api/v1/repositories/other/catalog/n2")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerSync(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodPost, "/api/v1/repositories/"+ts.repo.ID+"/sync")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{ts.repo.ID}, ts.trigger.ids)

	ts.trigger.err = scheduler.ErrTriggerQueueFull
	w, _ = ts.do(t, http.MethodPost, "/api/v1/repositories/"+ts.repo.ID+"/sync")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAccessLogRecorded(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodGet, "/health")
	ts.do(t, http.MethodGet, "/api/v1/repositories/"+ts.repo.ID+"/syncs")

	ts.recorder.mu.Lock()
	defer ts.recorder.mu.Unlock()
	require.Len(t, ts.recorder.events, 1)
	ev := ts.recorder.events[0]
	assert.Equal(t, "repository", ev.ResourceType)
	assert.Equal(t, ts.repo.ID, ev.ResourceID)
	assert.Equal(t, "user-7", ev.UserID)
	assert.Equal(t, http.MethodGet, ev.Method)
	assert.Equal(t, http.StatusOK, ev.StatusCode)
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(t, http.MethodGet, "/api/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats []domain.SyncStats
	require.NoError(t, json.Unmarshal(body["data"], &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, ts.repo.ID, stats[0].RepositoryID)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}
