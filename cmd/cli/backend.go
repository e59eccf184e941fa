package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kurihiro0119/docsync/internal/aggregator"
	"github.com/kurihiro0119/docsync/internal/app"
	"github.com/kurihiro0119/docsync/internal/config"
	"github.com/kurihiro0119/docsync/internal/domain"
	"github.com/kurihiro0119/docsync/internal/storage"
	"github.com/kurihiro0119/docsync/pkg/client"
)

// backend is what the read and sync commands need, served either by the
// local store or by a running API server
type backend interface {
	ListRepositories(ctx context.Context) ([]*domain.Repository, error)
	GetRepository(ctx context.Context, id string) (*client.RepositoryDetail, error)
	ListSyncRecords(ctx context.Context, id string, limit int) ([]*domain.SyncRecord, error)
	ListChangelog(ctx context.Context, id string, limit int) ([]*domain.ChangelogEntry, error)
	GetCatalog(ctx context.Context, id string) ([]*domain.CatalogTreeNode, error)
	GetStats(ctx context.Context) ([]*domain.SyncStats, error)
	GetTimeline(ctx context.Context, id string, timeRange domain.TimeRange) (*domain.SyncTimeline, error)
	// Sync runs or queues a manual sync; the record is nil when it was only queued
	Sync(ctx context.Context, id string) (*domain.SyncRecord, error)
	Close() error
}

func openBackend(cfg *config.Config) (backend, error) {
	if remoteAPI {
		return &remoteBackend{api: client.NewClient(cfg.APIEndpoint).WithUserID(userID)}, nil
	}
	store, err := app.OpenStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return &localBackend{cfg: cfg, store: store, agg: aggregator.NewAggregator(store)}, nil
}

type localBackend struct {
	cfg   *config.Config
	store storage.Storage
	agg   aggregator.Aggregator
}

func (b *localBackend) ListRepositories(ctx context.Context) ([]*domain.Repository, error) {
	return b.store.ListRepositories(ctx)
}

func (b *localBackend) GetRepository(ctx context.Context, id string) (*client.RepositoryDetail, error) {
	repo, err := b.store.GetRepository(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := b.agg.RepositoryStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &client.RepositoryDetail{Repository: repo, Stats: stats}, nil
}

func (b *localBackend) ListSyncRecords(ctx context.Context, id string, limit int) ([]*domain.SyncRecord, error) {
	return b.store.ListSyncRecords(ctx, id, limit)
}

func (b *localBackend) ListChangelog(ctx context.Context, id string, limit int) ([]*domain.ChangelogEntry, error) {
	return b.store.ListChangelog(ctx, id, limit)
}

func (b *localBackend) GetCatalog(ctx context.Context, id string) ([]*domain.CatalogTreeNode, error) {
	nodes, err := b.store.LiveCatalog(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.BuildCatalogTree(nodes), nil
}

func (b *localBackend) GetStats(ctx context.Context) ([]*domain.SyncStats, error) {
	return b.agg.AllStats(ctx)
}

func (b *localBackend) GetTimeline(ctx context.Context, id string, timeRange domain.TimeRange) (*domain.SyncTimeline, error) {
	return b.agg.Timeline(ctx, id, timeRange)
}

func (b *localBackend) Sync(ctx context.Context, id string) (*domain.SyncRecord, error) {
	clients, err := app.NewClients(b.cfg, slog.Default())
	if err != nil {
		return nil, err
	}
	return app.NewScheduler(b.cfg, b.store, clients, slog.Default()).SyncByID(ctx, id)
}

func (b *localBackend) Close() error {
	return b.store.Close()
}

type remoteBackend struct {
	api *client.Client
}

func (b *remoteBackend) ListRepositories(ctx context.Context) ([]*domain.Repository, error) {
	return b.api.ListRepositories(ctx)
}

func (b *remoteBackend) GetRepository(ctx context.Context, id string) (*client.RepositoryDetail, error) {
	return b.api.GetRepository(ctx, id)
}

func (b *remoteBackend) ListSyncRecords(ctx context.Context, id string, limit int) ([]*domain.SyncRecord, error) {
	return b.api.ListSyncRecords(ctx, id, limit)
}

func (b *remoteBackend) ListChangelog(ctx context.Context, id string, limit int) ([]*domain.ChangelogEntry, error) {
	return b.api.ListChangelog(ctx, id, limit)
}

func (b *remoteBackend) GetCatalog(ctx context.Context, id string) ([]*domain.CatalogTreeNode, error) {
	return b.api.GetCatalog(ctx, id)
}

func (b *remoteBackend) GetStats(ctx context.Context) ([]*domain.SyncStats, error) {
	return b.api.GetStats(ctx)
}

func (b *remoteBackend) GetTimeline(ctx context.Context, id string, timeRange domain.TimeRange) (*domain.SyncTimeline, error) {
	return b.api.GetTimeline(ctx, id, timeRange.Start, timeRange.End, timeRange.Granularity)
}

func (b *remoteBackend) Sync(ctx context.Context, id string) (*domain.SyncRecord, error) {
	return nil, b.api.TriggerSync(ctx, id)
}

func (b *remoteBackend) Close() error {
	return nil
}
