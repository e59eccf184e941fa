// Package docgen writes the page body of freshly reconciled catalog nodes.
package docgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kurihiro0119/docsync/internal/domain"
	"github.com/kurihiro0119/docsync/internal/llm"
	"github.com/kurihiro0119/docsync/internal/prompts"
)

// Store persists generated content
type Store interface {
	SaveCatalogContent(ctx context.Context, content *domain.CatalogContent) error
}

// Generator produces page content with bounded parallelism
type Generator struct {
	client      llm.Client
	store       Store
	options     llm.Options
	concurrency int
	logger      *slog.Logger
}

// NewGenerator creates a content generator. concurrency below 1 means 1.
func NewGenerator(client llm.Client, store Store, opts llm.Options, concurrency int, logger *slog.Logger) *Generator {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, store: store, options: opts, concurrency: concurrency, logger: logger}
}

// Generate writes content for every node and returns how many pages were
// stored. A failed page is logged and skipped; it never fails the batch.
func (g *Generator) Generate(ctx context.Context, repo *domain.Repository, nodes []*domain.CatalogNode, files []string) int {
	tree := strings.Join(files, "\n")

	var stored atomic.Int64
	eg := new(errgroup.Group)
	eg.SetLimit(g.concurrency)

	for _, node := range nodes {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := g.page(ctx, repo, node, tree); err != nil {
				g.logger.Warn("content generation failed", "repository_id", repo.ID, "node_id", node.ID, "error", err)
				return nil
			}
			stored.Add(1)
			return nil
		})
	}
	_ = eg.Wait()

	g.logger.Info("content generated", "repository_id", repo.ID, "nodes", len(nodes), "stored", stored.Load())
	return int(stored.Load())
}

func (g *Generator) page(ctx context.Context, repo *domain.Repository, node *domain.CatalogNode, tree string) error {
	prompt, err := prompts.RenderPageContent(prompts.PageContent{
		Repository: repo.DisplayAddress(),
		Title:      node.Name,
		Prompt:     node.Prompt,
		FileTree:   tree,
	})
	if err != nil {
		return err
	}

	body, err := g.client.Complete(ctx, prompt, g.options)
	if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("empty page for %q", node.Name)
	}

	return g.store.SaveCatalogContent(ctx, &domain.CatalogContent{
		NodeID:       node.ID,
		RepositoryID: repo.ID,
		Content:      body,
		UpdatedAt:    time.Now().UTC(),
	})
}
