// Package app wires configuration into the storage, analysis and sync components.
package app

import (
	"fmt"
	"log/slog"

	"github.com/kurihiro0119/docsync/internal/analysis"
	"github.com/kurihiro0119/docsync/internal/catalog"
	"github.com/kurihiro0119/docsync/internal/changelog"
	"github.com/kurihiro0119/docsync/internal/config"
	"github.com/kurihiro0119/docsync/internal/delta"
	"github.com/kurihiro0119/docsync/internal/docgen"
	"github.com/kurihiro0119/docsync/internal/llm"
	"github.com/kurihiro0119/docsync/internal/remote"
	"github.com/kurihiro0119/docsync/internal/scheduler"
	"github.com/kurihiro0119/docsync/internal/storage"
	"github.com/kurihiro0119/docsync/internal/storage/postgres"
	"github.com/kurihiro0119/docsync/internal/storage/sqlite"
	"github.com/kurihiro0119/docsync/internal/vcs/git"
)

// OpenStorage opens and migrates the configured store
func OpenStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

// Clients are the analysis collaborators, one per model
type Clients struct {
	Analysis llm.Client // catalog and changelog analysis
	Chat     llm.Client // page content and questions
}

// NewClients builds the collaborators from cfg
func NewClients(cfg *config.Config, logger *slog.Logger) (*Clients, error) {
	if err := cfg.ValidateAnalysis(); err != nil {
		return nil, err
	}

	chat, err := llm.NewOpenAIClient(llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIEndpoint,
		Model:   cfg.ChatModel,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}
	if cfg.Model() == cfg.ChatModel {
		return &Clients{Analysis: chat, Chat: chat}, nil
	}

	analysisClient, err := llm.NewOpenAIClient(llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIEndpoint,
		Model:   cfg.Model(),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis client: %w", err)
	}
	return &Clients{Analysis: analysisClient, Chat: chat}, nil
}

// AnalysisOptions returns the generation options of analysis calls
func AnalysisOptions(cfg *config.Config) llm.Options {
	return llm.Options{MaxTokens: cfg.AnalysisMaxTokens, Temperature: cfg.AnalysisTemperature}
}

// NewScheduler assembles the sync pipeline around store
func NewScheduler(cfg *config.Config, store storage.Storage, clients *Clients, logger *slog.Logger) *scheduler.Scheduler {
	gitClient := git.New(logger)

	// without a token the probe runs unauthenticated; private repositories then fall back to a pull
	prober := remote.NewGitHubProber(cfg.GitHubToken, logger)

	invoker := analysis.NewInvoker(clients.Analysis, analysis.DefaultPolicy(), logger)
	opts := AnalysisOptions(cfg)
	changes := changelog.NewGenerator(store, gitClient, invoker, changelog.Options{LLM: opts, Stream: cfg.AnalysisStreaming}, logger)
	pages := docgen.NewGenerator(clients.Chat, store, llm.Options{MaxTokens: cfg.AnalysisMaxTokens}, cfg.ContentConcurrency, logger)

	return scheduler.New(scheduler.Config{
		Enabled:         cfg.EnableIncrementalUpdate,
		PollInterval:    cfg.PollInterval,
		FailureBackoff:  cfg.FailureBackoff,
		StalenessWindow: cfg.StalenessWindow(),
		RepositoriesDir: cfg.RepositoriesDir,
	}, scheduler.Deps{
		Store:      store,
		Extractor:  delta.NewExtractor(gitClient, prober, logger),
		Files:      gitClient,
		Proposer:   catalog.NewProposer(invoker, opts, cfg.AnalysisStreaming),
		Reconciler: catalog.NewReconciler(store, logger),
		Content:    pages,
		Changelog:  changes,
		Logger:     logger,
	})
}
