package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/docsync/internal/app"
	"github.com/kurihiro0119/docsync/internal/config"
	"github.com/kurihiro0119/docsync/internal/domain"
	"github.com/kurihiro0119/docsync/internal/logging"
	"github.com/kurihiro0119/docsync/internal/mcp"
)

const version = "0.1.0"

var (
	cfgFile     string
	outputJSON  bool
	remoteAPI   bool
	userID      string
	startDate   string
	endDate     string
	granularity string
	limit       int

	repoName     string
	repoBranch   string
	repoUsername string
	repoPassword string
	repoNoSync   bool

	mcpRepo string
)

var rootCmd = &cobra.Command{
	Use:   "docsync",
	Short: "Incremental documentation sync tool",
	Long: `A CLI tool for keeping generated repository documentation in step with the code.

Registered repositories are re-analyzed when their documentation goes stale:
new commits are summarized, the documentation catalog is reconciled and a
changelog is recorded.`,
	SilenceUsage: true,
}

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage tracked repositories",
}

var repoAddCmd = &cobra.Command{
	Use:   "add [address]",
	Short: "Register a repository",
	Long:  `Register a repository in the local store. Its first sync processes the whole history.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoAdd,
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked repositories",
	Args:  cobra.NoArgs,
	RunE:  runRepoList,
}

var syncCmd = &cobra.Command{
	Use:   "sync [repository-id]",
	Short: "Sync a repository now",
	Long:  `Run a manual sync cycle. With --remote the sync is queued on the API server instead.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSync,
}

var statusCmd = &cobra.Command{
	Use:   "status [repository-id]",
	Short: "Show repository sync status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var changelogCmd = &cobra.Command{
	Use:   "changelog [repository-id]",
	Short: "Show the changelog of a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runChangelog,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog [repository-id]",
	Short: "Show the documentation catalog of a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalog,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sync statistics of all repositories",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var statsTimelineCmd = &cobra.Command{
	Use:   "timeline [repository-id]",
	Short: "Show sync outcomes per period",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatsTimeline,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve documentation tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&remoteAPI, "remote", false, "talk to the API server at API_ENDPOINT instead of the local store")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "user id sent to the API server")

	repoAddCmd.Flags().StringVar(&repoName, "name", "", "display name (default is derived from the address)")
	repoAddCmd.Flags().StringVar(&repoBranch, "branch", "main", "branch to follow")
	repoAddCmd.Flags().StringVar(&repoUsername, "username", "", "username for the remote")
	repoAddCmd.Flags().StringVar(&repoPassword, "password", "", "password or token for the remote")
	repoAddCmd.Flags().BoolVar(&repoNoSync, "no-sync", false, "register without automatic sync")

	for _, cmd := range []*cobra.Command{statusCmd, changelogCmd} {
		cmd.Flags().IntVar(&limit, "limit", 10, "number of entries to show")
	}

	statsTimelineCmd.Flags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD)")
	statsTimelineCmd.Flags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD)")
	statsTimelineCmd.Flags().StringVar(&granularity, "granularity", "day", "time granularity (day, week, month)")

	mcpCmd.Flags().StringVar(&mcpRepo, "repo", "", "default repository id for tool calls")

	rootCmd.AddCommand(repoCmd, syncCmd, statusCmd, changelogCmd, catalogCmd, statsCmd, mcpCmd)
	repoCmd.AddCommand(repoAddCmd, repoListCmd)
	statsCmd.AddCommand(statsTimelineCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var files []string
	if cfgFile != "" {
		files = append(files, cfgFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	// stdout carries command output
	logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	return cfg, nil
}

func withBackend(fn func(ctx context.Context, b backend) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return fn(ctx, b)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func shortRev(rev string) string {
	if len(rev) > 10 {
		return rev[:10]
	}
	if rev == "" {
		return "-"
	}
	return rev
}

func getTimeRange() domain.TimeRange {
	now := time.Now()
	start := now.AddDate(0, -1, 0)
	end := now

	if startDate != "" {
		if t, err := time.Parse("2006-01-02", startDate); err == nil {
			start = t
		}
	}

	if endDate != "" {
		if t, err := time.Parse("2006-01-02", endDate); err == nil {
			end = t
		}
	}

	return domain.TimeRange{
		Start:       start,
		End:         end,
		Granularity: granularity,
	}
}

func runRepoAdd(cmd *cobra.Command, args []string) error {
	address := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := app.OpenStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	name := repoName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(strings.TrimSuffix(address, "/")), ".git")
	}

	ctx := context.Background()
	repo := &domain.Repository{
		ID:         uuid.New().String(),
		Name:       name,
		Address:    address,
		Branch:     repoBranch,
		Username:   repoUsername,
		Password:   repoPassword,
		EnableSync: !repoNoSync,
		Status:     domain.RepositoryStatusCompleted,
	}
	if err := store.SaveRepository(ctx, repo); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}

	// a zero last update makes the repository due on the next poll
	doc := &domain.Document{
		RepositoryID: repo.ID,
		GitPath:      filepath.Join(cfg.RepositoriesDir, repo.ID),
	}
	if err := store.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	if outputJSON {
		return printJSON(repo)
	}
	fmt.Printf("Registered %s as %s\n", address, repo.ID)
	return nil
}

func runRepoList(cmd *cobra.Command, args []string) error {
	return withBackend(func(ctx context.Context, b backend) error {
		repos, err := b.ListRepositories(ctx)
		if err != nil {
			return fmt.Errorf("failed to list repositories: %w", err)
		}

		if outputJSON {
			return printJSON(repos)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Name", "Branch", "Version", "Status", "Sync"})
		for _, r := range repos {
			table.Append([]string{
				r.ID,
				r.Name,
				r.Branch,
				shortRev(r.Version),
				string(r.Status),
				fmt.Sprintf("%t", r.EnableSync),
			})
		}
		table.Render()
		return nil
	})
}

func runSync(cmd *cobra.Command, args []string) error {
	id := args[0]

	return withBackend(func(ctx context.Context, b backend) error {
		rec, err := b.Sync(ctx, id)
		if rec == nil && err != nil {
			return fmt.Errorf("failed to sync: %w", err)
		}
		if rec == nil {
			fmt.Printf("Sync of %s queued on the server\n", id)
			return nil
		}

		if outputJSON {
			if perr := printJSON(rec); perr != nil {
				return perr
			}
			return err
		}

		fmt.Printf("Sync %s: %s\n", rec.ID, rec.Status)
		fmt.Printf("From: %s  To: %s\n", shortRev(rec.FromVersion), shortRev(rec.ToVersion))
		if rec.ErrorMessage != "" {
			fmt.Printf("Message: %s\n", rec.ErrorMessage)
		}
		return err
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := args[0]

	return withBackend(func(ctx context.Context, b backend) error {
		detail, err := b.GetRepository(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get repository: %w", err)
		}
		records, err := b.ListSyncRecords(ctx, id, limit)
		if err != nil {
			return fmt.Errorf("failed to list sync records: %w", err)
		}

		if outputJSON {
			return printJSON(map[string]any{
				"repository": detail.Repository,
				"stats":      detail.Stats,
				"syncs":      records,
			})
		}

		repo, stats := detail.Repository, detail.Stats
		fmt.Printf("\nRepository: %s (%s)\n", repo.Name, repo.ID)
		fmt.Printf("Address: %s  Branch: %s  Version: %s\n\n", repo.DisplayAddress(), repo.Branch, shortRev(repo.Version))

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Metric", "Value"})
		table.Append([]string{"Attempts", fmt.Sprintf("%d", stats.Attempts)})
		table.Append([]string{"Successes", fmt.Sprintf("%d", stats.Successes)})
		table.Append([]string{"Failures", fmt.Sprintf("%d", stats.Failures)})
		table.Append([]string{"No new commits", fmt.Sprintf("%d", stats.NoWork)})
		table.Append([]string{"Success rate", fmt.Sprintf("%.0f%%", stats.SuccessRate*100)})
		table.Append([]string{"Last success", formatTime(stats.LastSuccessAt)})
		table.Render()

		fmt.Println()
		syncs := tablewriter.NewWriter(os.Stdout)
		syncs.SetHeader([]string{"Started", "Trigger", "Status", "From", "To", "Docs", "Message"})
		for _, r := range records {
			started := r.StartedAt
			syncs.Append([]string{
				formatTime(&started),
				string(r.Trigger),
				string(r.Status),
				shortRev(r.FromVersion),
				shortRev(r.ToVersion),
				fmt.Sprintf("%d", r.FileCount),
				r.ErrorMessage,
			})
		}
		syncs.Render()
		return nil
	})
}

func runChangelog(cmd *cobra.Command, args []string) error {
	id := args[0]

	return withBackend(func(ctx context.Context, b backend) error {
		entries, err := b.ListChangelog(ctx, id, limit)
		if err != nil {
			return fmt.Errorf("failed to list changelog: %w", err)
		}

		if outputJSON {
			return printJSON(entries)
		}

		for _, e := range entries {
			fmt.Printf("%s  %s\n", e.Date.Local().Format("2006-01-02"), e.Title)
			if e.Description != "" {
				fmt.Printf("    %s\n", e.Description)
			}
		}
		return nil
	})
}

func runCatalog(cmd *cobra.Command, args []string) error {
	id := args[0]

	return withBackend(func(ctx context.Context, b backend) error {
		tree, err := b.GetCatalog(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get catalog: %w", err)
		}

		if outputJSON {
			return printJSON(tree)
		}

		var walk func(nodes []*domain.CatalogTreeNode, depth int)
		walk = func(nodes []*domain.CatalogTreeNode, depth int) {
			for _, n := range nodes {
				fmt.Printf("%s%d. %s  [%s]\n", strings.Repeat("   ", depth), n.Order+1, n.Name, n.ID)
				walk(n.Children, depth+1)
			}
		}
		walk(tree, 0)
		return nil
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	return withBackend(func(ctx context.Context, b backend) error {
		stats, err := b.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		if outputJSON {
			return printJSON(stats)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Repository", "Version", "Attempts", "Success", "Failed", "No work", "Rate", "Last success"})
		for _, s := range stats {
			table.Append([]string{
				s.Name,
				shortRev(s.Version),
				fmt.Sprintf("%d", s.Attempts),
				fmt.Sprintf("%d", s.Successes),
				fmt.Sprintf("%d", s.Failures),
				fmt.Sprintf("%d", s.NoWork),
				fmt.Sprintf("%.0f%%", s.SuccessRate*100),
				formatTime(s.LastSuccessAt),
			})
		}
		table.Render()
		return nil
	})
}

func runStatsTimeline(cmd *cobra.Command, args []string) error {
	var id string
	if len(args) == 1 {
		id = args[0]
	}

	return withBackend(func(ctx context.Context, b backend) error {
		timeRange := getTimeRange()
		timeline, err := b.GetTimeline(ctx, id, timeRange)
		if err != nil {
			return fmt.Errorf("failed to get timeline: %w", err)
		}

		if outputJSON {
			return printJSON(timeline)
		}

		fmt.Printf("Time Range: %s to %s\n\n", timeRange.Start.Format("2006-01-02"), timeRange.End.Format("2006-01-02"))
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Period", "Success", "Failed"})
		for _, p := range timeline.Points {
			table.Append([]string{
				p.Period.Format("2006-01-02"),
				fmt.Sprintf("%d", p.Successes),
				fmt.Sprintf("%d", p.Failures),
			})
		}
		table.Render()
		return nil
	})
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := app.OpenStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	clients, err := app.NewClients(cfg, slog.Default())
	if err != nil {
		return err
	}

	registry := mcp.NewRegistry(store, clients.Chat, mcp.Config{
		DefaultRepository: mcpRepo,
		Options:           app.AnalysisOptions(cfg),
	})
	return mcp.ServeStdio(registry, version)
}
