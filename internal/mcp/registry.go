// Package mcp exposes repository documentation to external agents as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kurihiro0119/docsync/internal/domain"
	"github.com/kurihiro0119/docsync/internal/llm"
	"github.com/kurihiro0119/docsync/internal/prompts"
)

// Store is what the tools read
type Store interface {
	GetRepository(ctx context.Context, id string) (*domain.Repository, error)
	LiveCatalog(ctx context.Context, repositoryID string) ([]*domain.CatalogNode, error)
}

type tool struct {
	def     mcp.Tool
	handler server.ToolHandlerFunc
}

// Registry maps tool names to handlers. It is filled once in NewRegistry.
type Registry struct {
	store       Store
	client      llm.Client
	options     llm.Options
	defaultRepo string
	logger      *slog.Logger
	tools       map[string]tool
}

// Config configures the registry
type Config struct {
	// DefaultRepository is used when a call names no repository_id
	DefaultRepository string
	Options           llm.Options
	Logger            *slog.Logger
}

// NewRegistry builds the tool table
func NewRegistry(store Store, client llm.Client, cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		store:       store,
		client:      client,
		options:     cfg.Options,
		defaultRepo: cfg.DefaultRepository,
		logger:      logger,
	}
	r.tools = map[string]tool{
		"list_catalog":   {def: listCatalogTool(), handler: r.listCatalog},
		"ask_repository": {def: askRepositoryTool(), handler: r.askRepository},
	}
	return r
}

// Names returns the registered tool names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handler looks a tool up by name
func (r *Registry) Handler(name string) (server.ToolHandlerFunc, bool) {
	t, ok := r.tools[name]
	return t.handler, ok
}

// Register adds every tool to s
func (r *Registry) Register(s *server.MCPServer) {
	for _, name := range r.Names() {
		t := r.tools[name]
		s.AddTool(t.def, t.handler)
	}
}

// NewServer returns an MCP server carrying the registry's tools
func NewServer(r *Registry, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"docsync",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	r.Register(s)
	return s
}

// ServeStdio serves the registry over stdin and stdout until the client disconnects
func ServeStdio(r *Registry, version string) error {
	return server.ServeStdio(NewServer(r, version))
}

// --- list_catalog ---

func listCatalogTool() mcp.Tool {
	return mcp.NewTool("list_catalog",
		mcp.WithDescription("List the documentation catalog of a repository as an indented outline with node ids."),
		mcp.WithString("repository_id",
			mcp.Description("Repository id. Defaults to the repository the server was started for."),
		),
	)
}

func (r *Registry) listCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoID := req.GetString("repository_id", r.defaultRepo)
	if repoID == "" {
		return toolError(errors.New("repository_id is required"))
	}

	nodes, err := r.store.LiveCatalog(ctx, repoID)
	if err != nil {
		return toolError(err)
	}
	if len(nodes) == 0 {
		return mcp.NewToolResultText("The catalog is empty."), nil
	}

	var sb strings.Builder
	writeOutline(&sb, domain.BuildCatalogTree(nodes), 0)
	return mcp.NewToolResultText(sb.String()), nil
}

func writeOutline(sb *strings.Builder, nodes []*domain.CatalogTreeNode, depth int) {
	for _, n := range nodes {
		fmt.Fprintf(sb, "%s- %s  (%s)\n", strings.Repeat("  ", depth), n.Name, n.ID)
		writeOutline(sb, n.Children, depth+1)
	}
}

// --- ask_repository ---

func askRepositoryTool() mcp.Tool {
	return mcp.NewTool("ask_repository",
		mcp.WithDescription("Ask a question about a repository. The answer is grounded on its documentation catalog."),
		mcp.WithString("question",
			mcp.Description("The question to answer"),
			mcp.Required(),
		),
		mcp.WithString("repository_id",
			mcp.Description("Repository id. Defaults to the repository the server was started for."),
		),
	)
}

func (r *Registry) askRepository(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question := strings.TrimSpace(req.GetString("question", ""))
	if question == "" {
		return toolError(errors.New("question is required"))
	}
	repoID := req.GetString("repository_id", r.defaultRepo)
	if repoID == "" {
		return toolError(errors.New("repository_id is required"))
	}

	repo, err := r.store.GetRepository(ctx, repoID)
	if err != nil {
		return toolError(err)
	}
	nodes, err := r.store.LiveCatalog(ctx, repoID)
	if err != nil {
		return toolError(err)
	}
	sections := make([]string, 0, len(nodes))
	for _, n := range nodes {
		sections = append(sections, n.Name)
	}

	prompt, err := prompts.RenderAskRepository(prompts.AskRepository{
		Repository: repo.DisplayAddress(),
		Sections:   sections,
		Question:   question,
	})
	if err != nil {
		return toolError(err)
	}

	answer, err := r.answer(ctx, prompt, func(chunk string) {
		r.logger.Debug("answer chunk", "repository_id", repoID, "bytes", len(chunk))
	})
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(answer), nil
}

type result struct {
	text string
	err  error
}

// answer streams a generation. A producer goroutine publishes chunks and
// one terminal result; the caller selects over both and ctx.
func (r *Registry) answer(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan string)
	done := make(chan result, 1)

	go func() {
		stream, err := r.client.Stream(ctx, prompt, r.options)
		if err != nil {
			done <- result{err: err}
			return
		}
		defer stream.Close()

		var b strings.Builder
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				done <- result{text: b.String()}
				return
			}
			if err != nil {
				done <- result{err: err}
				return
			}
			b.WriteString(chunk)
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				done <- result{err: ctx.Err()}
				return
			}
		}
	}()

	for {
		select {
		case chunk := <-chunks:
			if onChunk != nil {
				onChunk(chunk)
			}
		case res := <-done:
			return res.text, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}
