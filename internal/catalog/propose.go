package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kurihiro0119/docsync/internal/analysis"
	"github.com/kurihiro0119/docsync/internal/domain"
	"github.com/kurihiro0119/docsync/internal/llm"
	"github.com/kurihiro0119/docsync/internal/prompts"
)

const proposalTag = "document_structure"

// Proposer asks the analysis collaborator how the catalog should change
type Proposer struct {
	invoker *analysis.Invoker
	options llm.Options
	stream  bool
}

// NewProposer creates a proposer
func NewProposer(invoker *analysis.Invoker, opts llm.Options, stream bool) *Proposer {
	return &Proposer{invoker: invoker, options: opts, stream: stream}
}

// ProposalInput is what the collaborator sees of a repository
type ProposalInput struct {
	Repository *domain.Repository
	Live       []*domain.CatalogNode
	Commits    string // rendered commit summary
	Files      []string
}

// Propose returns the catalog delta for in
func (p *Proposer) Propose(ctx context.Context, in ProposalInput) (*domain.CatalogProposal, error) {
	live, err := LiveJSON(in.Live)
	if err != nil {
		return nil, err
	}

	prompt, err := prompts.RenderCatalogAnalysis(prompts.CatalogAnalysis{
		Repository: in.Repository.DisplayAddress(),
		Catalog:    live,
		FileTree:   strings.Join(in.Files, "\n"),
		Commits:    in.Commits,
	})
	if err != nil {
		return nil, err
	}

	proposal, err := analysis.Run[domain.CatalogProposal](ctx, p.invoker, analysis.Request{
		Prompt:  prompt,
		Tag:     proposalTag,
		Options: p.options,
		Stream:  p.stream,
	})
	if err != nil {
		return nil, err
	}
	return &proposal, nil
}

type liveNode struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Name     string      `json:"name"`
	Prompt   string      `json:"prompt,omitempty"`
	Children []*liveNode `json:"children,omitempty"`
}

// LiveJSON renders the live catalog as the nested JSON shown to the collaborator
func LiveJSON(nodes []*domain.CatalogNode) (string, error) {
	var convert func([]*domain.CatalogTreeNode) []*liveNode
	convert = func(in []*domain.CatalogTreeNode) []*liveNode {
		out := make([]*liveNode, 0, len(in))
		for _, n := range in {
			out = append(out, &liveNode{
				ID:       n.ID,
				Title:    n.Slug,
				Name:     n.Name,
				Prompt:   n.Prompt,
				Children: convert(n.Children),
			})
		}
		return out
	}

	data, err := json.Marshal(convert(domain.BuildCatalogTree(nodes)))
	if err != nil {
		return "", fmt.Errorf("failed to encode live catalog: %w", err)
	}
	return string(data), nil
}
