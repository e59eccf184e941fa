// Package catalog merges a proposed documentation catalog into the persisted one.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kurihiro0119/docsync/internal/domain"
	apperrors "github.com/kurihiro0119/docsync/internal/errors"
	"github.com/kurihiro0119/docsync/internal/metrics"
)

// Store is the persistence the reconciler needs
type Store interface {
	LiveCatalog(ctx context.Context, repositoryID string) ([]*domain.CatalogNode, error)
	ApplyCatalog(ctx context.Context, batch *domain.CatalogBatch) error
}

// Reconciler turns proposals into catalog batches
type Reconciler struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func(slug string) string
}

// NewReconciler creates a reconciler writing to store
func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  NewNodeID,
	}
}

// NewNodeID returns a fresh node identity: a dashless uuid followed by the slug
func NewNodeID(slug string) string {
	return strings.ReplaceAll(uuid.New().String(), "-", "") + slug
}

// Slug strips all whitespace from a title
func Slug(title string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, title)
}

// Reconcile loads the live catalog, plans the proposal against it and
// writes the result as one batch. It returns the nodes written, parents
// before children.
func (r *Reconciler) Reconcile(ctx context.Context, repositoryID, documentID string, proposal *domain.CatalogProposal) ([]*domain.CatalogNode, error) {
	live, err := r.store.LiveCatalog(ctx, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load live catalog: %w", err)
	}

	batch, err := r.Plan(repositoryID, documentID, live, proposal)
	if err != nil {
		return nil, err
	}

	if err := r.store.ApplyCatalog(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to apply catalog: %w", err)
	}

	written := make([]*domain.CatalogNode, 0, len(batch.Writes))
	for _, w := range batch.Writes {
		written = append(written, w.Node)
		metrics.CatalogNodesWritten.WithLabelValues(string(w.Kind)).Inc()
	}
	metrics.CatalogNodesWritten.WithLabelValues("delete").Add(float64(len(batch.DeleteIDs)))

	r.logger.Info("catalog reconciled", "repository_id", repositoryID,
		"deleted", len(batch.DeleteIDs), "written", len(written))
	return written, nil
}

// Plan validates a proposal against the live catalog and builds the batch.
// Nothing is written; any structural problem is reported before a batch exists.
func (r *Reconciler) Plan(repositoryID, documentID string, live []*domain.CatalogNode, proposal *domain.CatalogProposal) (*domain.CatalogBatch, error) {
	if proposal == nil {
		proposal = &domain.CatalogProposal{}
	}

	liveIDs := make(map[string]bool, len(live))
	for _, n := range live {
		liveIDs[n.ID] = true
	}

	deleted := make(map[string]bool, len(proposal.DeleteIDs))
	for _, id := range proposal.DeleteIDs {
		if !liveIDs[id] {
			return nil, apperrors.NewStructuralError("delete_id %q is not in the live catalog", id)
		}
		deleted[id] = true
	}

	proposedIDs := make(map[string]bool)
	if err := collectIDs(proposal.Items, proposedIDs); err != nil {
		return nil, err
	}

	p := &planner{
		r:            r,
		repositoryID: repositoryID,
		documentID:   documentID,
		liveIDs:      liveIDs,
		deleted:      deleted,
		written:      map[string]bool{},
		at:           r.now(),
	}

	// top-level items share one order scope per parent they attach to
	counters := map[string]int{}
	for _, item := range proposal.Items {
		if item.ParentID != "" {
			attachable := (liveIDs[item.ParentID] && !deleted[item.ParentID]) || p.written[item.ParentID]
			if !attachable {
				if proposedIDs[item.ParentID] {
					return nil, apperrors.NewStructuralError("node %q is declared before its parent %q", item.Title, item.ParentID)
				}
				return nil, apperrors.NewStructuralError("node %q references unknown parent %q", item.Title, item.ParentID)
			}
		}
		if err := p.walk(item, item.ParentID, counters); err != nil {
			return nil, err
		}
	}

	return &domain.CatalogBatch{
		RepositoryID: repositoryID,
		DeleteIDs:    append([]string(nil), proposal.DeleteIDs...),
		Writes:       p.writes,
		At:           p.at,
	}, nil
}

// collectIDs gathers the explicit identities of a proposed tree and rejects duplicates
func collectIDs(items []*domain.ProposedNode, into map[string]bool) error {
	for _, item := range items {
		if item == nil {
			return apperrors.NewStructuralError("empty node in proposal")
		}
		if item.ID != "" {
			if into[item.ID] {
				return apperrors.NewStructuralError("node id %q appears more than once", item.ID)
			}
			into[item.ID] = true
		}
		if err := collectIDs(item.Children, into); err != nil {
			return err
		}
	}
	return nil
}

type planner struct {
	r            *Reconciler
	repositoryID string
	documentID   string
	liveIDs      map[string]bool
	deleted      map[string]bool
	written      map[string]bool
	at           time.Time
	writes       []domain.CatalogWrite
}

func (p *planner) walk(item *domain.ProposedNode, parentID string, counters map[string]int) error {
	kind, err := p.kindOf(item)
	if err != nil {
		return err
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = strings.TrimSpace(item.Name)
	}
	if title == "" {
		return apperrors.NewStructuralError("node %q has no title", item.ID)
	}
	slug := Slug(title)

	name := strings.TrimSpace(item.Name)
	if name == "" {
		name = title
	}

	id := item.ID
	if id == "" {
		id = p.r.newID(slug)
	}

	if p.written[id] {
		return apperrors.NewStructuralError("node id %q is written twice", id)
	}
	p.written[id] = true

	order := counters[parentID]
	counters[parentID] = order + 1

	p.writes = append(p.writes, domain.CatalogWrite{
		Kind: kind,
		Node: &domain.CatalogNode{
			ID:           id,
			RepositoryID: p.repositoryID,
			DocumentID:   p.documentID,
			ParentID:     parentID,
			Name:         name,
			Slug:         slug,
			Description:  slug,
			Prompt:       item.Prompt,
			Order:        order,
			CreatedAt:    p.at,
		},
	})

	children := map[string]int{}
	for _, child := range item.Children {
		if err := p.walk(child, id, children); err != nil {
			return err
		}
	}
	return nil
}

func (p *planner) kindOf(item *domain.ProposedNode) (domain.NodeKind, error) {
	switch item.Type {
	case domain.NodeKindUpdate:
		if item.ID == "" {
			return "", apperrors.NewStructuralError("update of %q carries no id", item.Title)
		}
		if !p.liveIDs[item.ID] || p.deleted[item.ID] {
			return "", apperrors.NewStructuralError("update id %q is not in the live catalog", item.ID)
		}
		return domain.NodeKindUpdate, nil
	case domain.NodeKindAdd, "":
		if item.ID != "" && p.liveIDs[item.ID] && !p.deleted[item.ID] {
			return "", apperrors.NewStructuralError("add id %q is already live", item.ID)
		}
		return domain.NodeKindAdd, nil
	default:
		return "", apperrors.NewStructuralError("node %q has unknown type %q", item.Title, item.Type)
	}
}
