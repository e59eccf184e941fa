package domain

import "time"

// CatalogNode is one entry in the documentation table of contents.
// The tree is stored through parent pointers; an empty ParentID is a root.
type CatalogNode struct {
	ID           string     `json:"id"`
	RepositoryID string     `json:"repository_id"`
	DocumentID   string     `json:"document_id"`
	ParentID     string     `json:"parent_id,omitempty"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	Description  string     `json:"description"`
	Prompt       string     `json:"prompt,omitempty"`
	Order        int        `json:"order"`
	IsDeleted    bool       `json:"is_deleted"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NodeKind tells whether a proposed node is new or revises an existing one
type NodeKind string

const (
	NodeKindAdd    NodeKind = "add"
	NodeKindUpdate NodeKind = "update"
)

// CatalogProposal is the catalog delta proposed by the analysis collaborator
type CatalogProposal struct {
	DeleteIDs []string        `json:"delete_id"`
	Items     []*ProposedNode `json:"items"`
}

// ProposedNode is one node of a proposed catalog tree.
// ID is empty for new nodes and set for nodes being revised.
// ParentID is only honoured on top-level items and attaches them under an existing node.
type ProposedNode struct {
	ID       string          `json:"id"`
	ParentID string          `json:"parent_id,omitempty"`
	Title    string          `json:"title"`
	Name     string          `json:"name"`
	Type     NodeKind        `json:"type"`
	Prompt   string          `json:"prompt"`
	Children []*ProposedNode `json:"children,omitempty"`
}

// CatalogWrite is a node scheduled for insertion together with how it came to be
type CatalogWrite struct {
	Kind NodeKind
	Node *CatalogNode
}

// CatalogBatch is the set of writes of one reconciliation cycle
type CatalogBatch struct {
	RepositoryID string
	DeleteIDs    []string // soft-deleted before anything else
	Writes       []CatalogWrite
	At           time.Time
}

// CatalogContent is the generated body of one catalog node
type CatalogContent struct {
	NodeID       string    `json:"node_id"`
	RepositoryID string    `json:"repository_id"`
	Content      string    `json:"content"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CatalogTreeNode is a nested view of the live catalog
type CatalogTreeNode struct {
	*CatalogNode
	Children []*CatalogTreeNode `json:"children,omitempty"`
}

// BuildCatalogTree nests a flat live catalog by parent pointer.
// Nodes whose parent is not in the slice are returned as roots.
func BuildCatalogTree(nodes []*CatalogNode) []*CatalogTreeNode {
	byID := make(map[string]*CatalogTreeNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = &CatalogTreeNode{CatalogNode: n}
	}

	var roots []*CatalogTreeNode
	for _, n := range nodes {
		tn := byID[n.ID]
		if parent, ok := byID[n.ParentID]; ok && n.ParentID != "" && n.ParentID != n.ID {
			parent.Children = append(parent.Children, tn)
			continue
		}
		roots = append(roots, tn)
	}
	return roots
}
