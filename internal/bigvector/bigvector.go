// Package bigvector walks the two-level paged container the venue stores
// each book side in. Pages are dynamic children of the container object,
// keyed by a u64 page id; inner pages list child page ids, leaf pages hold
// (key, order) pairs.
package bigvector

import (
	"fmt"
	"strings"

	"deepbook-sandbox/internal/domain"
)

// Node is one decoded page. A page is either inner (Children set) or leaf
// (Keys/Orders set, parallel slices).
type Node struct {
	ObjectID string
	Name     uint64 // page id, the dynamic field name
	Children []uint64
	Keys     []domain.U128
	Orders   []domain.Order
}

// IsLeaf reports whether the page holds entries rather than child ids.
func (n *Node) IsLeaf() bool { return n.Children == nil }

// IncompleteCollectionError is the hard failure for a partially exported
// collection: at least one referenced page is absent. No best-effort
// reconstruction happens; the caller must treat the whole collection as
// unusable.
type IncompleteCollectionError struct {
	VectorID string
	Missing  []uint64
}

func (e *IncompleteCollectionError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("collection %s incomplete: missing pages [%s]",
		e.VectorID, strings.Join(ids, " "))
}

// PageIndex holds the decoded pages of one container, keyed by page id.
type PageIndex struct {
	VectorID string
	pages    map[uint64]*Node
}

// NewPageIndex indexes pages by their id. Later duplicates win, matching
// the loader's highest-version-wins dedupe.
func NewPageIndex(vectorID string, nodes []*Node) *PageIndex {
	idx := &PageIndex{VectorID: vectorID, pages: make(map[uint64]*Node, len(nodes))}
	for _, n := range nodes {
		idx.pages[n.Name] = n
	}
	return idx
}

// Page returns the page with the given id.
func (idx *PageIndex) Page(id uint64) (*Node, bool) {
	n, ok := idx.pages[id]
	return n, ok
}

// Len returns the number of indexed pages.
func (idx *PageIndex) Len() int { return len(idx.pages) }

// ResolveCollection recovers the ordered leaf list for a collection rooted
// at root with the given depth. Depth 0 means the root is itself a leaf.
// Child ids are followed strictly in declaration order; the concatenation
// order of the returned leaves is the iteration order consumed downstream
// and must not be reordered. Any absent page fails the whole resolution.
func ResolveCollection(idx *PageIndex, root uint64, depth uint64) ([]*Node, error) {
	var leaves []*Node
	var missing []uint64
	walk(idx, root, depth, &leaves, &missing)
	if len(missing) > 0 {
		return nil, &IncompleteCollectionError{VectorID: idx.VectorID, Missing: missing}
	}
	return leaves, nil
}

func walk(idx *PageIndex, id uint64, depth uint64, leaves *[]*Node, missing *[]uint64) {
	node, ok := idx.Page(id)
	if !ok {
		*missing = append(*missing, id)
		return
	}
	if depth == 0 {
		*leaves = append(*leaves, node)
		return
	}
	for _, child := range node.Children {
		walk(idx, child, depth-1, leaves, missing)
	}
}
