package catalog

import (
	"errors"
	"sort"

	"erpgate/server/storage"
)

// ErrTraversalLimit reports a menu graph that is cyclic or deeper than the
// configured bound. The forest returned alongside it is valid but truncated;
// callers log the condition and keep going rather than failing the request.
var ErrTraversalLimit = errors.New("menu traversal limit exceeded")

// TreeNode is one menu node with its resolved children.
type TreeNode struct {
	Node     *storage.MenuNode
	Children []*TreeNode
}

// BuildForest assembles flat menu nodes into ordered trees. The parent link
// makes malformed data a potential cyclic graph, so traversal works over an
// index with a visited set and a hard depth bound instead of recursing on
// raw parent pointers. Roots are nodes without a parent, or whose parent is
// not part of the input set.
//
// Returns ErrTraversalLimit when the depth bound truncated a branch or when
// a cycle made nodes unreachable; the returned forest is still valid.
func BuildForest(nodes []*storage.MenuNode, maxDepth int) ([]*TreeNode, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	index := make(map[string]*storage.MenuNode, len(nodes))
	for _, n := range nodes {
		index[n.ID] = n
	}

	children := make(map[string][]*storage.MenuNode)
	var roots []*storage.MenuNode
	for _, n := range nodes {
		if n.ParentID == "" || index[n.ParentID] == nil {
			roots = append(roots, n)
			continue
		}
		children[n.ParentID] = append(children[n.ParentID], n)
	}
	sortNodes(roots)
	for _, siblings := range children {
		sortNodes(siblings)
	}

	visited := make(map[string]bool, len(nodes))
	limitHit := false

	var build func(n *storage.MenuNode, depth int) *TreeNode
	build = func(n *storage.MenuNode, depth int) *TreeNode {
		visited[n.ID] = true
		tn := &TreeNode{Node: n}
		if depth >= maxDepth {
			if len(children[n.ID]) > 0 {
				limitHit = true
			}
			return tn
		}
		for _, c := range children[n.ID] {
			if visited[c.ID] {
				// Cycle through this child; keep the tree valid.
				limitHit = true
				continue
			}
			tn.Children = append(tn.Children, build(c, depth+1))
		}
		return tn
	}

	forest := make([]*TreeNode, 0, len(roots))
	for _, r := range roots {
		if visited[r.ID] {
			continue
		}
		forest = append(forest, build(r, 1))
	}

	// Nodes unreachable from any root form a parent cycle.
	if len(visited) < len(nodes) {
		limitHit = true
	}

	if limitHit {
		return forest, ErrTraversalLimit
	}
	return forest, nil
}

// sortNodes orders siblings rank ascending with ties broken by code, the
// catalog's stable ordering rule.
func sortNodes(nodes []*storage.MenuNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Rank != nodes[j].Rank {
			return nodes[i].Rank < nodes[j].Rank
		}
		return nodes[i].Code < nodes[j].Code
	})
}
