package crdt

import (
	"mdcrdt/common"
	"mdcrdt/mdast"
)

// TreeNode is one element of the RGA-backed document tree: either a
// leaf holding an AST node with no ordered children, or a parent whose
// ordered children list has been substituted with an RGA. A parent
// exclusively owns its children RGA.
type TreeNode struct {
	// Leaf is set for leaf variants and nil for parents.
	Leaf *mdast.Node

	// Type and Attrs carry the surrounding node shape for parents.
	Type  string
	Attrs map[string]interface{}

	// Children is the ordered child collection for parents.
	Children *RGA[*TreeNode]
}

// IsLeaf reports whether the node is the leaf variant.
func (t *TreeNode) IsLeaf() bool {
	return t.Leaf != nil
}

// TreeFingerprint is the fingerprint function for tree nodes: leaves
// use the stringified-markdown fingerprint of the AST node, parents use
// the canonical attribute serialization (children excluded).
func TreeFingerprint(t *TreeNode) string {
	if t == nil {
		return ""
	}
	if t.IsLeaf() {
		return mdast.Fingerprint(t.Leaf)
	}
	return (&mdast.Node{Type: t.Type, Attrs: t.Attrs}).CanonicalAttrs()
}

// BuildTree converts an AST into an RGA tree: a depth-first walk that
// substitutes every ordered children list with an RGA built under the
// given revision. Non-children attributes are preserved verbatim.
func BuildTree(root *mdast.Node, rev common.Revision, cmp common.RevisionComparator) *TreeNode {
	return buildNode(root, rev, cmp)
}

// BuildSubtree converts a single AST node (and its descendants) into a
// tree node under the given revision, minting ids with the given
// generator. The changeset applier passes a deterministic generator so
// every replica applying the changeset builds an identical subtree.
func BuildSubtree(n *mdast.Node, rev common.Revision, cmp common.RevisionComparator, nextID func() NodeID) *TreeNode {
	if !n.IsParent() {
		return &TreeNode{Leaf: n.Clone()}
	}

	converted := make([]*TreeNode, 0, len(n.Children))
	for _, c := range n.Children {
		converted = append(converted, BuildSubtree(c, rev, cmp, nextID))
	}

	attrs := make(map[string]interface{}, len(n.Attrs))
	for k, v := range n.Attrs {
		attrs[k] = v
	}

	children := NewRGA(TreeFingerprint, cmp)
	var after *NodeID
	for _, child := range converted {
		id := nextID()
		children.Add(&RGANode[*TreeNode]{ID: id, Value: child, AfterID: after})
		after = &id
	}

	return &TreeNode{
		Type:     n.Type,
		Attrs:    attrs,
		Children: children,
	}
}

func buildNode(n *mdast.Node, rev common.Revision, cmp common.RevisionComparator) *TreeNode {
	return BuildSubtree(n, rev, cmp, func() NodeID { return NewNodeID(rev) })
}

// TreeToAST is the inverse projection: each parent's children become
// the RGA's visible sequence, mapped back to AST nodes recursively.
func TreeToAST(t *TreeNode) *mdast.Node {
	if t.IsLeaf() {
		return t.Leaf.Clone()
	}

	n := &mdast.Node{Type: t.Type, Children: []*mdast.Node{}}
	if len(t.Attrs) > 0 {
		n.Attrs = make(map[string]interface{}, len(t.Attrs))
		for k, v := range t.Attrs {
			n.Attrs[k] = v
		}
	}
	for _, child := range t.Children.ToSlice() {
		n.Children = append(n.Children, TreeToAST(child))
	}
	return n
}

// CloneTree deep-clones the tree: every RGA along the spine is cloned;
// leaf AST nodes are copied as well so no mutation can escape.
func CloneTree(t *TreeNode) *TreeNode {
	if t == nil {
		return nil
	}
	if t.IsLeaf() {
		return &TreeNode{Leaf: t.Leaf.Clone()}
	}

	attrs := make(map[string]interface{}, len(t.Attrs))
	for k, v := range t.Attrs {
		attrs[k] = v
	}
	return &TreeNode{
		Type:     t.Type,
		Attrs:    attrs,
		Children: t.Children.Clone(CloneTree),
	}
}

// MergeTrees merges two RGA trees sharing history into a new tree.
// Node identity is by NodeID: parents present in both merge their
// children recursively, one-sided elements carry their whole subtree
// in, tombstones are ORed. Neither input is mutated.
func MergeTrees(a, b *TreeNode) *TreeNode {
	merged := CloneTree(a)
	mergeInto(merged, b)
	return merged
}

func mergeInto(dst, src *TreeNode) {
	if dst.IsLeaf() || src.IsLeaf() {
		return
	}
	for _, srcNode := range src.Children.AllNodes() {
		if dstNode, ok := dst.Children.Node(srcNode.ID); ok {
			dstNode.Tombstone = dstNode.Tombstone || srcNode.Tombstone
			mergeInto(dstNode.Value, srcNode.Value)
			continue
		}
		dst.Children.Add(&RGANode[*TreeNode]{
			ID:        srcNode.ID,
			Value:     CloneTree(srcNode.Value),
			AfterID:   srcNode.AfterID,
			Tombstone: srcNode.Tombstone,
		})
	}
}
