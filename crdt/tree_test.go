package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdcrdt/common"
	"mdcrdt/mdast"
)

// TestBuildTreeProjection tests the build / project round trip
func TestBuildTreeProjection(t *testing.T) {
	sid := common.NewSessionID()
	ast := mdast.Parse("# Title\n\nHello *world*.\n")

	tree := BuildTree(ast, rev(sid, 1), common.NewestFirst)
	require.False(t, tree.IsLeaf())
	assert.Equal(t, "root", tree.Type)
	assert.Equal(t, 2, tree.Children.Len())

	projected := TreeToAST(tree)
	assert.True(t, mdast.Equal(ast, projected))
	assert.Equal(t, mdast.Stringify(ast), mdast.Stringify(projected))
}

// TestBuildTreePreservesAttributes tests that non-children attributes
// survive the substitution
func TestBuildTreePreservesAttributes(t *testing.T) {
	sid := common.NewSessionID()
	ast := mdast.Parse("## Sub\n\n1. one\n2. two\n")

	tree := BuildTree(ast, rev(sid, 1), common.NewestFirst)

	heading, ok := tree.Children.Node(*tree.Children.IDAtIndex(0))
	require.True(t, ok)
	assert.Equal(t, "heading", heading.Value.Type)
	assert.EqualValues(t, 2, heading.Value.Attrs["depth"])

	list, ok := tree.Children.Node(*tree.Children.IDAtIndex(1))
	require.True(t, ok)
	assert.Equal(t, "list", list.Value.Type)
	assert.Equal(t, true, list.Value.Attrs["ordered"])
}

// TestTreeFingerprint tests leaf and parent fingerprints of tree nodes
func TestTreeFingerprint(t *testing.T) {
	sid := common.NewSessionID()
	tree := BuildTree(mdast.Parse("# A\n\nB.\n"), rev(sid, 1), common.NewestFirst)

	heading, _ := tree.Children.Node(*tree.Children.IDAtIndex(0))
	paragraph, _ := tree.Children.Node(*tree.Children.IDAtIndex(1))

	assert.Equal(t, "heading{depth=1}", TreeFingerprint(heading.Value))
	assert.Equal(t, "paragraph{}", TreeFingerprint(paragraph.Value))

	text, _ := paragraph.Value.Children.Node(*paragraph.Value.Children.IDAtIndex(0))
	assert.True(t, text.Value.IsLeaf())
	assert.Equal(t, mdast.Fingerprint(text.Value.Leaf), TreeFingerprint(text.Value))
}

// TestCloneTreeIndependence tests that a tree clone shares no mutable
// structure with the original
func TestCloneTreeIndependence(t *testing.T) {
	sid := common.NewSessionID()
	tree := BuildTree(mdast.Parse("# A\n\nB.\n"), rev(sid, 1), common.NewestFirst)

	clone := CloneTree(tree)
	clone.Children.Delete(*clone.Children.IDAtIndex(1))

	assert.Equal(t, 2, tree.Children.Len())
	assert.Equal(t, 1, clone.Children.Len())
}

// TestMergeTreesConcurrentAppends tests scenario S6: concurrent list
// appends on two replicas both survive the merge, newest revision first
func TestMergeTreesConcurrentAppends(t *testing.T) {
	sid1 := common.NewSessionID()
	sid2 := common.NewSessionID()

	base := BuildTree(mdast.Parse("- i1\n- i2\n"), rev(sid1, 1), common.NewestFirst)

	t1 := CloneTree(base)
	t2 := CloneTree(base)

	appendItem(t, t1, "i3", rev(sid1, 2))
	appendItem(t, t2, "i4", rev(sid2, 3))

	m1 := MergeTrees(t1, t2)
	m2 := MergeTrees(t2, t1)

	md1 := mdast.Stringify(TreeToAST(m1))
	md2 := mdast.Stringify(TreeToAST(m2))
	assert.Equal(t, md1, md2)
	assert.Equal(t, "- i1\n- i2\n- i4\n- i3\n", md1)
}

// appendItem inserts a list item at the end of the document's only list.
func appendItem(t *testing.T, tree *TreeNode, text string, r common.Revision) {
	t.Helper()

	listNode, ok := tree.Children.Node(*tree.Children.IDAtIndex(0))
	require.True(t, ok)
	list := listNode.Value
	require.False(t, list.IsLeaf())

	item := mdast.Parse("- " + text + "\n").Children[0].Children[0]
	require.Equal(t, "listItem", item.Type)

	last := list.Children.IDAtIndex(list.Children.Len() - 1)
	subtree := BuildSubtree(item, r, common.NewestFirst, func() NodeID { return NewNodeID(r) })
	list.Children.Add(&RGANode[*TreeNode]{ID: NewNodeID(r), Value: subtree, AfterID: last})
}

// TestMergeTreesOneSidedSubtree tests that a subtree present on one
// side only carries over whole
func TestMergeTreesOneSidedSubtree(t *testing.T) {
	sid1 := common.NewSessionID()
	sid2 := common.NewSessionID()

	base := BuildTree(mdast.Parse("# H\n"), rev(sid1, 1), common.NewestFirst)

	t1 := CloneTree(base)
	t2 := CloneTree(base)

	// Replica 2 appends a blockquote with nested content
	quote := mdast.Parse("> deep *text*\n").Children[0]
	r2 := rev(sid2, 2)
	last := t2.Children.IDAtIndex(0)
	subtree := BuildSubtree(quote, r2, common.NewestFirst, func() NodeID { return NewNodeID(r2) })
	t2.Children.Add(&RGANode[*TreeNode]{ID: NewNodeID(r2), Value: subtree, AfterID: last})

	merged := MergeTrees(t1, t2)
	assert.Equal(t, "# H\n\n> deep *text*\n", mdast.Stringify(TreeToAST(merged)))

	// Inputs are untouched
	assert.Equal(t, "# H\n", mdast.Stringify(TreeToAST(t1)))
}

// TestMergeTreesIdempotent tests merging a tree with itself
func TestMergeTreesIdempotent(t *testing.T) {
	sid := common.NewSessionID()
	tree := BuildTree(mdast.Parse("# H\n\nP.\n"), rev(sid, 1), common.NewestFirst)

	merged := MergeTrees(tree, tree)
	assert.Equal(t, mdast.Stringify(TreeToAST(tree)), mdast.Stringify(TreeToAST(merged)))
	assert.Len(t, merged.Children.AllNodes(), len(tree.Children.AllNodes()))
}
