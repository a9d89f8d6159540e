package crdtpatch

import (
	"mdcrdt/common"
	"mdcrdt/crdt"
	"mdcrdt/mdast"
)

// ComputeChangeSet diffs the tree's projected AST against a new AST and
// resolves the index-based edits to ID-addressed changes by walking the
// live RGA tree. The result is stable under concurrent merging: it
// names nodes, not positions.
func ComputeChangeSet(tree *crdt.TreeNode, newAST *mdast.Node, rev common.Revision) *ChangeSet {
	oldAST := crdt.TreeToAST(tree)
	indexed := diffChildren(oldAST.Children, newAST.Children, nil)

	cs := &ChangeSet{Rev: rev}
	for _, ic := range indexed {
		if change, ok := resolve(tree, ic); ok {
			cs.Changes = append(cs.Changes, change)
		}
	}
	return cs
}

// resolve turns one index-addressed change into an ID-addressed one.
// Any step that runs off the tree (index out of range, descent into a
// leaf) drops the change.
func resolve(tree *crdt.TreeNode, ic indexChange) (Change, bool) {
	current := tree
	parentPath := make([]crdt.NodeID, 0, len(ic.path)-1)

	for _, p := range ic.path[:len(ic.path)-1] {
		id := current.Children.IDAtIndex(p)
		if id == nil {
			return Change{}, false
		}
		node, ok := current.Children.Node(*id)
		if !ok || node.Value.IsLeaf() {
			return Change{}, false
		}
		parentPath = append(parentPath, *id)
		current = node.Value
	}

	target := ic.path[len(ic.path)-1]
	change := Change{
		Type:       ic.typ,
		ParentPath: parentPath,
		Nodes:      ic.nodes,
		Before:     ic.before,
	}

	switch ic.typ {
	case ChangeTypeDelete:
		change.TargetID = current.Children.IDAtIndex(target)
		if change.TargetID == nil {
			return Change{}, false
		}

	case ChangeTypeInsert:
		change.AfterID = current.Children.PredecessorForIndex(target)

	case ChangeTypeModify:
		change.TargetID = current.Children.IDAtIndex(target)
		if change.TargetID == nil {
			return Change{}, false
		}
		change.AfterID = current.Children.PredecessorForIndex(target)

	default:
		return Change{}, false
	}

	return change, true
}
