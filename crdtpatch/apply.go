package crdtpatch

import (
	"strconv"

	"mdcrdt/crdt"
)

// Apply executes a changeset against an RGA tree and returns the
// updated tree; the input is not mutated (the spine is deep-cloned).
// Changes whose parent path or target no longer resolves are silently
// dropped: the node they addressed was removed concurrently, and that
// deletion already won.
func Apply(tree *crdt.TreeNode, cs *ChangeSet) *crdt.TreeNode {
	out := crdt.CloneTree(tree)

	for i, change := range cs.Changes {
		current, ok := walk(out, change.ParentPath)
		if !ok {
			continue
		}

		// Ids for inserted nodes are derived from the revision and the
		// change ordinal, so replicas applying this changeset agree on
		// them even when other changes were dropped locally.
		nextID := idGenerator(cs, i)

		switch change.Type {
		case ChangeTypeDelete:
			if change.TargetID != nil {
				current.Children.Delete(*change.TargetID)
			}

		case ChangeTypeInsert:
			insertChain(current, &change, cs, nextID)

		case ChangeTypeModify:
			if change.TargetID == nil {
				continue
			}
			if _, ok := current.Children.Node(*change.TargetID); !ok {
				continue
			}
			current.Children.Delete(*change.TargetID)
			insertChain(current, &change, cs, nextID)
		}
	}

	return out
}

// walk descends the tree by node identity. A missing id or a leaf in
// parent position fails the walk.
func walk(tree *crdt.TreeNode, path []crdt.NodeID) (*crdt.TreeNode, bool) {
	current := tree
	for _, id := range path {
		node, ok := current.Children.Node(id)
		if !ok || node.Value.IsLeaf() {
			return nil, false
		}
		current = node.Value
	}
	return current, true
}

// insertChain inserts the change's nodes left to right, each subsequent
// node anchored on the previous one's id so the group stays contiguous
// under any concurrent sibling.
func insertChain(parent *crdt.TreeNode, change *Change, cs *ChangeSet, nextID func() crdt.NodeID) {
	after := change.AfterID
	for _, astNode := range change.Nodes {
		subtree := crdt.BuildSubtree(astNode, cs.Rev, parent.Children.Comparator(), nextID)
		id := nextID()
		parent.Children.Add(&crdt.RGANode[*crdt.TreeNode]{
			ID:      id,
			Value:   subtree,
			AfterID: after,
		})
		after = &id
	}
}

// idGenerator derives deterministic NodeIDs scoped to one change of
// the changeset.
func idGenerator(cs *ChangeSet, changeIndex int) func() crdt.NodeID {
	seq := 0
	return func() crdt.NodeID {
		seq++
		return crdt.DeriveNodeID(cs.Rev, strconv.Itoa(changeIndex)+"/"+strconv.Itoa(seq))
	}
}
