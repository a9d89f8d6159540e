package crdtpatch

import (
	"mdcrdt/common"
	"mdcrdt/crdt"
	"mdcrdt/mdast"
)

// ChangeType represents the type of a changeset change.
type ChangeType string

const (
	// ChangeTypeInsert inserts new nodes after an anchor.
	ChangeTypeInsert ChangeType = "ins"
	// ChangeTypeDelete tombstones a node.
	ChangeTypeDelete ChangeType = "del"
	// ChangeTypeModify replaces a node: tombstone plus insert.
	ChangeTypeModify ChangeType = "mod"
)

// Change is one ID-addressed operation against an RGA tree. ParentPath
// locates the nested RGA by node identity, never by position, so the
// change still reaches the right parent on a replica that has diverged
// by concurrent edits.
type Change struct {
	Type       ChangeType
	ParentPath []crdt.NodeID

	// TargetID is the node to tombstone (delete, modify).
	TargetID *crdt.NodeID

	// AfterID is the insertion anchor, nil for the front (insert, modify).
	AfterID *crdt.NodeID

	// Nodes are the new AST nodes to insert, left to right (insert, modify).
	Nodes []*mdast.Node

	// Before carries the replaced AST nodes for consumers that want to
	// display or audit the change (modify).
	Before []*mdast.Node
}

// ChangeSet is an ordered list of ID-addressed changes plus the
// revision that produced them. All nodes inserted by the changeset are
// created under that revision.
type ChangeSet struct {
	Rev     common.Revision
	Changes []Change
}
