// Package api is the high-level entry point: a Document wraps an RGA
// tree together with its session identity and revision counter, and
// exposes the markdown-in/markdown-out editing surface.
package api

import (
	"mdcrdt/codec"
	"mdcrdt/common"
	"mdcrdt/crdt"
	"mdcrdt/crdtpatch"
	"mdcrdt/mdast"
)

// Document is one replica's view of a collaborative Markdown document.
// It owns its RGA tree; a Document is single-writer and not internally
// synchronized.
type Document struct {
	// tree is the RGA-backed document tree.
	tree *crdt.TreeNode

	// sid identifies this replica's editing session.
	sid common.SessionID

	// counter is the next revision counter for local changesets.
	counter uint64

	// cmp is the sibling precedence comparator shared by all replicas
	// of the document.
	cmp common.RevisionComparator
}

// FromMarkdown bootstraps a document from a Markdown string. The whole
// initial tree is created under the session's first revision.
func FromMarkdown(md string, sid common.SessionID) *Document {
	d := &Document{
		sid:     sid,
		counter: 1,
		cmp:     common.NewestFirst,
	}
	d.tree = crdt.BuildTree(mdast.Parse(md), d.nextRevision(), d.cmp)
	return d
}

// NewDocument wraps an existing tree, for example one decoded from a
// peer's state.
func NewDocument(tree *crdt.TreeNode, sid common.SessionID, counter uint64) *Document {
	return &Document{
		tree:    tree,
		sid:     sid,
		counter: counter,
		cmp:     common.NewestFirst,
	}
}

// Tree returns the underlying RGA tree. Callers must not mutate it;
// clone first.
func (d *Document) Tree() *crdt.TreeNode {
	return d.tree
}

// SessionID returns the replica's session identity.
func (d *Document) SessionID() common.SessionID {
	return d.sid
}

// ToMarkdown projects the tree back to Markdown.
func (d *Document) ToMarkdown() string {
	return mdast.Stringify(crdt.TreeToAST(d.tree))
}

// ComputeChangeSet diffs the document against new Markdown content and
// returns the ID-addressed changeset under a fresh local revision. The
// changeset is not applied; pass it to ApplyChangeSet (and to peers).
func (d *Document) ComputeChangeSet(newMd string) *crdtpatch.ChangeSet {
	return crdtpatch.ComputeChangeSet(d.tree, mdast.Parse(newMd), d.nextRevision())
}

// ApplyChangeSet executes a changeset (local or remote) against the
// document.
func (d *Document) ApplyChangeSet(cs *crdtpatch.ChangeSet) {
	d.tree = crdtpatch.Apply(d.tree, cs)
}

// Update is the one-call local edit: compute the changeset for the new
// content, apply it, and return it for broadcast.
func (d *Document) Update(newMd string) *crdtpatch.ChangeSet {
	cs := d.ComputeChangeSet(newMd)
	d.ApplyChangeSet(cs)
	return cs
}

// Merge joins a peer's tree into this document (state-based merge).
// The peer's tree is not mutated.
func (d *Document) Merge(other *crdt.TreeNode) {
	d.tree = crdt.MergeTrees(d.tree, other)
}

// Clone returns an independent copy of the document sharing no
// structure with the original.
func (d *Document) Clone() *Document {
	return &Document{
		tree:    crdt.CloneTree(d.tree),
		sid:     d.sid,
		counter: d.counter,
		cmp:     d.cmp,
	}
}

// Encode serializes the document's tree to canonical bytes.
func (d *Document) Encode() ([]byte, error) {
	return codec.EncodeTree(d.tree)
}

// DecodeDocument rebuilds a document from canonical bytes under a new
// session.
func DecodeDocument(data []byte, sid common.SessionID) (*Document, error) {
	tree, err := codec.DecodeTree(data, common.ParseTimestamp, common.NewestFirst)
	if err != nil {
		return nil, err
	}
	return NewDocument(tree, sid, 1), nil
}

// nextRevision mints the next local revision.
func (d *Document) nextRevision() common.Revision {
	rev := common.LogicalTimestamp{SID: d.sid, Counter: d.counter}
	d.counter++
	return rev
}
