package crdt

import (
	"sort"

	"github.com/google/uuid"

	"mdcrdt/common"
)

// NodeID is the identity of one RGA element: a freshly minted unique
// token plus the revision that created it. Equality is by the pair
// (UUID, revision string); the revision value itself is kept so the
// traversal comparator can order siblings without re-parsing.
type NodeID struct {
	UUID string
	Rev  common.Revision
}

// NewNodeID mints a NodeID with a random 128-bit token under the given
// revision. No coordination is required; collisions are statistically
// impossible by construction.
func NewNodeID(rev common.Revision) NodeID {
	return NodeID{UUID: uuid.NewString(), Rev: rev}
}

// DeriveNodeID mints a NodeID whose token is a deterministic function
// of the revision and an ordinal (UUID v5 over the pair). Every replica
// applying the same changeset derives the same ids for its inserted
// nodes, which is what makes changeset exchange and state merge
// equivalent.
func DeriveNodeID(rev common.Revision, ordinal string) NodeID {
	ns := uuid.NewSHA1(uuid.NameSpaceOID, []byte(rev.String()))
	return NodeID{UUID: uuid.NewSHA1(ns, []byte(ordinal)).String(), Rev: rev}
}

// String returns "<uuid>@<revision>".
func (id NodeID) String() string {
	return id.UUID + "@" + id.Rev.String()
}

// Equal reports whether two NodeIDs name the same element.
func (id NodeID) Equal(other NodeID) bool {
	return id.key() == other.key()
}

// key is the map key form of the id.
func (id NodeID) key() nodeKey {
	return nodeKey{uuid: id.UUID, rev: id.Rev.String()}
}

type nodeKey struct {
	uuid string
	rev  string
}

// rootKey is the virtual-root grouping key for elements whose AfterID
// is nil. Real elements always carry a non-empty UUID.
var rootKey = nodeKey{}

// RGANode is one element of the sequence. ID and AfterID are immutable
// once created; Tombstone only ever transitions false to true; Value is
// never mutated in place (a modification is delete plus insert).
type RGANode[T any] struct {
	ID        NodeID
	Value     T
	AfterID   *NodeID
	Tombstone bool
}

// RGA is a Replicated Growable Array: a causal-tree sequence CRDT.
// Each element points at its causal predecessor; ordering is derived
// from that graph plus the revision-then-UUID sibling tie-break, so the
// visible sequence is a pure function of the node set. The zero value
// is not usable; construct with NewRGA or FromSlice.
//
// An RGA is owned by one replica at a time and is not internally
// synchronized.
type RGA[T any] struct {
	nodes       map[nodeKey]*RGANode[T]
	fingerprint func(T) string
	cmp         common.RevisionComparator
}

// NewRGA creates an empty RGA carrying the value fingerprint function
// and the sibling precedence comparator. Both must be pure.
func NewRGA[T any](fingerprint func(T) string, cmp common.RevisionComparator) *RGA[T] {
	return &RGA[T]{
		nodes:       make(map[nodeKey]*RGANode[T]),
		fingerprint: fingerprint,
		cmp:         cmp,
	}
}

// FromSlice builds an RGA over the items under a single revision, each
// item anchored on the previous one.
func FromSlice[T any](items []T, rev common.Revision, fingerprint func(T) string, cmp common.RevisionComparator) *RGA[T] {
	r := NewRGA(fingerprint, cmp)
	var after *NodeID
	for _, item := range items {
		id := r.Insert(after, item, rev)
		after = &id
	}
	return r
}

// Fingerprint applies the RGA's value fingerprint function.
func (r *RGA[T]) Fingerprint(v T) string {
	return r.fingerprint(v)
}

// Comparator returns the sibling precedence comparator.
func (r *RGA[T]) Comparator() common.RevisionComparator {
	return r.cmp
}

// Insert adds a new element after the given predecessor (nil means
// after the virtual root) and returns its freshly minted id.
func (r *RGA[T]) Insert(after *NodeID, value T, rev common.Revision) NodeID {
	id := NewNodeID(rev)
	r.nodes[id.key()] = &RGANode[T]{
		ID:      id,
		Value:   value,
		AfterID: cloneID(after),
	}
	return id
}

// Delete tombstones the element with the given id. A missing id is a
// no-op, which makes replayed deletes idempotent.
func (r *RGA[T]) Delete(id NodeID) {
	if node, ok := r.nodes[id.key()]; ok {
		node.Tombstone = true
	}
}

// Node returns the element with the given id, tombstoned or not.
func (r *RGA[T]) Node(id NodeID) (*RGANode[T], bool) {
	node, ok := r.nodes[id.key()]
	return node, ok
}

// Add inserts a pre-built node, keeping its identity. It is the merge
// and decode entry point; local edits go through Insert. If the id is
// already present only the tombstone flag is joined: value and AfterID
// are invariant per id.
func (r *RGA[T]) Add(node *RGANode[T]) {
	key := node.ID.key()
	if existing, ok := r.nodes[key]; ok {
		existing.Tombstone = existing.Tombstone || node.Tombstone
		return
	}
	r.nodes[key] = &RGANode[T]{
		ID:        node.ID,
		Value:     node.Value,
		AfterID:   cloneID(node.AfterID),
		Tombstone: node.Tombstone,
	}
}

// Merge joins another RGA into this one: missing elements are copied
// in, shared elements OR their tombstones. Merge is commutative,
// associative and idempotent on the node set.
func (r *RGA[T]) Merge(other *RGA[T]) {
	for _, node := range other.nodes {
		r.Add(node)
	}
}

// Len returns the number of visible elements.
func (r *RGA[T]) Len() int {
	n := 0
	for _, node := range r.traverse() {
		if !node.Tombstone {
			n++
		}
	}
	return n
}

// ToSlice returns the visible sequence of values in traversal order.
func (r *RGA[T]) ToSlice() []T {
	var out []T
	for _, node := range r.traverse() {
		if !node.Tombstone {
			out = append(out, node.Value)
		}
	}
	return out
}

// Nodes returns the visible elements in traversal order.
func (r *RGA[T]) Nodes() []*RGANode[T] {
	var out []*RGANode[T]
	for _, node := range r.traverse() {
		if !node.Tombstone {
			out = append(out, node)
		}
	}
	return out
}

// AllNodes returns every element: first the reachable ones in traversal
// order including tombstones, then any orphans (elements merged in
// ahead of their causal predecessor) in a stable order.
func (r *RGA[T]) AllNodes() []*RGANode[T] {
	reached := r.traverse()
	if len(reached) == len(r.nodes) {
		return reached
	}

	seen := make(map[nodeKey]bool, len(reached))
	for _, node := range reached {
		seen[node.ID.key()] = true
	}
	var orphans []*RGANode[T]
	for key, node := range r.nodes {
		if !seen[key] {
			orphans = append(orphans, node)
		}
	}
	sort.Slice(orphans, func(i, j int) bool {
		a, b := orphans[i].ID, orphans[j].ID
		if c := r.cmp(a.Rev, b.Rev); c != 0 {
			return c < 0
		}
		return a.UUID < b.UUID
	})
	return append(reached, orphans...)
}

// IDAtIndex returns the id at position i of the visible sequence.
func (r *RGA[T]) IDAtIndex(i int) *NodeID {
	if i < 0 {
		return nil
	}
	visible := r.Nodes()
	if i >= len(visible) {
		return nil
	}
	id := visible[i].ID
	return &id
}

// PredecessorForIndex returns the id of the visible element at i-1, or
// nil for i = 0. It resolves an index-based insertion point to an
// anchor id.
func (r *RGA[T]) PredecessorForIndex(i int) *NodeID {
	if i <= 0 {
		return nil
	}
	return r.IDAtIndex(i - 1)
}

// Clone returns a deep copy; values are copied with cloneValue (pass
// the identity function for immutable values). The clone shares no
// structure with the original.
func (r *RGA[T]) Clone(cloneValue func(T) T) *RGA[T] {
	clone := NewRGA(r.fingerprint, r.cmp)
	for key, node := range r.nodes {
		clone.nodes[key] = &RGANode[T]{
			ID:        node.ID,
			Value:     cloneValue(node.Value),
			AfterID:   cloneID(node.AfterID),
			Tombstone: node.Tombstone,
		}
	}
	return clone
}

// traverse emits the causal-tree pre-order walk: elements grouped by
// their anchor, sibling groups sorted ascending by revision precedence
// then UUID, tombstones included. Elements whose anchor has not arrived
// yet are unreachable and omitted.
func (r *RGA[T]) traverse() []*RGANode[T] {
	children := make(map[nodeKey][]*RGANode[T], len(r.nodes))
	for _, node := range r.nodes {
		anchor := rootKey
		if node.AfterID != nil {
			anchor = node.AfterID.key()
		}
		children[anchor] = append(children[anchor], node)
	}
	for _, group := range children {
		sort.Slice(group, func(i, j int) bool {
			a, b := group[i].ID, group[j].ID
			if c := r.cmp(a.Rev, b.Rev); c != 0 {
				return c < 0
			}
			return a.UUID < b.UUID
		})
	}

	out := make([]*RGANode[T], 0, len(r.nodes))
	var walk func(anchor nodeKey)
	walk = func(anchor nodeKey) {
		for _, node := range children[anchor] {
			out = append(out, node)
			walk(node.ID.key())
		}
	}
	walk(rootKey)
	return out
}

func cloneID(id *NodeID) *NodeID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
