// Package codec serializes RGA trees and changesets to a canonical
// binary form (CBOR core deterministic encoding) and derives content
// ids from the canonical bytes. Two replicas holding the same node set
// produce byte-for-byte identical encodings, hence identical CIDs.
package codec

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"mdcrdt/common"
	"mdcrdt/crdt"
	"mdcrdt/crdtpatch"
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// EncodeTree serializes an RGA tree to canonical bytes.
func EncodeTree(tree *crdt.TreeNode) ([]byte, error) {
	return encMode.Marshal(wireTree(tree))
}

// DecodeTree deserializes an RGA tree. Revisions are rebuilt with the
// given parser and the tree carries the given comparator; both must
// match the ones used by the replica that encoded it.
func DecodeTree(data []byte, parse common.RevisionParser, cmp common.RevisionComparator) (*crdt.TreeNode, error) {
	var w WireTreeNode
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, common.ErrDecode{Message: err.Error()}
	}
	if w.Children == nil {
		return nil, common.ErrDecode{Message: "tree root has no children"}
	}
	tree, err := treeFromWire(w, parse, cmp)
	if err != nil {
		return nil, common.ErrDecode{Message: err.Error()}
	}
	return tree, nil
}

// EncodeChangeSet serializes a changeset to canonical bytes.
func EncodeChangeSet(cs *crdtpatch.ChangeSet) ([]byte, error) {
	return encMode.Marshal(wireChangeSet(cs))
}

// EncodeChangeSetJSON serializes a changeset to JSON, the
// human-readable wire alternative for transports that prefer text.
func EncodeChangeSetJSON(cs *crdtpatch.ChangeSet) ([]byte, error) {
	return json.Marshal(wireChangeSet(cs))
}

// DecodeChangeSetJSON deserializes a JSON changeset.
func DecodeChangeSetJSON(data []byte, parse common.RevisionParser) (*crdtpatch.ChangeSet, error) {
	var w WireChangeSet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, common.ErrDecode{Message: err.Error()}
	}
	return changeSetFromWire(w, parse)
}

func wireChangeSet(cs *crdtpatch.ChangeSet) WireChangeSet {
	w := WireChangeSet{Event: cs.Rev.String(), Changes: []WireChange{}}
	for _, change := range cs.Changes {
		wc := WireChange{
			Type:       string(change.Type),
			ParentPath: []WireNodeID{},
			TargetID:   wireIDPtr(change.TargetID),
			AfterID:    wireIDPtr(change.AfterID),
			Nodes:      change.Nodes,
			Before:     change.Before,
		}
		for _, id := range change.ParentPath {
			wc.ParentPath = append(wc.ParentPath, wireID(id))
		}
		w.Changes = append(w.Changes, wc)
	}
	return w
}

// DecodeChangeSet deserializes a changeset.
func DecodeChangeSet(data []byte, parse common.RevisionParser) (*crdtpatch.ChangeSet, error) {
	var w WireChangeSet
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, common.ErrDecode{Message: err.Error()}
	}
	return changeSetFromWire(w, parse)
}

func changeSetFromWire(w WireChangeSet, parse common.RevisionParser) (*crdtpatch.ChangeSet, error) {
	rev, err := parse(w.Event)
	if err != nil {
		return nil, common.ErrDecode{Message: err.Error()}
	}

	cs := &crdtpatch.ChangeSet{Rev: rev}
	for _, wc := range w.Changes {
		switch crdtpatch.ChangeType(wc.Type) {
		case crdtpatch.ChangeTypeInsert, crdtpatch.ChangeTypeDelete, crdtpatch.ChangeTypeModify:
		default:
			return nil, common.ErrDecode{Message: common.ErrInvalidChangeType{Type: wc.Type}.Error()}
		}

		change := crdtpatch.Change{
			Type:  crdtpatch.ChangeType(wc.Type),
			Nodes: wc.Nodes,
		}
		for _, wid := range wc.ParentPath {
			id, err := parseID(wid, parse)
			if err != nil {
				return nil, common.ErrDecode{Message: err.Error()}
			}
			change.ParentPath = append(change.ParentPath, id)
		}
		if change.TargetID, err = parseIDPtr(wc.TargetID, parse); err != nil {
			return nil, common.ErrDecode{Message: err.Error()}
		}
		if change.AfterID, err = parseIDPtr(wc.AfterID, parse); err != nil {
			return nil, common.ErrDecode{Message: err.Error()}
		}
		change.Before = wc.Before
		cs.Changes = append(cs.Changes, change)
	}
	return cs, nil
}

// TreeCID returns the content id of the tree's canonical encoding
// (CIDv1, raw codec, sha2-256).
func TreeCID(tree *crdt.TreeNode) (cid.Cid, error) {
	data, err := EncodeTree(tree)
	if err != nil {
		return cid.Undef, err
	}
	return bytesCID(data)
}

// ChangeSetCID returns the content id of the changeset's canonical
// encoding.
func ChangeSetCID(cs *crdtpatch.ChangeSet) (cid.Cid, error) {
	data, err := EncodeChangeSet(cs)
	if err != nil {
		return cid.Undef, err
	}
	return bytesCID(data)
}

// BytesCID returns the content id of raw canonical bytes.
func BytesCID(data []byte) (cid.Cid, error) {
	return bytesCID(data)
}

func bytesCID(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}
