package codec

import (
	"mdcrdt/common"
	"mdcrdt/crdt"
	"mdcrdt/mdast"
)

// The wire shapes are the plain-data projection of the RGA tree and
// changeset: flat node lists per RGA, revisions as strings, missing
// fields omitted. Traversal order is reconstructed on decode, so node
// order inside the flat list carries no meaning.

// WireNodeID is the serialized form of a node id.
type WireNodeID struct {
	UUID  string `json:"uuid" cbor:"uuid"`
	Event string `json:"event" cbor:"event"`
}

// WireTreeNode is a tree node: leaves have no children field, parents
// carry their RGA.
type WireTreeNode struct {
	Type     string                 `json:"type" cbor:"type"`
	Attrs    map[string]interface{} `json:"attrs,omitempty" cbor:"attrs,omitempty"`
	Children *WireRGA               `json:"children,omitempty" cbor:"children,omitempty"`
}

// WireRGA is a flat list of RGA elements.
type WireRGA struct {
	Nodes []WireRGANode `json:"nodes" cbor:"nodes"`
}

// WireRGANode is one RGA element.
type WireRGANode struct {
	ID        WireNodeID   `json:"id" cbor:"id"`
	Value     WireTreeNode `json:"value" cbor:"value"`
	AfterID   *WireNodeID  `json:"afterId,omitempty" cbor:"afterId,omitempty"`
	Tombstone bool         `json:"tombstone,omitempty" cbor:"tombstone,omitempty"`
}

// WireChangeSet is a serialized changeset.
type WireChangeSet struct {
	Event   string       `json:"event" cbor:"event"`
	Changes []WireChange `json:"changes" cbor:"changes"`
}

// WireChange is one serialized change.
type WireChange struct {
	Type       string        `json:"type" cbor:"type"`
	ParentPath []WireNodeID  `json:"parentPath" cbor:"parentPath"`
	TargetID   *WireNodeID   `json:"targetId,omitempty" cbor:"targetId,omitempty"`
	AfterID    *WireNodeID   `json:"afterId,omitempty" cbor:"afterId,omitempty"`
	Nodes      []*mdast.Node `json:"nodes,omitempty" cbor:"nodes,omitempty"`
	Before     []*mdast.Node `json:"before,omitempty" cbor:"before,omitempty"`
}

func wireID(id crdt.NodeID) WireNodeID {
	return WireNodeID{UUID: id.UUID, Event: id.Rev.String()}
}

func wireIDPtr(id *crdt.NodeID) *WireNodeID {
	if id == nil {
		return nil
	}
	w := wireID(*id)
	return &w
}

func parseID(w WireNodeID, parse common.RevisionParser) (crdt.NodeID, error) {
	rev, err := parse(w.Event)
	if err != nil {
		return crdt.NodeID{}, err
	}
	return crdt.NodeID{UUID: w.UUID, Rev: rev}, nil
}

func parseIDPtr(w *WireNodeID, parse common.RevisionParser) (*crdt.NodeID, error) {
	if w == nil {
		return nil, nil
	}
	id, err := parseID(*w, parse)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// stripAttrs drops nil attribute values so they are never encoded.
func stripAttrs(attrs map[string]interface{}) map[string]interface{} {
	var out map[string]interface{}
	for k, v := range attrs {
		if v == nil {
			continue
		}
		if out == nil {
			out = make(map[string]interface{})
		}
		out[k] = v
	}
	return out
}

func wireTree(t *crdt.TreeNode) WireTreeNode {
	if t.IsLeaf() {
		return wireAST(t.Leaf)
	}
	w := WireTreeNode{
		Type:     t.Type,
		Attrs:    stripAttrs(t.Attrs),
		Children: &WireRGA{Nodes: []WireRGANode{}},
	}
	for _, node := range t.Children.AllNodes() {
		w.Children.Nodes = append(w.Children.Nodes, WireRGANode{
			ID:        wireID(node.ID),
			Value:     wireTree(node.Value),
			AfterID:   wireIDPtr(node.AfterID),
			Tombstone: node.Tombstone,
		})
	}
	return w
}

func wireAST(n *mdast.Node) WireTreeNode {
	return WireTreeNode{Type: n.Type, Attrs: stripAttrs(n.Attrs)}
}

func treeFromWire(w WireTreeNode, parse common.RevisionParser, cmp common.RevisionComparator) (*crdt.TreeNode, error) {
	if w.Children == nil {
		return &crdt.TreeNode{Leaf: &mdast.Node{Type: w.Type, Attrs: w.Attrs}}, nil
	}

	t := &crdt.TreeNode{
		Type:     w.Type,
		Attrs:    w.Attrs,
		Children: crdt.NewRGA(crdt.TreeFingerprint, cmp),
	}
	if t.Attrs == nil {
		t.Attrs = map[string]interface{}{}
	}
	for _, wn := range w.Children.Nodes {
		id, err := parseID(wn.ID, parse)
		if err != nil {
			return nil, err
		}
		afterID, err := parseIDPtr(wn.AfterID, parse)
		if err != nil {
			return nil, err
		}
		value, err := treeFromWire(wn.Value, parse, cmp)
		if err != nil {
			return nil, err
		}
		t.Children.Add(&crdt.RGANode[*crdt.TreeNode]{
			ID:        id,
			Value:     value,
			AfterID:   afterID,
			Tombstone: wn.Tombstone,
		})
	}
	return t, nil
}
