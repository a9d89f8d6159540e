package mdast

// Fingerprint returns a content hash of a node for diffing. Leaves
// fingerprint by their stringified markdown prefixed with the node
// type (two leaf kinds can render identically); parents fingerprint by
// the canonical serialization of their type and attributes, children
// excluded. The fingerprint never participates in CRDT ordering.
func Fingerprint(n *Node) string {
	if n == nil {
		return ""
	}
	if n.IsParent() {
		return n.CanonicalAttrs()
	}
	return n.Type + ":" + renderStandalone(n)
}
