package crdtpatch

import (
	"mdcrdt/mdast"
)

// indexChange is an index-addressed change produced by the recursive
// diff, before resolution to node ids. path holds the child indices
// from the old root down to the affected position; the last element is
// the target (delete, modify) or insertion (insert) index.
type indexChange struct {
	typ    ChangeType
	path   []int
	nodes  []*mdast.Node
	before []*mdast.Node
}

// diffChildren recursively diffs two ordered child lists. Matches are
// found by an LCS over whole subtrees (see lcsMatches); the unmatched
// gaps between matches are paired greedily left to right.
func diffChildren(old, new []*mdast.Node, prefix []int) []indexChange {
	matches := lcsMatches(old, new)

	var out []indexChange
	oPrev, nPrev := 0, 0
	for _, m := range append(matches, [2]int{len(old), len(new)}) {
		out = append(out, diffGap(old, new, oPrev, m[0], nPrev, m[1], prefix)...)
		if m[0] < len(old) {
			// Matched parents render identically; recursing picks up
			// any structural difference the rendering does not show.
			o, n := old[m[0]], new[m[1]]
			if o.IsParent() && n.IsParent() {
				out = append(out, diffChildren(o.Children, n.Children, append(append([]int{}, prefix...), m[0]))...)
			}
		}
		oPrev, nPrev = m[0]+1, m[1]+1
	}
	return out
}

// diffGap processes one unmatched region: same-typed nodes pair up
// greedily left to right (recursing into parents, modifying leaves);
// old leftovers become deletes and new leftovers become one insert.
func diffGap(old, new []*mdast.Node, oStart, oEnd, nStart, nEnd int, prefix []int) []indexChange {
	var out []indexChange

	paired := 0
	for oStart+paired < oEnd && nStart+paired < nEnd {
		o, n := old[oStart+paired], new[nStart+paired]
		if o.Type != n.Type {
			break
		}
		path := append(append([]int{}, prefix...), oStart+paired)
		if o.IsParent() && n.IsParent() {
			if mdast.Fingerprint(o) == mdast.Fingerprint(n) {
				// Same surrounding shape; only the children differ.
				out = append(out, diffChildren(o.Children, n.Children, path)...)
			} else {
				out = append(out, indexChange{
					typ:    ChangeTypeModify,
					path:   path,
					nodes:  []*mdast.Node{n},
					before: []*mdast.Node{o},
				})
			}
		} else if mdast.Fingerprint(o) != mdast.Fingerprint(n) {
			out = append(out, indexChange{
				typ:    ChangeTypeModify,
				path:   path,
				nodes:  []*mdast.Node{n},
				before: []*mdast.Node{o},
			})
		}
		paired++
	}

	for i := oStart + paired; i < oEnd; i++ {
		out = append(out, indexChange{
			typ:    ChangeTypeDelete,
			path:   append(append([]int{}, prefix...), i),
			before: []*mdast.Node{old[i]},
		})
	}

	if nStart+paired < nEnd {
		out = append(out, indexChange{
			typ:   ChangeTypeInsert,
			path:  append(append([]int{}, prefix...), oStart+paired),
			nodes: append([]*mdast.Node{}, new[nStart+paired:nEnd]...),
		})
	}

	return out
}

// lcsMatches returns the matched (old index, new index) pairs of the
// longest common subsequence of the two lists' match keys, in
// increasing order. A leaf's key is its fingerprint; a parent's key is
// its fingerprint plus its rendered markdown, so only identical
// subtrees match. Backtrack policy, fixed here: on equal table counts
// the walk prefers the up cell (decreasing old index).
func lcsMatches(old, new []*mdast.Node) [][2]int {
	m, n := len(old), len(new)
	if m == 0 || n == 0 {
		return nil
	}

	key := func(node *mdast.Node) string {
		if node.IsParent() {
			return mdast.Fingerprint(node) + "\n" + mdast.Stringify(node)
		}
		return mdast.Fingerprint(node)
	}
	fpOld := make([]string, m)
	for i, node := range old {
		fpOld[i] = key(node)
	}
	fpNew := make([]string, n)
	for j, node := range new {
		fpNew[j] = key(node)
	}

	table := make([][]int, m+1)
	for i := range table {
		table[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if fpOld[i-1] == fpNew[j-1] {
				table[i][j] = table[i-1][j-1] + 1
			} else if table[i-1][j] >= table[i][j-1] {
				table[i][j] = table[i-1][j]
			} else {
				table[i][j] = table[i][j-1]
			}
		}
	}

	var matches [][2]int
	i, j := m, n
	for i > 0 && j > 0 {
		if fpOld[i-1] == fpNew[j-1] {
			matches = append(matches, [2]int{i - 1, j - 1})
			i--
			j--
		} else if table[i-1][j] >= table[i][j-1] {
			i--
		} else {
			j--
		}
	}

	for a, b := 0, len(matches)-1; a < b; a, b = a+1, b-1 {
		matches[a], matches[b] = matches[b], matches[a]
	}
	return matches
}
