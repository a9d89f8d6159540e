package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdcrdt/common"
)

// TestMarkdownRoundTrip tests bootstrap and projection
func TestMarkdownRoundTrip(t *testing.T) {
	md := "# Title\n\nHello *world*.\n\n- one\n- two\n"
	doc := FromMarkdown(md, common.NewSessionID())

	assert.Equal(t, md, doc.ToMarkdown())
}

// TestUpdate tests the local edit loop
func TestUpdate(t *testing.T) {
	doc := FromMarkdown("# H\n\nOld.\n", common.NewSessionID())

	cs := doc.Update("# H\n\nNew.\n")
	require.NotEmpty(t, cs.Changes)
	assert.Equal(t, "# H\n\nNew.\n", doc.ToMarkdown())

	// Each edit advances the local revision
	cs2 := doc.Update("# H\n\nNew.\n\nMore.\n")
	assert.Equal(t, -1, cs.Rev.Compare(cs2.Rev))
}

// TestChangeSetExchangeConverges tests two replicas editing
// concurrently and exchanging changesets: both converge byte for byte
func TestChangeSetExchangeConverges(t *testing.T) {
	alice := FromMarkdown("# Notes\n\nShared text.\n", common.NewSessionID())

	// Bob joins by decoding Alice's state
	encoded, err := alice.Encode()
	require.NoError(t, err)
	bob, err := DecodeDocument(encoded, common.NewSessionID())
	require.NoError(t, err)

	// Concurrent edits
	csAlice := alice.Update("# Notes\n\nShared text.\n\nAlice's addition.\n")
	csBob := bob.Update("# Notes\n\nRewritten by Bob.\n")

	// Cross-apply
	alice.ApplyChangeSet(csBob)
	bob.ApplyChangeSet(csAlice)

	assert.Equal(t, alice.ToMarkdown(), bob.ToMarkdown())

	// Byte-for-byte identical state: same node set on both replicas
	dataAlice, err := alice.Encode()
	require.NoError(t, err)
	dataBob, err := bob.Encode()
	require.NoError(t, err)
	assert.Equal(t, dataAlice, dataBob)
}

// TestMergeMatchesChangeSetExchange tests that state-based merge and
// changeset exchange reach the same document
func TestMergeMatchesChangeSetExchange(t *testing.T) {
	alice := FromMarkdown("First.\n\nSecond.\n", common.NewSessionID())

	encoded, err := alice.Encode()
	require.NoError(t, err)
	bob, err := DecodeDocument(encoded, common.NewSessionID())
	require.NoError(t, err)

	csAlice := alice.Update("First.\n\nSecond.\n\nThird.\n")
	bob.Update("First.\n")

	// Bob takes Alice's changeset; Alice merges Bob's whole state
	bob.ApplyChangeSet(csAlice)
	alice.Merge(bob.Tree())

	assert.Equal(t, alice.ToMarkdown(), bob.ToMarkdown())
	assert.Equal(t, "First.\n\nThird.\n", alice.ToMarkdown())
}

// TestClone tests replica independence
func TestClone(t *testing.T) {
	doc := FromMarkdown("# H\n", common.NewSessionID())
	clone := doc.Clone()

	clone.Update("# H\n\nOnly in the clone.\n")
	assert.Equal(t, "# H\n", doc.ToMarkdown())
	assert.Equal(t, "# H\n\nOnly in the clone.\n", clone.ToMarkdown())
}

// TestDecodeDocumentRejectsGarbage tests the decode error path
func TestDecodeDocumentRejectsGarbage(t *testing.T) {
	_, err := DecodeDocument([]byte("garbage"), common.NewSessionID())
	assert.Error(t, err)
}
