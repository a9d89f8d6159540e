package docstore

import (
	"context"
	"testing"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdcrdt/common"
	"mdcrdt/crdt"
	"mdcrdt/crdtpubsub"
	"mdcrdt/mdast"
)

func buildTree(t *testing.T, md string) *crdt.TreeNode {
	t.Helper()
	r := common.LogicalTimestamp{SID: common.NewSessionID(), Counter: 1}
	return crdt.BuildTree(mdast.Parse(md), r, common.NewestFirst)
}

// testStore exercises the Store contract against one adapter.
func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	// Missing documents report not-found
	_, err := s.LoadDocument(ctx, "missing")
	assert.IsType(t, ErrDocumentNotFound{}, err)

	// Save, load, round trip through the codec
	tree := buildTree(t, "# Stored\n\nBody.\n")
	require.NoError(t, SaveTree(ctx, s, "doc-1", tree))

	loaded, err := LoadTree(ctx, s, "doc-1", common.ParseTimestamp, common.NewestFirst)
	require.NoError(t, err)
	assert.Equal(t,
		mdast.Stringify(crdt.TreeToAST(tree)),
		mdast.Stringify(crdt.TreeToAST(loaded)))

	// Overwrite replaces the stored revision
	tree2 := buildTree(t, "# Stored\n\nChanged.\n")
	require.NoError(t, SaveTree(ctx, s, "doc-1", tree2))
	loaded, err = LoadTree(ctx, s, "doc-1", common.ParseTimestamp, common.NewestFirst)
	require.NoError(t, err)
	assert.Equal(t, "# Stored\n\nChanged.\n", mdast.Stringify(crdt.TreeToAST(loaded)))

	// List sees every key
	require.NoError(t, SaveTree(ctx, s, "doc-2", tree))
	keys, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, keys)

	// Delete removes the document
	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))
	_, err = s.LoadDocument(ctx, "doc-1")
	assert.IsType(t, ErrDocumentNotFound{}, err)

	require.NoError(t, s.Close())
}

// TestMemoryStore tests the in-memory adapter
func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

// TestFileStore tests the file adapter
func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	testStore(t, s)
}

// TestFileStoreEscapesKeys tests that arbitrary keys map to safe file
// names
func TestFileStoreEscapesKeys(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "team/docs: draft #1"
	require.NoError(t, s.SaveDocument(ctx, key, []byte("data")))

	data, err := s.LoadDocument(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)

	keys, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)
}

// TestBlockStore tests the content-addressed adapter
func TestBlockStore(t *testing.T) {
	ds := dssync.MutexWrap(datastore.NewMapDatastore())
	testStore(t, NewBlockStore(ds))
}

// TestReplicatedStore tests the Merkle-CRDT adapter against the store
// contract, with deltas looping back through an in-process transport
func TestReplicatedStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ps := crdtpubsub.NewMemoryPubSub(nil)
	defer ps.Close()

	ds := dssync.MutexWrap(datastore.NewMapDatastore())
	s, err := NewReplicatedStore(ctx, ds, ps, "docs")
	require.NoError(t, err)

	testStore(t, s)
}

// TestBlockStoreCIDs tests content addressing: the same bytes always
// map to the same CID, and old revisions stay retrievable
func TestBlockStoreCIDs(t *testing.T) {
	ds := dssync.MutexWrap(datastore.NewMapDatastore())
	s := NewBlockStore(ds)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, "doc", []byte("revision-1")))
	cid1, err := s.DocumentCID(ctx, "doc")
	require.NoError(t, err)

	require.NoError(t, s.SaveDocument(ctx, "doc", []byte("revision-2")))
	cid2, err := s.DocumentCID(ctx, "doc")
	require.NoError(t, err)
	assert.NotEqual(t, cid1, cid2)

	// The first revision is still addressable by CID
	old, err := s.LoadRevision(ctx, cid1)
	require.NoError(t, err)
	assert.Equal(t, []byte("revision-1"), old)

	// Identical content yields the identical CID
	require.NoError(t, s.SaveDocument(ctx, "doc", []byte("revision-1")))
	cid3, err := s.DocumentCID(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, cid1, cid3)
}
