package docstore

import (
	"context"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	"github.com/pkg/errors"

	"mdcrdt/codec"
)

// BlockStore persists documents content-addressed: the canonical bytes
// of each saved revision become a block keyed by their CID, and a
// datastore index maps the document key to the CID of its latest
// revision. Earlier revisions stay retrievable by CID until the
// underlying blockstore is garbage-collected.
type BlockStore struct {
	// bstore holds the document blocks.
	bstore blockstore.Blockstore

	// index maps document keys to the CID of the latest revision.
	index datastore.Datastore
}

var indexPrefix = datastore.NewKey("/mdcrdt/docs")

// NewBlockStore creates a BlockStore over the given datastore: blocks
// and the key index share it.
func NewBlockStore(d datastore.Batching) *BlockStore {
	return &BlockStore{
		bstore: blockstore.NewBlockstore(d),
		index:  d,
	}
}

// SaveDocument stores the encoded document as a block and points the
// key index at its CID.
func (s *BlockStore) SaveDocument(ctx context.Context, key string, data []byte) error {
	c, err := codec.BytesCID(data)
	if err != nil {
		return errors.Wrap(err, "failed to derive cid")
	}

	blk, err := blocks.NewBlockWithCid(data, c)
	if err != nil {
		return errors.Wrap(err, "failed to build block")
	}
	if err := s.bstore.Put(ctx, blk); err != nil {
		return errors.Wrap(err, "failed to store block")
	}
	if err := s.index.Put(ctx, indexPrefix.ChildString(key), c.Bytes()); err != nil {
		return errors.Wrap(err, "failed to update index")
	}

	log.Debugw("saved document revision", "key", key, "cid", c)
	return nil
}

// LoadDocument returns the encoded latest revision of the document.
func (s *BlockStore) LoadDocument(ctx context.Context, key string) ([]byte, error) {
	c, err := s.DocumentCID(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.LoadRevision(ctx, c)
}

// DocumentCID returns the CID of the document's latest revision.
func (s *BlockStore) DocumentCID(ctx context.Context, key string) (cid.Cid, error) {
	raw, err := s.index.Get(ctx, indexPrefix.ChildString(key))
	if err == datastore.ErrNotFound {
		return cid.Undef, ErrDocumentNotFound{Key: key}
	}
	if err != nil {
		return cid.Undef, errors.Wrap(err, "failed to read index")
	}
	c, err := cid.Cast(raw)
	if err != nil {
		return cid.Undef, errors.Wrapf(err, "corrupt index entry for %s", key)
	}
	return c, nil
}

// LoadRevision returns the encoded document stored under a specific
// CID, current or historical.
func (s *BlockStore) LoadRevision(ctx context.Context, c cid.Cid) ([]byte, error) {
	blk, err := s.bstore.Get(ctx, c)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load block %s", c)
	}
	return blk.RawData(), nil
}

// ListDocuments returns every indexed document key.
func (s *BlockStore) ListDocuments(ctx context.Context) ([]string, error) {
	results, err := s.index.Query(ctx, dsq.Query{Prefix: indexPrefix.String(), KeysOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "failed to query index")
	}
	defer results.Close()

	var keys []string
	for result := range results.Next() {
		if result.Error != nil {
			return nil, errors.Wrap(result.Error, "failed to iterate index")
		}
		keys = append(keys, datastore.NewKey(result.Key).BaseNamespace())
	}
	return keys, nil
}

// DeleteDocument removes the key index entry and the latest revision's
// block.
func (s *BlockStore) DeleteDocument(ctx context.Context, key string) error {
	c, err := s.DocumentCID(ctx, key)
	if err != nil {
		if _, ok := err.(ErrDocumentNotFound); ok {
			return nil
		}
		return err
	}
	if err := s.bstore.DeleteBlock(ctx, c); err != nil {
		return errors.Wrap(err, "failed to delete block")
	}
	if err := s.index.Delete(ctx, indexPrefix.ChildString(key)); err != nil {
		return errors.Wrap(err, "failed to delete index entry")
	}
	return nil
}

// Close is a no-op; the datastore is owned by the caller.
func (s *BlockStore) Close() error {
	return nil
}
