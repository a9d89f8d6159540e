// Package docstore persists encoded documents. Adapters store the
// canonical bytes produced by the codec package under a caller-chosen
// document key; the block-backed adapter additionally content-addresses
// every revision.
package docstore

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"mdcrdt/codec"
	"mdcrdt/common"
	"mdcrdt/crdt"
)

var log = logging.Logger("mdcrdt/docstore")

// ErrDocumentNotFound is returned when a document key is not present.
type ErrDocumentNotFound struct {
	Key string
}

func (e ErrDocumentNotFound) Error() string {
	return fmt.Sprintf("document not found: %s", e.Key)
}

// Store is a persistence adapter for encoded documents.
type Store interface {
	// SaveDocument stores the encoded document under the key,
	// replacing any previous revision.
	SaveDocument(ctx context.Context, key string, data []byte) error

	// LoadDocument returns the encoded document stored under the key.
	LoadDocument(ctx context.Context, key string) ([]byte, error)

	// ListDocuments returns every stored document key.
	ListDocuments(ctx context.Context) ([]string, error)

	// DeleteDocument removes the document stored under the key.
	DeleteDocument(ctx context.Context, key string) error

	// Close releases the adapter's resources.
	Close() error
}

// SaveTree encodes an RGA tree and stores it under the key.
func SaveTree(ctx context.Context, s Store, key string, tree *crdt.TreeNode) error {
	data, err := codec.EncodeTree(tree)
	if err != nil {
		return fmt.Errorf("failed to encode tree: %w", err)
	}
	return s.SaveDocument(ctx, key, data)
}

// LoadTree loads and decodes the RGA tree stored under the key.
func LoadTree(ctx context.Context, s Store, key string, parse common.RevisionParser, cmp common.RevisionComparator) (*crdt.TreeNode, error) {
	data, err := s.LoadDocument(ctx, key)
	if err != nil {
		return nil, err
	}
	return codec.DecodeTree(data, parse, cmp)
}
