package docstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ipfs/go-blockservice"
	"github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dscrdt "github.com/ipfs/go-ds-crdt"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	format "github.com/ipfs/go-ipld-format"
	dag "github.com/ipfs/go-merkledag"

	"mdcrdt/crdtpubsub"
)

// ReplicatedStore persists documents in a Merkle-CRDT replicated
// datastore: every local write becomes a CRDT delta, broadcast on a
// pubsub topic and merged automatically wherever it arrives, so stores
// sharing a topic converge without coordination. The delta DAG is
// served by a blockstore over the same datastore; replicas on
// different machines additionally need a block exchange (or a shared
// datastore) to fetch each other's delta nodes.
type ReplicatedStore struct {
	// store is the replicated key-value datastore.
	store *dscrdt.Datastore

	// bcast bridges the CRDT's broadcast loop onto the pubsub topic.
	bcast *pubsubBroadcaster
}

// NewReplicatedStore creates a ReplicatedStore over the given
// datastore, broadcasting deltas on the given topic.
func NewReplicatedStore(ctx context.Context, d datastore.Batching, ps crdtpubsub.PubSub, topic string) (*ReplicatedStore, error) {
	bcast, err := newPubsubBroadcaster(ctx, ps, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to set up broadcaster: %w", err)
	}

	var dagService format.DAGService = dag.NewDAGService(blockservice.New(blockstore.NewBlockstore(d), nil))

	opts := dscrdt.DefaultOptions()
	opts.Logger = log
	opts.RebroadcastInterval = time.Minute * 5
	opts.RepairInterval = time.Minute
	opts.PutHook = func(k datastore.Key, v []byte) {
		log.Debugw("replicated put", "key", k, "topic", topic)
	}
	opts.DeleteHook = func(k datastore.Key) {
		log.Debugw("replicated delete", "key", k, "topic", topic)
	}

	store, err := dscrdt.New(d, datastore.NewKey("/mdcrdt/replicated"), dagService, bcast, opts)
	if err != nil {
		bcast.close()
		return nil, fmt.Errorf("failed to create replicated datastore: %w", err)
	}

	return &ReplicatedStore{store: store, bcast: bcast}, nil
}

// SaveDocument stores the encoded document and broadcasts the delta.
func (s *ReplicatedStore) SaveDocument(ctx context.Context, key string, data []byte) error {
	if err := s.store.Put(ctx, datastore.NewKey(key), data); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// LoadDocument returns the encoded document from the merged state.
func (s *ReplicatedStore) LoadDocument(ctx context.Context, key string) ([]byte, error) {
	data, err := s.store.Get(ctx, datastore.NewKey(key))
	if err == datastore.ErrNotFound {
		return nil, ErrDocumentNotFound{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return data, nil
}

// ListDocuments returns every stored document key.
func (s *ReplicatedStore) ListDocuments(ctx context.Context) ([]string, error) {
	results, err := s.store.Query(ctx, dsq.Query{KeysOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer results.Close()

	var keys []string
	for result := range results.Next() {
		if result.Error != nil {
			return nil, fmt.Errorf("failed to iterate documents: %w", result.Error)
		}
		keys = append(keys, strings.TrimPrefix(result.Key, "/"))
	}
	return keys, nil
}

// DeleteDocument removes the document; the deletion replicates like
// any other delta.
func (s *ReplicatedStore) DeleteDocument(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, datastore.NewKey(key)); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Close shuts down the CRDT datastore and leaves the pubsub topic. The
// underlying datastore is owned by the caller and stays open.
func (s *ReplicatedStore) Close() error {
	err := s.store.Close()
	s.bcast.close()
	return err
}

// pubsubBroadcaster adapts the crdtpubsub transport to the pull-style
// Broadcaster the CRDT datastore consumes: received payloads queue on a
// channel that Next drains.
type pubsubBroadcaster struct {
	ctx    context.Context
	cancel context.CancelFunc
	ps     crdtpubsub.PubSub
	topic  string
	ch     chan []byte
}

const broadcasterID = "crdt-broadcaster"

func newPubsubBroadcaster(ctx context.Context, ps crdtpubsub.PubSub, topic string) (*pubsubBroadcaster, error) {
	bctx, cancel := context.WithCancel(ctx)
	b := &pubsubBroadcaster{
		ctx:    bctx,
		cancel: cancel,
		ps:     ps,
		topic:  topic,
		ch:     make(chan []byte, 64),
	}

	err := ps.Subscribe(bctx, topic, broadcasterID, func(ctx context.Context, topic string, data []byte, _ crdtpubsub.EncodingFormat) error {
		select {
		case b.ch <- data:
		case <-b.ctx.Done():
		}
		return nil
	})
	if err != nil {
		cancel()
		return nil, err
	}
	return b, nil
}

// Broadcast publishes a delta payload to the topic.
func (b *pubsubBroadcaster) Broadcast(ctx context.Context, data []byte) error {
	return b.ps.PublishRaw(ctx, b.topic, data, crdtpubsub.FormatCBOR)
}

// Next blocks until the next broadcast payload arrives.
func (b *pubsubBroadcaster) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, dscrdt.ErrNoMoreBroadcast
	case <-b.ctx.Done():
		return nil, dscrdt.ErrNoMoreBroadcast
	case data := <-b.ch:
		return data, nil
	}
}

func (b *pubsubBroadcaster) close() {
	b.cancel()
	if err := b.ps.Unsubscribe(context.Background(), b.topic, broadcasterID); err != nil {
		log.Debugw("failed to unsubscribe broadcaster", "topic", b.topic, "error", err)
	}
}
