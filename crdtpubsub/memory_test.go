package crdtpubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdcrdt/common"
	"mdcrdt/crdt"
	"mdcrdt/crdtpatch"
	"mdcrdt/mdast"
)

func makeChangeSet(t *testing.T) *crdtpatch.ChangeSet {
	t.Helper()
	sid := common.NewSessionID()
	tree := crdt.BuildTree(mdast.Parse("# H\n\nOld.\n"), common.LogicalTimestamp{SID: sid, Counter: 1}, common.NewestFirst)
	cs := crdtpatch.ComputeChangeSet(tree, mdast.Parse("# H\n\nNew.\n"), common.LogicalTimestamp{SID: sid, Counter: 2})
	require.NotEmpty(t, cs.Changes)
	return cs
}

// TestMemoryPubSubDelivery tests publish and subscribe round trip
func TestMemoryPubSubDelivery(t *testing.T) {
	ps := NewMemoryPubSub(nil)
	defer ps.Close()

	ctx := context.Background()
	cs := makeChangeSet(t)

	var received []*crdtpatch.ChangeSet
	err := ps.Subscribe(ctx, "doc-1", "sub-1", func(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
		decoded, err := Decode(data, format, common.ParseTimestamp)
		if err != nil {
			return err
		}
		received = append(received, decoded)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, ps.Publish(ctx, "doc-1", cs, FormatCBOR))
	require.Len(t, received, 1)
	assert.Equal(t, cs.Rev.String(), received[0].Rev.String())
	assert.Len(t, received[0].Changes, len(cs.Changes))

	// Messages on other topics are not delivered
	require.NoError(t, ps.Publish(ctx, "doc-2", cs, FormatJSON))
	assert.Len(t, received, 1)
}

// TestMemoryPubSubFormats tests both encodings through the transport
func TestMemoryPubSubFormats(t *testing.T) {
	cs := makeChangeSet(t)

	for _, format := range []EncodingFormat{FormatCBOR, FormatJSON} {
		data, err := Encode(cs, format)
		require.NoError(t, err)

		decoded, err := Decode(data, format, common.ParseTimestamp)
		require.NoError(t, err)
		assert.Equal(t, cs.Rev.String(), decoded.Rev.String())
	}

	_, err := Encode(cs, EncodingFormat("bogus"))
	assert.Error(t, err)
	_, err = Decode([]byte("{}"), EncodingFormat("bogus"), common.ParseTimestamp)
	assert.Error(t, err)
}

// TestMemoryPubSubUnsubscribe tests that unsubscribed handlers stop
// receiving
func TestMemoryPubSubUnsubscribe(t *testing.T) {
	ps := NewMemoryPubSub(nil)
	defer ps.Close()

	ctx := context.Background()
	count := 0
	require.NoError(t, ps.Subscribe(ctx, "doc-1", "sub-1", func(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
		count++
		return nil
	}))

	// Duplicate subscriber ids are rejected
	assert.Error(t, ps.Subscribe(ctx, "doc-1", "sub-1", func(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
		return nil
	}))

	require.NoError(t, ps.PublishRaw(ctx, "doc-1", []byte("x"), FormatCBOR))
	assert.Equal(t, 1, count)

	require.NoError(t, ps.Unsubscribe(ctx, "doc-1", "sub-1"))
	require.NoError(t, ps.PublishRaw(ctx, "doc-1", []byte("x"), FormatCBOR))
	assert.Equal(t, 1, count)

	assert.Error(t, ps.Unsubscribe(ctx, "doc-1", "sub-1"))
}

// TestMemoryPubSubClosed tests operations after Close
func TestMemoryPubSubClosed(t *testing.T) {
	ps := NewMemoryPubSub(nil)
	require.NoError(t, ps.Close())

	ctx := context.Background()
	assert.Error(t, ps.PublishRaw(ctx, "doc-1", []byte("x"), FormatCBOR))
	assert.Error(t, ps.Subscribe(ctx, "doc-1", "sub-1", func(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
		return nil
	}))
	assert.NoError(t, ps.Close())
}
