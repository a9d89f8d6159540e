// Package crdtpubsub distributes encoded changesets between replicas
// over pluggable transports. Delivery guarantees are the transport's
// own. Applying a changeset twice is harmless and concurrent changesets
// may arrive in any order; a changeset applied before one it builds on
// drops the changes whose parent or target is not present yet.
package crdtpubsub

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"mdcrdt/codec"
	"mdcrdt/common"
	"mdcrdt/crdtpatch"
)

var log = logging.Logger("mdcrdt/pubsub")

// EncodingFormat represents the format used to encode changesets on
// the wire.
type EncodingFormat string

const (
	// FormatCBOR is the canonical binary encoding.
	FormatCBOR EncodingFormat = "cbor"
	// FormatJSON is the human-readable encoding.
	FormatJSON EncodingFormat = "json"
)

// Encode encodes a changeset in the given format.
func Encode(cs *crdtpatch.ChangeSet, format EncodingFormat) ([]byte, error) {
	switch format {
	case FormatJSON:
		return codec.EncodeChangeSetJSON(cs)
	case FormatCBOR, "":
		return codec.EncodeChangeSet(cs)
	default:
		return nil, fmt.Errorf("unknown encoding format: %s", format)
	}
}

// Decode decodes a changeset in the given format.
func Decode(data []byte, format EncodingFormat, parse common.RevisionParser) (*crdtpatch.ChangeSet, error) {
	switch format {
	case FormatJSON:
		return codec.DecodeChangeSetJSON(data, parse)
	case FormatCBOR, "":
		return codec.DecodeChangeSet(data, parse)
	default:
		return nil, common.ErrDecode{Message: "unknown encoding format: " + string(format)}
	}
}

// ChangeSetMessage represents a message containing an encoded changeset.
type ChangeSetMessage struct {
	// Topic is the topic the message was published to.
	Topic string `json:"topic"`
	// Payload is the encoded changeset data.
	Payload []byte `json:"payload"`
	// Format is the encoding format used for the payload.
	Format EncodingFormat `json:"format"`
	// Metadata is optional metadata associated with the message.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SubscriberFunc handles one received changeset message.
type SubscriberFunc func(ctx context.Context, topic string, data []byte, format EncodingFormat) error

// Publisher defines the interface for publishing changesets.
type Publisher interface {
	// Publish publishes a changeset to the specified topic.
	Publish(ctx context.Context, topic string, cs *crdtpatch.ChangeSet, format EncodingFormat) error
	// PublishRaw publishes already-encoded changeset data.
	PublishRaw(ctx context.Context, topic string, data []byte, format EncodingFormat) error
	// Close closes the publisher.
	Close() error
}

// Subscriber defines the interface for subscribing to changesets.
type Subscriber interface {
	// Subscribe subscribes to the specified topic and calls the handler
	// for each received message.
	Subscribe(ctx context.Context, topic string, subscriberID string, handler SubscriberFunc) error
	// Unsubscribe removes the subscriber from the topic.
	Unsubscribe(ctx context.Context, topic string, subscriberID string) error
	// Close closes the subscriber.
	Close() error
}

// PubSub combines the Publisher and Subscriber interfaces.
type PubSub interface {
	Publisher
	Subscriber
}

// Options represents configuration options for a PubSub implementation.
type Options struct {
	// DefaultFormat is the encoding used when a publish call does not
	// name one.
	DefaultFormat EncodingFormat
	// ClientID identifies this client to the transport.
	ClientID string
}

// NewOptions creates Options with default values.
func NewOptions() *Options {
	return &Options{
		DefaultFormat: FormatCBOR,
	}
}
