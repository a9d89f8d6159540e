package crdtpubsub

import (
	"context"
	"fmt"
	"sync"

	"mdcrdt/crdtpatch"
)

// MemoryPubSub implements the PubSub interface in-process. It is the
// transport used by tests and by co-located replicas.
type MemoryPubSub struct {
	// options contains the configuration options.
	options *Options
	// subscriptions is a map of topic to subscriptions.
	subscriptions map[string][]*memorySubscription
	// mutex protects the subscriptions map.
	mutex sync.RWMutex
	// closed indicates whether the PubSub has been closed.
	closed bool
}

// memorySubscription represents a subscription to an in-memory topic.
type memorySubscription struct {
	subscriberID string
	handler      SubscriberFunc
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewMemoryPubSub creates a new MemoryPubSub with the specified options.
func NewMemoryPubSub(options *Options) *MemoryPubSub {
	if options == nil {
		options = NewOptions()
	}
	return &MemoryPubSub{
		options:       options,
		subscriptions: make(map[string][]*memorySubscription),
	}
}

// Publish publishes a changeset to the specified topic.
func (ps *MemoryPubSub) Publish(ctx context.Context, topic string, cs *crdtpatch.ChangeSet, format EncodingFormat) error {
	if format == "" {
		format = ps.options.DefaultFormat
	}
	data, err := Encode(cs, format)
	if err != nil {
		return fmt.Errorf("failed to encode changeset: %w", err)
	}
	return ps.PublishRaw(ctx, topic, data, format)
}

// PublishRaw publishes already-encoded data to the specified topic.
// Delivery is synchronous: every live subscriber's handler runs before
// PublishRaw returns, which keeps tests deterministic.
func (ps *MemoryPubSub) PublishRaw(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
	if format == "" {
		format = ps.options.DefaultFormat
	}

	ps.mutex.RLock()
	if ps.closed {
		ps.mutex.RUnlock()
		return fmt.Errorf("pubsub is closed")
	}
	subscribers := append([]*memorySubscription{}, ps.subscriptions[topic]...)
	ps.mutex.RUnlock()

	for _, sub := range subscribers {
		select {
		case <-sub.ctx.Done():
			continue
		default:
		}
		if err := sub.handler(ctx, topic, data, format); err != nil {
			log.Errorw("subscriber failed to handle message", "topic", topic, "subscriber", sub.subscriberID, "error", err)
		}
	}
	return nil
}

// Subscribe subscribes to the specified topic.
func (ps *MemoryPubSub) Subscribe(ctx context.Context, topic string, subscriberID string, handler SubscriberFunc) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.closed {
		return fmt.Errorf("pubsub is closed")
	}
	for _, sub := range ps.subscriptions[topic] {
		if sub.subscriberID == subscriberID {
			return fmt.Errorf("subscriber %s already subscribed to topic %s", subscriberID, topic)
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	ps.subscriptions[topic] = append(ps.subscriptions[topic], &memorySubscription{
		subscriberID: subscriberID,
		handler:      handler,
		ctx:          subCtx,
		cancel:       cancel,
	})
	return nil
}

// Unsubscribe removes the subscriber from the topic.
func (ps *MemoryPubSub) Unsubscribe(ctx context.Context, topic string, subscriberID string) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	subs := ps.subscriptions[topic]
	for i, sub := range subs {
		if sub.subscriberID == subscriberID {
			sub.cancel()
			ps.subscriptions[topic] = append(subs[:i], subs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("subscriber %s not subscribed to topic %s", subscriberID, topic)
}

// Close closes the pubsub and cancels every subscription.
func (ps *MemoryPubSub) Close() error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.closed {
		return nil
	}
	ps.closed = true
	for _, subs := range ps.subscriptions {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	ps.subscriptions = make(map[string][]*memorySubscription)
	return nil
}
