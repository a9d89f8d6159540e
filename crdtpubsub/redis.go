package crdtpubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"mdcrdt/crdtpatch"
)

// RedisPubSub implements the PubSub interface using Redis channels.
type RedisPubSub struct {
	// client is the Redis client.
	client *redis.Client
	// options contains the configuration options.
	options *Options
	// subscriptions is a map of topic/subscriber to subscription.
	subscriptions map[string]*redisSubscription
	// mutex protects the subscriptions map.
	mutex sync.Mutex
	// closed indicates whether the PubSub has been closed.
	closed bool
}

// redisSubscription represents one subscriber's Redis subscription.
type redisSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisPubSub creates a new RedisPubSub with the specified Redis
// client and options. The connection is verified with a ping.
func NewRedisPubSub(client *redis.Client, options *Options) (*RedisPubSub, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if options == nil {
		options = NewOptions()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPubSub{
		client:        client,
		options:       options,
		subscriptions: make(map[string]*redisSubscription),
	}, nil
}

// Publish publishes a changeset to the specified topic.
func (ps *RedisPubSub) Publish(ctx context.Context, topic string, cs *crdtpatch.ChangeSet, format EncodingFormat) error {
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
func (ps *RedisPubSub) PublishRaw(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
	if format == "" {
		format = ps.options.DefaultFormat
	}

	msg := ChangeSetMessage{
		Topic:   topic,
		Payload: data,
		Format:  format,
		Metadata: map[string]string{
			"client": ps.options.ClientID,
		},
	}
	msgData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return ps.client.Publish(ctx, topic, msgData).Err()
}

// Subscribe subscribes to the specified topic. The handler runs on a
// dedicated goroutine until Unsubscribe or Close.
func (ps *RedisPubSub) Subscribe(ctx context.Context, topic string, subscriberID string, handler SubscriberFunc) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.closed {
		return fmt.Errorf("pubsub is closed")
	}
	key := subscriptionKey(topic, subscriberID)
	if _, ok := ps.subscriptions[key]; ok {
		return fmt.Errorf("subscriber %s already subscribed to topic %s", subscriberID, topic)
	}

	subCtx, cancel := context.WithCancel(ctx)
	pubsub := ps.client.Subscribe(subCtx, topic)
	sub := &redisSubscription{
		pubsub: pubsub,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	ps.subscriptions[key] = sub

	go func() {
		defer close(sub.done)
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg ChangeSetMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					log.Errorw("failed to decode message", "topic", topic, "error", err)
					continue
				}
				if err := handler(subCtx, topic, msg.Payload, msg.Format); err != nil {
					log.Errorw("subscriber failed to handle message", "topic", topic, "subscriber", subscriberID, "error", err)
				}
			}
		}
	}()

	return nil
}

// Unsubscribe removes the subscriber from the topic.
func (ps *RedisPubSub) Unsubscribe(ctx context.Context, topic string, subscriberID string) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	key := subscriptionKey(topic, subscriberID)
	sub, ok := ps.subscriptions[key]
	if !ok {
		return fmt.Errorf("subscriber %s not subscribed to topic %s", subscriberID, topic)
	}
	delete(ps.subscriptions, key)

	sub.cancel()
	if err := sub.pubsub.Close(); err != nil {
		return fmt.Errorf("failed to close redis subscription: %w", err)
	}
	<-sub.done
	return nil
}

// Close closes the pubsub and every subscription. The Redis client is
// owned by the caller and stays open.
func (ps *RedisPubSub) Close() error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.closed {
		return nil
	}
	ps.closed = true
	for key, sub := range ps.subscriptions {
		sub.cancel()
		if err := sub.pubsub.Close(); err != nil {
			log.Errorw("failed to close redis subscription", "key", key, "error", err)
		}
	}
	ps.subscriptions = make(map[string]*redisSubscription)
	return nil
}

func subscriptionKey(topic, subscriberID string) string {
	return topic + "/" + subscriberID
}
