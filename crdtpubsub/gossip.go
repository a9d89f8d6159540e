package crdtpubsub

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/routing"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"

	"mdcrdt/crdtpatch"
)

// GossipPubSub implements the PubSub interface over libp2p gossipsub,
// one gossip topic per document topic. Replicas on different machines
// discover each other through the DHT-routed host from NewGossipHost.
type GossipPubSub struct {
	host    host.Host
	ps      *pubsub.PubSub
	options *Options

	topics map[string]*pubsub.Topic
	subs   map[string]*gossipSubscription
	mutex  sync.Mutex
	closed bool
}

type gossipSubscription struct {
	sub    *pubsub.Subscription
	cancel context.CancelFunc
}

// NewGossipHost creates a libp2p host with a connection manager and
// Kademlia DHT routing, bootstrapped and ready for gossipsub.
func NewGossipHost(ctx context.Context, listenAddrs ...string) (host.Host, *dht.IpfsDHT, error) {
	connManager, err := connmgr.NewConnManager(100, 400, connmgr.WithGracePeriod(time.Minute))
	if err != nil {
		return nil, nil, err
	}

	hostKey, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	if len(listenAddrs) == 0 {
		listenAddrs = []string{"/ip4/0.0.0.0/tcp/0"}
	}

	var idht *dht.IpfsDHT
	h, err := libp2p.New(
		libp2p.Identity(hostKey),
		libp2p.ListenAddrStrings(listenAddrs...),
		libp2p.ConnectionManager(connManager),
		libp2p.NATPortMap(),
		libp2p.EnableNATService(),
		libp2p.Routing(func(h host.Host) (routing.PeerRouting, error) {
			idht, err = dht.New(ctx, h)
			return idht, err
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	if err := idht.Bootstrap(ctx); err != nil {
		h.Close()
		return nil, nil, fmt.Errorf("failed to bootstrap DHT: %w", err)
	}

	return h, idht, nil
}

// ConnectPeer dials a peer given its multiaddr string.
func ConnectPeer(ctx context.Context, h host.Host, addr string) error {
	maddr, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("invalid multiaddr %q: %w", addr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("invalid peer address %q: %w", addr, err)
	}
	return h.Connect(ctx, *info)
}

// NewGossipPubSub creates a GossipPubSub on the given host.
func NewGossipPubSub(ctx context.Context, h host.Host, options *Options) (*GossipPubSub, error) {
	if options == nil {
		options = NewOptions()
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create gossipsub: %w", err)
	}
	return &GossipPubSub{
		host:    h,
		ps:      ps,
		options: options,
		topics:  make(map[string]*pubsub.Topic),
		subs:    make(map[string]*gossipSubscription),
	}, nil
}

// Host returns the underlying libp2p host.
func (g *GossipPubSub) Host() host.Host {
	return g.host
}

// Publish publishes a changeset to the specified topic.
func (g *GossipPubSub) Publish(ctx context.Context, topic string, cs *crdtpatch.ChangeSet, format EncodingFormat) error {
	if format == "" {
		format = g.options.DefaultFormat
	}
	data, err := Encode(cs, format)
	if err != nil {
		return fmt.Errorf("failed to encode changeset: %w", err)
	}
	return g.PublishRaw(ctx, topic, data, format)
}

// PublishRaw publishes already-encoded data to the specified topic.
func (g *GossipPubSub) PublishRaw(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
	if format == "" {
		format = g.options.DefaultFormat
	}

	t, err := g.joinTopic(topic)
	if err != nil {
		return err
	}

	msg := ChangeSetMessage{Topic: topic, Payload: data, Format: format}
	msgData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return t.Publish(ctx, msgData)
}

// Subscribe subscribes to the specified topic. Messages published by
// this host are filtered out.
func (g *GossipPubSub) Subscribe(ctx context.Context, topic string, subscriberID string, handler SubscriberFunc) error {
	t, err := g.joinTopic(topic)
	if err != nil {
		return err
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	key := subscriptionKey(topic, subscriberID)
	if _, ok := g.subs[key]; ok {
		return fmt.Errorf("subscriber %s already subscribed to topic %s", subscriberID, topic)
	}

	sub, err := t.Subscribe()
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	g.subs[key] = &gossipSubscription{sub: sub, cancel: cancel}

	go func() {
		defer sub.Cancel()
		for {
			m, err := sub.Next(subCtx)
			if err != nil {
				return
			}
			if m.ReceivedFrom == g.host.ID() {
				continue
			}
			var msg ChangeSetMessage
			if err := json.Unmarshal(m.Data, &msg); err != nil {
				log.Errorw("failed to decode gossip message", "topic", topic, "error", err)
				continue
			}
			if err := handler(subCtx, topic, msg.Payload, msg.Format); err != nil {
				log.Errorw("subscriber failed to handle message", "topic", topic, "subscriber", subscriberID, "error", err)
			}
		}
	}()

	return nil
}

// Unsubscribe removes the subscriber from the topic.
func (g *GossipPubSub) Unsubscribe(ctx context.Context, topic string, subscriberID string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	key := subscriptionKey(topic, subscriberID)
	sub, ok := g.subs[key]
	if !ok {
		return fmt.Errorf("subscriber %s not subscribed to topic %s", subscriberID, topic)
	}
	delete(g.subs, key)
	sub.cancel()
	return nil
}

// Close cancels every subscription and leaves every topic. The host is
// owned by the caller and stays open.
func (g *GossipPubSub) Close() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	for _, sub := range g.subs {
		sub.cancel()
	}
	g.subs = make(map[string]*gossipSubscription)
	for name, t := range g.topics {
		if err := t.Close(); err != nil {
			log.Errorw("failed to close topic", "topic", name, "error", err)
		}
	}
	g.topics = make(map[string]*pubsub.Topic)
	return nil
}

func (g *GossipPubSub) joinTopic(topic string) (*pubsub.Topic, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closed {
		return nil, fmt.Errorf("pubsub is closed")
	}
	if t, ok := g.topics[topic]; ok {
		return t, nil
	}
	t, err := g.ps.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("failed to join topic %s: %w", topic, err)
	}
	g.topics[topic] = t
	return t, nil
}
