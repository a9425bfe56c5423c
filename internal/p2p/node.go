package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/federated-storage/proofpay/internal/models"
)

// EventProtocolID is the stream protocol observers subscribe on.
const EventProtocolID = "/proofpay/1.0.0/events"

// Announcer is a libp2p node that broadcasts recorded events (faults, rate
// changes, settlements) to observer peers. Announcing is best-effort; the
// events are already durable in the store before they reach the announcer.
type Announcer struct {
	host   host.Host
	dht    *dht.IpfsDHT
	config AnnouncerConfig

	mu        sync.RWMutex
	observers map[peer.ID]struct{}
}

// AnnouncerConfig holds P2P announcer configuration
type AnnouncerConfig struct {
	ListenAddresses []string
	BootstrapPeers  []string
	ObserverPeers   []string
	EnableTCP       bool
	EnableQUIC      bool
}

// NewAnnouncer creates a new event announcer
func NewAnnouncer(config AnnouncerConfig) (*Announcer, error) {
	if len(config.ListenAddresses) == 0 {
		config.ListenAddresses = []string{
			"/ip4/0.0.0.0/tcp/0",
			"/ip4/0.0.0.0/udp/0/quic-v1",
		}
	}

	return &Announcer{
		config:    config,
		observers: make(map[peer.ID]struct{}),
	}, nil
}

// Start starts the announcer node
func (a *Announcer) Start() error {
	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(a.config.ListenAddresses...),
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create libp2p host: %w", err)
	}
	a.host = h

	ctx := context.Background()
	kadDHT, err := dht.New(ctx, h)
	if err != nil {
		return fmt.Errorf("failed to create DHT: %w", err)
	}
	a.dht = kadDHT

	if err := kadDHT.Bootstrap(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap DHT: %w", err)
	}

	for _, addr := range a.config.ObserverPeers {
		if err := a.AddObserver(ctx, addr); err != nil {
			log.Printf("Warning: failed to add observer %s: %v", addr, err)
		}
	}

	return nil
}

// Stop stops the announcer node
func (a *Announcer) Stop() error {
	if a.dht != nil {
		if err := a.dht.Close(); err != nil {
			return err
		}
	}
	if a.host != nil {
		return a.host.Close()
	}
	return nil
}

// Close is an alias for Stop
func (a *Announcer) Close() error {
	return a.Stop()
}

// Host returns the libp2p host
func (a *Announcer) Host() host.Host {
	return a.host
}

// ID returns the peer ID
func (a *Announcer) ID() peer.ID {
	if a.host == nil {
		return ""
	}
	return a.host.ID()
}

// Addrs returns the multiaddrs the node is listening on
func (a *Announcer) Addrs() []string {
	if a.host == nil {
		return nil
	}

	var addrs []string
	for _, addr := range a.host.Addrs() {
		addrs = append(addrs, addr.String())
	}
	return addrs
}

// AddObserver connects to an observer peer and registers it for event
// broadcasts.
func (a *Announcer) AddObserver(ctx context.Context, peerAddr string) error {
	addrInfo, err := peer.AddrInfoFromString(peerAddr)
	if err != nil {
		return fmt.Errorf("failed to parse peer address: %w", err)
	}

	if err := a.host.Connect(ctx, *addrInfo); err != nil {
		return fmt.Errorf("failed to connect to observer: %w", err)
	}

	a.mu.Lock()
	a.observers[addrInfo.ID] = struct{}{}
	a.mu.Unlock()

	return nil
}

// Announce broadcasts an event to every registered observer. Errors are
// logged and swallowed; a lost broadcast never fails the call that emitted
// the event.
func (a *Announcer) Announce(event models.Event) {
	if a.host == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Warning: failed to encode event %s: %v", event.ID, err)
		return
	}

	a.mu.RLock()
	observers := make([]peer.ID, 0, len(a.observers))
	for id := range a.observers {
		observers = append(observers, id)
	}
	a.mu.RUnlock()

	for _, id := range observers {
		if err := a.send(id, data); err != nil {
			log.Printf("Warning: failed to announce event to %s: %v", id, err)
		}
	}
}

func (a *Announcer) send(id peer.ID, data []byte) error {
	stream, err := a.host.NewStream(context.Background(), id, EventProtocolID)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer stream.Close()

	if _, err := stream.Write(data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}
