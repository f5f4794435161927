// Package p2p runs the libp2p node that broadcasts committed ledger events
// to subscribed peers, so auditors and storefront mirrors can follow product
// verification without polling the API.
package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	log "github.com/sirupsen/logrus"

	"github.com/greentrace/ledger/internal/models"
)

// EventProtocolID identifies the ledger event stream protocol.
const EventProtocolID = "/greentrace/1.0.0/events"

// announceTimeout bounds how long one peer may block an announcement.
const announceTimeout = 5 * time.Second

// Node represents a libp2p node
type Node struct {
	host   host.Host
	dht    *dht.IpfsDHT
	config NodeConfig
}

// NodeConfig holds P2P node configuration
type NodeConfig struct {
	ListenAddresses []string
	EnableTCP       bool
	EnableQUIC      bool
	BootstrapPeers  []string
}

// NewNode creates a new libp2p node
func NewNode(listenAddresses []string, enableTCP, enableQUIC bool) (*Node, error) {
	if len(listenAddresses) == 0 {
		listenAddresses = []string{
			"/ip4/0.0.0.0/tcp/0",
			"/ip4/0.0.0.0/udp/0/quic-v1",
		}
	}

	config := NodeConfig{
		ListenAddresses: listenAddresses,
		EnableTCP:       enableTCP,
		EnableQUIC:      enableQUIC,
	}

	return &Node{
		config: config,
	}, nil
}

// Start starts the P2P node
func (n *Node) Start() error {
	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(n.config.ListenAddresses...),
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create libp2p host: %w", err)
	}
	n.host = h

	// DHT for peer discovery
	ctx := context.Background()
	kadDHT, err := dht.New(ctx, h)
	if err != nil {
		return fmt.Errorf("failed to create DHT: %w", err)
	}
	n.dht = kadDHT

	if err := kadDHT.Bootstrap(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap DHT: %w", err)
	}

	return nil
}

// Stop stops the P2P node
func (n *Node) Stop() error {
	if n.dht != nil {
		if err := n.dht.Close(); err != nil {
			return err
		}
	}
	if n.host != nil {
		return n.host.Close()
	}
	return nil
}

// Close is an alias for Stop
func (n *Node) Close() error {
	return n.Stop()
}

// Host returns the libp2p host
func (n *Node) Host() host.Host {
	return n.host
}

// ID returns the peer ID
func (n *Node) ID() peer.ID {
	if n.host == nil {
		return ""
	}
	return n.host.ID()
}

// Addrs returns the multiaddrs the node is listening on
func (n *Node) Addrs() []string {
	if n.host == nil {
		return nil
	}

	var addrs []string
	for _, addr := range n.host.Addrs() {
		addrs = append(addrs, addr.String())
	}
	return addrs
}

// Connect connects to a peer
func (n *Node) Connect(ctx context.Context, peerAddr string) error {
	addrInfo, err := peer.AddrInfoFromString(peerAddr)
	if err != nil {
		return fmt.Errorf("failed to parse peer address: %w", err)
	}

	if err := n.host.Connect(ctx, *addrInfo); err != nil {
		return fmt.Errorf("failed to connect to peer: %w", err)
	}

	return nil
}

// Announce broadcasts a committed ledger event to every connected peer.
// Delivery is best effort: a peer that fails to take the event is logged and
// skipped, never blocking the ledger.
func (n *Node) Announce(event models.LedgerEvent) {
	if n.host == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Errorf("failed to encode ledger event: %v", err)
		return
	}

	for _, pid := range n.host.Network().Peers() {
		if err := n.sendEvent(pid, data); err != nil {
			log.WithField("peer", pid.String()).Debugf("failed to announce event: %v", err)
		}
	}
}

func (n *Node) sendEvent(pid peer.ID, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
	defer cancel()

	stream, err := n.host.NewStream(ctx, pid, protocol.ID(EventProtocolID))
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer stream.Close()

	if _, err := stream.Write(data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// SetEventHandler registers a callback for ledger events announced by peers.
func (n *Node) SetEventHandler(handler func(models.LedgerEvent)) {
	n.host.SetStreamHandler(protocol.ID(EventProtocolID), func(stream network.Stream) {
		defer stream.Close()

		var event models.LedgerEvent
		if err := json.NewDecoder(stream).Decode(&event); err != nil {
			log.Debugf("failed to decode ledger event: %v", err)
			return
		}
		handler(event)
	})
}
