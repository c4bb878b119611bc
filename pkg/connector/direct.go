package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paidmesh/paidmesh/internal/logger"
	"github.com/paidmesh/paidmesh/internal/metrics"
)

// Router is the shared in-process registry backing every DirectClient in a
// test or single-process deployment: it plays the part the real connector's
// routing table plays for the remote implementation.
type Router struct {
	mu sync.RWMutex

	peers        map[string]peerRegistration
	handlers     map[string]PacketHandler // routingAddress -> handler
	channels     map[string]ChannelInfo
	channelSeq   int
}

type peerRegistration struct {
	transportEndpoint string
	routingAddress    string
	routes            []Route
	priority          int
	channelID         string
}

// NewRouter creates an empty in-process router.
func NewRouter() *Router {
	return &Router{
		peers:    make(map[string]peerRegistration),
		handlers: make(map[string]PacketHandler),
		channels: make(map[string]ChannelInfo),
	}
}

// DirectClient is the in-process Client implementation: zero network
// latency, packets are delivered by calling the destination's registered
// handler synchronously on the caller's goroutine.
type DirectClient struct {
	router         *Router
	routingAddress string
}

// NewDirectClient binds a Client to a shared router under routingAddress.
func NewDirectClient(router *Router, routingAddress string) *DirectClient {
	return &DirectClient{router: router, routingAddress: routingAddress}
}

// RegisterPeer implements Client.
func (c *DirectClient) RegisterPeer(_ context.Context, peerKey, transportEndpoint, routingAddress string, routes []Route, priority int, channelID string) error {
	c.router.mu.Lock()
	defer c.router.mu.Unlock()
	_, existed := c.router.peers[peerKey]
	c.router.peers[peerKey] = peerRegistration{
		transportEndpoint: transportEndpoint,
		routingAddress:    routingAddress,
		routes:            routes,
		priority:          priority,
		channelID:         channelID,
	}
	if !existed {
		metrics.PeersRegistered.Inc()
	}
	return nil
}

// RemovePeer implements Client.
func (c *DirectClient) RemovePeer(_ context.Context, peerKey string) error {
	c.router.mu.Lock()
	defer c.router.mu.Unlock()
	if _, existed := c.router.peers[peerKey]; existed {
		metrics.PeersRegistered.Dec()
	}
	delete(c.router.peers, peerKey)
	return nil
}

// SendPacket implements Client. It looks up the destination's registered
// handler and calls it directly; if no handler is registered for that
// routing address, the packet is rejected as unreachable.
func (c *DirectClient) SendPacket(ctx context.Context, destinationRoutingAddress string, amount uint64, dataBytes []byte, timeoutMs int) (PacketResult, error) {
	start := time.Now()
	c.router.mu.RLock()
	handler, ok := c.router.handlers[destinationRoutingAddress]
	c.router.mu.RUnlock()

	if !ok {
		metrics.PacketsSent.WithLabelValues(string(Reject)).Inc()
		logger.GetDefaultLogger().Debug("connector packet rejected: no route", logger.String("destination", destinationRoutingAddress))
		return PacketResult{
			Outcome:      Reject,
			ErrorCode:    "T00",
			ErrorMessage: fmt.Sprintf("no route to %s", destinationRoutingAddress),
		}, nil
	}

	result := handler(ctx, destinationRoutingAddress, amount, dataBytes)
	metrics.PacketLatency.Observe(time.Since(start).Seconds())
	metrics.PacketsSent.WithLabelValues(string(result.Outcome)).Inc()
	return result, nil
}

// OpenChannel implements Client. The direct implementation has no on-chain
// settlement to wait on, so it fabricates an immediately-open channel; this
// is only ever used for in-process tests and bootstrap-self deployments.
func (c *DirectClient) OpenChannel(_ context.Context, peerKey, chain, token string, initialDeposit uint64, timeoutSeconds int) (ChannelInfo, error) {
	c.router.mu.Lock()
	defer c.router.mu.Unlock()

	c.router.channelSeq++
	info := ChannelInfo{
		ChannelID: fmt.Sprintf("direct-%s-%d", uuid.NewString(), c.router.channelSeq),
		State:     ChannelOpen,
		Deposit:   initialDeposit,
		Balance:   initialDeposit,
	}
	c.router.channels[info.ChannelID] = info
	if reg, ok := c.router.peers[peerKey]; ok {
		reg.channelID = info.ChannelID
		c.router.peers[peerKey] = reg
	}
	metrics.ChannelsOpen.Inc()
	return info, nil
}

// ChannelState implements Client.
func (c *DirectClient) ChannelState(_ context.Context, channelID string) (ChannelInfo, error) {
	c.router.mu.RLock()
	defer c.router.mu.RUnlock()
	info, ok := c.router.channels[channelID]
	if !ok {
		return ChannelInfo{}, fmt.Errorf("connector: unknown channel %q", channelID)
	}
	return info, nil
}

// RegisterPacketHandler implements Client.
func (c *DirectClient) RegisterPacketHandler(fn PacketHandler) {
	c.router.mu.Lock()
	defer c.router.mu.Unlock()
	c.router.handlers[c.routingAddress] = fn
}
