// Package connector adapts to the external packet router: the single
// abstraction every caller in this module programs against, with a direct
// (in-process) and a remote (HTTP) implementation behind it. Swapping
// implementations is a startup-time decision; callers never branch on
// which one is in use.
package connector

import "context"

// ChannelState is the lifecycle state of a bilateral payment channel.
type ChannelState string

const (
	ChannelOpen    ChannelState = "open"
	ChannelPending ChannelState = "pending"
	ChannelClosed  ChannelState = "closed"
)

// Outcome is the fulfill/reject result of a sent packet.
type Outcome string

const (
	Fulfill Outcome = "fulfill"
	Reject  Outcome = "reject"
)

// PacketResult is what sendPacket and the inbound packet handler both deal
// in: either fulfilled with data, or rejected with a code and message.
type PacketResult struct {
	Outcome      Outcome
	Data         []byte
	ErrorCode    string
	ErrorMessage string
}

// Route is a routing-table entry registered alongside a peer.
type Route struct {
	Prefix string
}

// ChannelInfo describes a channel's current accounting state.
type ChannelInfo struct {
	ChannelID string
	State     ChannelState
	Deposit   uint64
	Balance   uint64
}

// PacketHandler decides fulfill-or-reject for one inbound packet. It is the
// payment handler's (C9) entry point as seen from the connector's side.
type PacketHandler func(ctx context.Context, destinationRoutingAddress string, amount uint64, data []byte) PacketResult

// Client is the capability set every component in this module uses to
// reach the connector, regardless of whether it runs in-process or over
// HTTP.
type Client interface {
	// RegisterPeer advertises a peer's routing address and transport
	// endpoint so the connector can route packets to it.
	RegisterPeer(ctx context.Context, peerKey, transportEndpoint, routingAddress string, routes []Route, priority int, channelID string) error

	// RemovePeer withdraws a previously registered peer.
	RemovePeer(ctx context.Context, peerKey string) error

	// SendPacket routes amount to destinationRoutingAddress carrying
	// dataBytes, waiting up to timeoutMs for a fulfill or reject.
	SendPacket(ctx context.Context, destinationRoutingAddress string, amount uint64, dataBytes []byte, timeoutMs int) (PacketResult, error)

	// OpenChannel synchronously opens a bilateral payment channel on
	// chain, returning once the connector reports it open or the call
	// times out.
	OpenChannel(ctx context.Context, peerKey, chain, token string, initialDeposit uint64, timeoutSeconds int) (ChannelInfo, error)

	// ChannelState reports a channel's current accounting state.
	ChannelState(ctx context.Context, channelID string) (ChannelInfo, error)

	// RegisterPacketHandler installs the callback the connector invokes
	// for every inbound packet.
	RegisterPacketHandler(fn PacketHandler)
}
