// Package bootstrap implements the five-phase bootstrap orchestrator (C8):
// discovering, registering, handshaking, announcing, and ready. Phase
// failure for one peer is logged and that peer is skipped; it never stops
// the orchestrator.
package bootstrap

import (
	"context"

	"github.com/paidmesh/paidmesh/pkg/message"
	"github.com/paidmesh/paidmesh/pkg/peer"
)

// Phase is one stage of the orchestrator's state machine.
type Phase string

const (
	PhaseDiscovering Phase = "discovering"
	PhaseRegistering Phase = "registering"
	PhaseHandshaking Phase = "handshaking"
	PhaseAnnouncing  Phase = "announcing"
	PhaseReady       Phase = "ready"
)

// GenesisPeer is one entry of the built-in or environment-supplied
// bootstrap peer list: enough to register and read a full peer record
// from, before any handshake has happened.
type GenesisPeer struct {
	Key               string
	TransportEndpoint string
	RoutingAddress    string
}

// PeerReader passively reads a peer's record from its own relay, over the
// free gossip read path (phase 2).
type PeerReader interface {
	ReadPeerRecord(ctx context.Context, transportEndpoint, peerKey string) (*peer.Record, error)
}

// PeerRecordWatcher subscribes to new peer records arriving on the local
// relay, driving reverse discovery in phase 5. onRecord is invoked for
// each new record until ctx is done or the watch fails.
type PeerRecordWatcher interface {
	WatchPeerRecords(ctx context.Context, localTransportEndpoint string, onRecord func(*message.SignedMessage)) error
}

// RegistryLookup fetches additional peers from a permanent decentralized
// registry, merged with the genesis list in phase 1. Optional: a nil
// RegistryLookup simply contributes no peers.
type RegistryLookup interface {
	FetchPeers(ctx context.Context) ([]GenesisPeer, error)
}

// Logger is the narrow logging capability the orchestrator needs. The
// orchestrator writes one Warn line per per-peer failure; phase
// transitions are reported to observers, not logged.
type Logger interface {
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
}

// noopLogger discards everything; used when Config.Logger is nil so
// callers aren't forced to supply one in tests.
type noopLogger struct{}

func (noopLogger) Info(string, ...interface{}) {}
func (noopLogger) Warn(string, ...interface{}) {}
