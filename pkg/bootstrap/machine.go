package bootstrap

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/paidmesh/paidmesh/internal/errs"
	"github.com/paidmesh/paidmesh/pkg/connector"
	"github.com/paidmesh/paidmesh/pkg/handshake"
	"github.com/paidmesh/paidmesh/pkg/message"
	"github.com/paidmesh/paidmesh/pkg/peer"
)

// Config wires the orchestrator to the rest of the node.
type Config struct {
	SelfKey    *secp256k1.PrivateKey
	SelfRecord peer.Record

	GenesisPeers []GenesisPeer
	EnvPeers     []GenesisPeer
	Registry     RegistryLookup

	Connector  connector.Client
	PeerReader PeerReader
	Watcher    PeerRecordWatcher
	Requester  *handshake.Requester

	// AnnouncePrice is what this node pays each bootstrap peer in phase 4
	// to publish its own record, so the bootstrap peer earns a routing fee.
	AnnouncePrice uint64

	// ReverseDiscoveryCooldown bounds how often this node will initiate a
	// handshake with the same newly-seen peer key.
	ReverseDiscoveryCooldown time.Duration

	Logger Logger
}

// Machine runs the five-phase bootstrap sequence and, once ready, the
// reverse-discovery monitor.
type Machine struct {
	cfg   Config
	table *peer.Table

	mu        sync.Mutex
	phase     Phase
	observers []func(Phase)

	cooldownMu sync.Mutex
	cooldown   map[string]time.Time
}

// NewMachine builds a Machine in its initial discovering phase.
func NewMachine(cfg Config) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.ReverseDiscoveryCooldown <= 0 {
		cfg.ReverseDiscoveryCooldown = time.Minute
	}
	return &Machine{
		cfg:      cfg,
		table:    peer.NewTable(),
		phase:    PhaseDiscovering,
		cooldown: make(map[string]time.Time),
	}
}

// RegisterObserver subscribes fn to every phase transition.
func (m *Machine) RegisterObserver(fn func(Phase)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// PeerTable exposes the registered-peer view for health reporting and
// trust-priority refresh.
func (m *Machine) PeerTable() *peer.Table {
	return m.table
}

// Health is the summary the health endpoint reports per spec §4.8.
type Health struct {
	Phase        Phase
	PeerCount    int
	ChannelCount int
}

// Health returns the current snapshot.
func (m *Machine) Health() Health {
	return Health{
		Phase:        m.Phase(),
		PeerCount:    m.table.Len(),
		ChannelCount: m.table.ChannelCount(),
	}
}

func (m *Machine) transition(p Phase) {
	m.mu.Lock()
	m.phase = p
	observers := append([]func(Phase){}, m.observers...)
	m.mu.Unlock()
	for _, fn := range observers {
		fn(p)
	}
}

// Run executes phases 1 through 4 to completion, then transitions to
// ready and starts the reverse-discovery monitor in the background. Run
// returns once phase 4 completes; the caller does not block on phase 5.
func (m *Machine) Run(ctx context.Context) error {
	discovered := m.discover(ctx)
	m.transition(PhaseRegistering)

	registered := make([]GenesisPeer, 0, len(discovered))
	for _, gp := range discovered {
		if err := m.registerOne(ctx, gp); err != nil {
			m.cfg.Logger.Warn("bootstrap: register failed, skipping peer", "peer", gp.Key, "err", err)
			continue
		}
		registered = append(registered, gp)
	}
	m.transition(PhaseHandshaking)

	handshaked := make([]GenesisPeer, 0, len(registered))
	for _, gp := range registered {
		if err := m.handshakeOne(ctx, gp); err != nil {
			m.cfg.Logger.Warn("bootstrap: handshake failed, skipping peer", "peer", gp.Key, "err", err)
			continue
		}
		handshaked = append(handshaked, gp)
	}
	m.transition(PhaseAnnouncing)

	for _, gp := range handshaked {
		if err := m.announceOne(ctx, gp); err != nil {
			m.cfg.Logger.Warn("bootstrap: announce failed, skipping peer", "peer", gp.Key, "err", err)
		}
	}
	m.transition(PhaseReady)

	go m.runReverseDiscovery(ctx)
	return nil
}

// discover implements phase 1: merge the genesis list, an optional
// registry lookup, and environment-supplied peers, validating each.
func (m *Machine) discover(ctx context.Context) []GenesisPeer {
	all := append([]GenesisPeer{}, m.cfg.GenesisPeers...)

	if m.cfg.Registry != nil {
		fromRegistry, err := m.cfg.Registry.FetchPeers(ctx)
		if err != nil {
			m.cfg.Logger.Warn("bootstrap: registry lookup failed", "err", err)
		} else {
			all = append(all, fromRegistry...)
		}
	}

	all = append(all, m.cfg.EnvPeers...)

	valid := make([]GenesisPeer, 0, len(all))
	for _, gp := range all {
		if err := peer.ValidateKeyFormat(gp.Key); err != nil {
			m.cfg.Logger.Warn("bootstrap: invalid genesis peer key, skipping", "peer", gp.Key, "err", err)
			continue
		}
		if gp.TransportEndpoint == "" {
			m.cfg.Logger.Warn("bootstrap: genesis peer missing transport endpoint, skipping", "peer", gp.Key)
			continue
		}
		valid = append(valid, gp)
	}
	return valid
}

// registerOne implements phase 2: read the peer's own record, then
// register it with the connector using that record's routing address.
func (m *Machine) registerOne(ctx context.Context, gp GenesisPeer) error {
	rec, err := m.cfg.PeerReader.ReadPeerRecord(ctx, gp.TransportEndpoint, gp.Key)
	if err != nil {
		return fmt.Errorf("read peer record: %w", err)
	}

	if err := m.cfg.Connector.RegisterPeer(ctx, gp.Key, rec.TransportEndpoint, rec.RoutingAddress, nil, 0, ""); err != nil {
		return fmt.Errorf("register with connector: %w", err)
	}

	m.table.Upsert(peer.Entry{
		Key:               gp.Key,
		RoutingAddress:    rec.RoutingAddress,
		TransportEndpoint: rec.TransportEndpoint,
		EncryptionKey:     rec.EncryptionKey,
		SupportedChains:   rec.SupportedChains,
		RegisteredAt:      time.Now(),
	})
	return nil
}

// handshakeOne implements phase 3: send a zero-amount handshake request;
// on fulfill, record the opened channel id.
func (m *Machine) handshakeOne(ctx context.Context, gp GenesisPeer) error {
	entry, ok := m.table.Get(gp.Key)
	if !ok {
		return fmt.Errorf("peer %s not registered", gp.Key)
	}

	resp, err := m.cfg.Requester.Handshake(ctx, gp.Key, entry.RoutingAddress, 0, 10000)
	if err != nil {
		if rejected, ok := err.(*handshake.RejectedError); ok && rejected.Code == string(errs.CodeInsufficientPayment) {
			return fmt.Errorf("peer requires payment for bootstrap handshake: %w", err)
		}
		return fmt.Errorf("handshake: %w", err)
	}

	m.table.SetChannel(gp.Key, resp.ChannelID, 0)
	return nil
}

// announceOne implements phase 4: publish this node's own peer record as
// a paid packet to gp, so gp earns a routing fee and stores the record.
func (m *Machine) announceOne(ctx context.Context, gp GenesisPeer) error {
	entry, ok := m.table.Get(gp.Key)
	if !ok {
		return fmt.Errorf("peer %s not registered", gp.Key)
	}

	msg, err := peer.Sign(m.cfg.SelfKey, time.Now().Unix(), m.cfg.SelfRecord)
	if err != nil {
		return fmt.Errorf("sign own peer record: %w", err)
	}
	envelope, err := message.EncodePacketPayload(msg)
	if err != nil {
		return fmt.Errorf("encode peer record envelope: %w", err)
	}

	result, err := m.cfg.Connector.SendPacket(ctx, entry.RoutingAddress, m.cfg.AnnouncePrice, envelope, 10000)
	if err != nil {
		return fmt.Errorf("send announce packet: %w", err)
	}
	if result.Outcome != connector.Fulfill {
		return fmt.Errorf("announce rejected: %s %s", result.ErrorCode, result.ErrorMessage)
	}
	return nil
}

// runReverseDiscovery implements phase 5's subscription: a new peer
// record seen on the local relay triggers phase 2-3 for that peer,
// subject to a per-target cooldown and a do-not-handshake-self guard.
func (m *Machine) runReverseDiscovery(ctx context.Context) {
	if m.cfg.Watcher == nil {
		return
	}
	err := m.cfg.Watcher.WatchPeerRecords(ctx, m.cfg.SelfRecord.TransportEndpoint, func(msg *message.SignedMessage) {
		m.onReverseDiscoveredRecord(ctx, msg)
	})
	if err != nil && ctx.Err() == nil {
		m.cfg.Logger.Warn("bootstrap: reverse discovery watch ended", "err", err)
	}
}

func (m *Machine) onReverseDiscoveredRecord(ctx context.Context, msg *message.SignedMessage) {
	selfKey := hex.EncodeToString(m.cfg.SelfKey.PubKey().SerializeCompressed())
	if msg.AuthorKey == selfKey {
		return
	}
	if !m.allowReverseDiscovery(msg.AuthorKey) {
		return
	}

	rec, err := peer.Decode(msg)
	if err != nil {
		m.cfg.Logger.Warn("bootstrap: malformed reverse-discovered peer record", "err", err)
		return
	}

	gp := GenesisPeer{Key: msg.AuthorKey, TransportEndpoint: rec.TransportEndpoint, RoutingAddress: rec.RoutingAddress}
	if err := m.registerOne(ctx, gp); err != nil {
		m.cfg.Logger.Warn("bootstrap: reverse-discovery register failed", "peer", gp.Key, "err", err)
		return
	}
	if err := m.handshakeOne(ctx, gp); err != nil {
		m.cfg.Logger.Warn("bootstrap: reverse-discovery handshake failed", "peer", gp.Key, "err", err)
	}
}

func (m *Machine) allowReverseDiscovery(peerKey string) bool {
	m.cooldownMu.Lock()
	defer m.cooldownMu.Unlock()
	now := time.Now()
	if last, ok := m.cooldown[peerKey]; ok && now.Sub(last) < m.cfg.ReverseDiscoveryCooldown {
		return false
	}
	m.cooldown[peerKey] = now
	return true
}
