package bootstrap

import (
	"context"
	"crypto/ecdh"
	"encoding/hex"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/paidmesh/paidmesh/pkg/connector"
	"github.com/paidmesh/paidmesh/pkg/handshake"
	"github.com/paidmesh/paidmesh/pkg/message"
	"github.com/paidmesh/paidmesh/pkg/msgutil/nonce"
	"github.com/paidmesh/paidmesh/pkg/peer"
)

type staticResolver struct {
	keys map[string]*ecdh.PublicKey
}

func (r *staticResolver) ResolveEncryptionKey(_ context.Context, peerKey string) (*ecdh.PublicKey, error) {
	return r.keys[peerKey], nil
}

type fakePeerReader struct {
	record *peer.Record
	err    error
}

func (f *fakePeerReader) ReadPeerRecord(_ context.Context, _, _ string) (*peer.Record, error) {
	return f.record, f.err
}

func pubHex(priv *secp256k1.PrivateKey) string {
	return hex.EncodeToString(priv.PubKey().SerializeCompressed())
}

// TestBootstrapRunsAllFourPhasesAndOpensChannel covers S1 at the
// orchestrator level: a fresh node with one genesis peer supporting an
// overlapping chain registers, handshakes, and announces successfully.
func TestBootstrapRunsAllFourPhasesAndOpensChannel(t *testing.T) {
	router := connector.NewRouter()

	selfSigning, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	selfEnc, err := handshake.GenerateEncryptionKey()
	require.NoError(t, err)
	selfKey := pubHex(selfSigning)

	peerSigning, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	peerEnc, err := handshake.GenerateEncryptionKey()
	require.NoError(t, err)
	peerKey := pubHex(peerSigning)

	resolver := &staticResolver{keys: map[string]*ecdh.PublicKey{
		selfKey: selfEnc.PublicKey(),
		peerKey: peerEnc.PublicKey(),
	}}

	peerClient := connector.NewDirectClient(router, "g.peer")
	peerResponder := &handshake.Responder{
		SigningKey:          peerSigning,
		EncryptionKey:       peerEnc,
		Connector:           peerClient,
		Resolver:            resolver,
		RequestIDs:          nonce.NewManager(time.Minute, time.Minute),
		SupportedChains:     []string{"evm:base:8453"},
		SettlementAddresses: map[string]string{"evm:base:8453": "0xpeer"},
		DestinationAddress:  "g.peer",
		ResponseKind:        20101,
	}
	peerClient.RegisterPacketHandler(func(ctx context.Context, dest string, amount uint64, data []byte) connector.PacketResult {
		msg, err := decodeKindProbe(data)
		if err == nil && msg == 20100 {
			respEnvelope, err := peerResponder.HandleRequest(ctx, data)
			if err != nil {
				return connector.PacketResult{Outcome: connector.Reject, ErrorCode: "F00", ErrorMessage: err.Error()}
			}
			return connector.PacketResult{Outcome: connector.Fulfill, Data: respEnvelope}
		}
		// Any other paid packet (the announce in phase 4) is simply
		// accepted by the peer's relay.
		return connector.PacketResult{Outcome: connector.Fulfill}
	})

	selfClient := connector.NewDirectClient(router, "g.self")
	requester := &handshake.Requester{
		SigningKey:          selfSigning,
		EncryptionKey:       selfEnc,
		Connector:           selfClient,
		Resolver:            resolver,
		RequestKind:         20100,
		SupportedChains:     []string{"evm:base:8453"},
		SettlementAddresses: map[string]string{"evm:base:8453": "0xself"},
	}

	reader := &fakePeerReader{record: &peer.Record{
		RoutingAddress:    "g.peer",
		TransportEndpoint: "ws://peer.example/gossip",
		SupportedChains:   []string{"evm:base:8453"},
	}}

	var phases []Phase
	machine := NewMachine(Config{
		SelfKey: selfSigning,
		SelfRecord: peer.Record{
			RoutingAddress:    "g.self",
			TransportEndpoint: "ws://self.example/gossip",
			SupportedChains:   []string{"evm:base:8453"},
		},
		GenesisPeers: []GenesisPeer{{Key: peerKey, TransportEndpoint: "ws://peer.example/gossip", RoutingAddress: "g.peer"}},
		Connector:    selfClient,
		PeerReader:   reader,
		Requester:    requester,
	})
	machine.RegisterObserver(func(p Phase) { phases = append(phases, p) })

	require.NoError(t, machine.Run(context.Background()))

	require.Equal(t, []Phase{PhaseRegistering, PhaseHandshaking, PhaseAnnouncing, PhaseReady}, phases)

	health := machine.Health()
	require.Equal(t, PhaseReady, health.Phase)
	require.Equal(t, 1, health.PeerCount)
	require.Equal(t, 1, health.ChannelCount)

	entry, ok := machine.PeerTable().Get(peerKey)
	require.True(t, ok)
	require.NotEmpty(t, entry.ChannelID)
}

func TestDiscoverSkipsInvalidGenesisPeers(t *testing.T) {
	selfSigning, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	m := NewMachine(Config{
		SelfKey: selfSigning,
		GenesisPeers: []GenesisPeer{
			{Key: "not-a-valid-key", TransportEndpoint: "ws://x"},
			{Key: pubHex(selfSigning), TransportEndpoint: ""},
		},
	})

	valid := m.discover(context.Background())
	require.Empty(t, valid)
}

func TestReverseDiscoveryCooldown(t *testing.T) {
	selfSigning, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	m := NewMachine(Config{SelfKey: selfSigning, ReverseDiscoveryCooldown: time.Hour})
	require.True(t, m.allowReverseDiscovery("peer-a"))
	require.False(t, m.allowReverseDiscovery("peer-a"))
	require.True(t, m.allowReverseDiscovery("peer-b"))
}

// decodeKindProbe extracts just the kind field from a packet-payload
// envelope, so the test's fake peer relay can route between the
// handshake responder and a plain accept.
func decodeKindProbe(data []byte) (uint16, error) {
	msg, err := message.DecodePacketPayload(data)
	if err != nil {
		return 0, err
	}
	return msg.Kind, nil
}
