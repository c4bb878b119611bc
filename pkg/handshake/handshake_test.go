package handshake

import (
	"context"
	"crypto/ecdh"
	"encoding/hex"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/paidmesh/paidmesh/internal/errs"
	"github.com/paidmesh/paidmesh/pkg/connector"
	"github.com/paidmesh/paidmesh/pkg/msgutil/nonce"
)

func TestSealOpenRoundTrip(t *testing.T) {
	peerPriv, err := GenerateEncryptionKey()
	require.NoError(t, err)

	sealed, err := seal(peerPriv.PublicKey(), []byte("negotiate a chain"))
	require.NoError(t, err)

	plain, err := open(peerPriv, sealed)
	require.NoError(t, err)
	require.Equal(t, "negotiate a chain", string(plain))
}

func TestOpenRejectsWrongKey(t *testing.T) {
	peerPriv, err := GenerateEncryptionKey()
	require.NoError(t, err)
	otherPriv, err := GenerateEncryptionKey()
	require.NoError(t, err)

	sealed, err := seal(peerPriv.PublicKey(), []byte("secret"))
	require.NoError(t, err)

	_, err = open(otherPriv, sealed)
	require.Error(t, err)
}

func TestNegotiateChainPrefersRequesterToken(t *testing.T) {
	chain, token, err := negotiateChain(
		[]string{"evm:base:8453", "xrp:mainnet"},
		map[string]string{"xrp:mainnet": "XRP"},
		[]string{"xrp:mainnet", "evm:base:8453"},
		map[string]string{"evm:base:8453": "USDC"},
	)
	require.NoError(t, err)
	require.Equal(t, "xrp:mainnet", chain)
	require.Equal(t, "XRP", token)
}

func TestNegotiateChainFallsBackToSelfToken(t *testing.T) {
	chain, token, err := negotiateChain(
		[]string{"evm:base:8453"},
		nil,
		[]string{"evm:base:8453"},
		map[string]string{"evm:base:8453": "USDC"},
	)
	require.NoError(t, err)
	require.Equal(t, "evm:base:8453", chain)
	require.Equal(t, "USDC", token)
}

func TestNegotiateChainNoIntersectionErrors(t *testing.T) {
	_, _, err := negotiateChain(
		[]string{"evm:base:8453"},
		nil,
		[]string{"xrp:mainnet"},
		nil,
	)
	require.Error(t, err)
}

type staticResolver struct {
	keys map[string]*ecdh.PublicKey
}

func (r *staticResolver) ResolveEncryptionKey(ctx context.Context, peerKey string) (*ecdh.PublicKey, error) {
	return r.keys[peerKey], nil
}

// TestHandshakeEndToEndOpensChannel covers S1: a requester and responder
// over a direct connector, supporting an overlapping chain, successfully
// negotiate and the requester's response carries a channel id.
func TestHandshakeEndToEndOpensChannel(t *testing.T) {
	router := connector.NewRouter()

	requesterSigning, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	requesterEnc, err := GenerateEncryptionKey()
	require.NoError(t, err)
	requesterKey := pubHex(requesterSigning)

	responderSigning, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	responderEnc, err := GenerateEncryptionKey()
	require.NoError(t, err)
	responderKey := pubHex(responderSigning)

	resolver := &staticResolver{keys: map[string]*ecdh.PublicKey{
		requesterKey: requesterEnc.PublicKey(),
		responderKey: responderEnc.PublicKey(),
	}}

	responderClient := connector.NewDirectClient(router, "g.responder")
	responder := &Responder{
		SigningKey:          responderSigning,
		EncryptionKey:       responderEnc,
		Connector:           responderClient,
		Resolver:            resolver,
		RequestIDs:          nonce.NewManager(time.Minute, time.Minute),
		SupportedChains:     []string{"evm:base:8453"},
		SettlementAddresses: map[string]string{"evm:base:8453": "0xresponder"},
		DestinationAddress:  "g.responder",
		ResponseKind:        20101,
	}
	responderClient.RegisterPacketHandler(func(ctx context.Context, dest string, amount uint64, data []byte) connector.PacketResult {
		respEnvelope, err := responder.HandleRequest(ctx, data)
		if err != nil {
			return connector.PacketResult{Outcome: connector.Reject, ErrorCode: "F00", ErrorMessage: err.Error()}
		}
		return connector.PacketResult{Outcome: connector.Fulfill, Data: respEnvelope}
	})

	requesterClient := connector.NewDirectClient(router, "g.requester")
	requester := &Requester{
		SigningKey:          requesterSigning,
		EncryptionKey:       requesterEnc,
		Connector:           requesterClient,
		Resolver:            resolver,
		RequestKind:         20100,
		SupportedChains:     []string{"evm:base:8453", "xrp:mainnet"},
		SettlementAddresses: map[string]string{"evm:base:8453": "0xrequester"},
	}

	resp, err := requester.Handshake(context.Background(), responderKey, "g.responder", 0, 5000)
	require.NoError(t, err)
	require.Equal(t, "evm:base:8453", resp.NegotiatedChain)
	require.NotEmpty(t, resp.ChannelID)
}

// TestHandshakeChainMismatchRejects covers S2: no common supported chain
// yields a reject whose error code is CHAIN_MISMATCH and no channel id.
func TestHandshakeChainMismatchRejects(t *testing.T) {
	router := connector.NewRouter()

	requesterSigning, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	requesterEnc, err := GenerateEncryptionKey()
	require.NoError(t, err)
	requesterKey := pubHex(requesterSigning)

	responderSigning, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	responderEnc, err := GenerateEncryptionKey()
	require.NoError(t, err)
	responderKey := pubHex(responderSigning)

	resolver := &staticResolver{keys: map[string]*ecdh.PublicKey{
		requesterKey: requesterEnc.PublicKey(),
		responderKey: responderEnc.PublicKey(),
	}}

	responderClient := connector.NewDirectClient(router, "g.responder")
	responder := &Responder{
		SigningKey:      responderSigning,
		EncryptionKey:   responderEnc,
		Connector:       responderClient,
		Resolver:        resolver,
		RequestIDs:      nonce.NewManager(time.Minute, time.Minute),
		SupportedChains: []string{"xrp:mainnet"},
		ResponseKind:    20101,
	}
	responderClient.RegisterPacketHandler(func(ctx context.Context, dest string, amount uint64, data []byte) connector.PacketResult {
		respEnvelope, err := responder.HandleRequest(ctx, data)
		if err != nil {
			return connector.PacketResult{Outcome: connector.Reject, ErrorCode: string(errs.CodeOf(err)), ErrorMessage: err.Error()}
		}
		return connector.PacketResult{Outcome: connector.Fulfill, Data: respEnvelope}
	})

	requesterClient := connector.NewDirectClient(router, "g.requester")
	requester := &Requester{
		SigningKey:      requesterSigning,
		EncryptionKey:   requesterEnc,
		Connector:       requesterClient,
		Resolver:        resolver,
		RequestKind:     20100,
		SupportedChains: []string{"evm:base:8453"},
	}

	_, err = requester.Handshake(context.Background(), responderKey, "g.responder", 0, 5000)
	require.Error(t, err)
	rejected, ok := err.(*RejectedError)
	require.True(t, ok)
	require.Equal(t, "CHAIN_MISMATCH", rejected.Code)
}

func TestResponderRateLimitsRepeatedRequests(t *testing.T) {
	r := &Responder{RateLimit: time.Hour}
	require.True(t, r.allow("peer-a"))
	require.False(t, r.allow("peer-a"))
	require.True(t, r.allow("peer-b"))
}

func pubHex(priv *secp256k1.PrivateKey) string {
	return hex.EncodeToString(priv.PubKey().SerializeCompressed())
}
