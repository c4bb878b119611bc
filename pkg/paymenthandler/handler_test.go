package paymenthandler

import (
	"context"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/paidmesh/paidmesh/pkg/connector"
	"github.com/paidmesh/paidmesh/pkg/dispatch"
	"github.com/paidmesh/paidmesh/pkg/message"
	"github.com/paidmesh/paidmesh/pkg/pricing"
	"github.com/paidmesh/paidmesh/pkg/store"
)

const handshakeReqKind uint16 = 20100

func newHandler(t *testing.T) (*Handler, *secp256k1.PrivateKey) {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	h := &Handler{
		Pricing:          pricing.NewPolicy("", 0, pricing.Rule{BasePricePerByte: 1}, handshakeReqKind),
		Store:            store.NewMemoryStore(),
		Dispatch:         dispatch.NewTable(),
		HandshakeReqKind: handshakeReqKind,
	}
	return h, priv
}

func envelope(t *testing.T, priv *secp256k1.PrivateKey, kind uint16, content string) []byte {
	t.Helper()
	msg, err := message.Sign(priv, 1000, kind, nil, content)
	require.NoError(t, err)
	data, err := message.EncodePacketPayload(msg)
	require.NoError(t, err)
	return data
}

// TestInsufficientPaymentThenRetry covers S3.
func TestInsufficientPaymentThenRetry(t *testing.T) {
	h, priv := newHandler(t)
	data := envelope(t, priv, 1, "0123456789") // 10 bytes, 1 unit/byte

	result := h.HandlePacket(context.Background(), "g.relay", 5, data)
	require.Equal(t, connector.Reject, result.Outcome)
	require.Equal(t, "F06", result.ErrorCode)

	result = h.HandlePacket(context.Background(), "g.relay", 10, data)
	require.Equal(t, connector.Fulfill, result.Outcome)
}

func TestMalformedEnvelopeRejected(t *testing.T) {
	h, _ := newHandler(t)
	result := h.HandlePacket(context.Background(), "g.relay", 1000, []byte("not an envelope"))
	require.Equal(t, connector.Reject, result.Outcome)
	require.Equal(t, "F00", result.ErrorCode)
}

func TestBadSignatureRejected(t *testing.T) {
	h, priv := newHandler(t)
	data := envelope(t, priv, 1, "hello")

	msg, err := message.DecodePacketPayload(data)
	require.NoError(t, err)
	msg.Content = "tampered"
	tampered, err := message.EncodePacketPayload(msg)
	require.NoError(t, err)

	result := h.HandlePacket(context.Background(), "g.relay", 1000, tampered)
	require.Equal(t, connector.Reject, result.Outcome)
	require.Equal(t, "F00", result.ErrorCode)
}

type fakeBroadcaster struct{ got *message.SignedMessage }

func (b *fakeBroadcaster) Broadcast(msg *message.SignedMessage) { b.got = msg }

func TestEphemeralDeliveredNotStored(t *testing.T) {
	h, priv := newHandler(t)
	h.Pricing.SetDefaultRule(pricing.Rule{})
	bc := &fakeBroadcaster{}
	h.Broadcaster = bc

	data := envelope(t, priv, 20001, "ephemeral content")
	result := h.HandlePacket(context.Background(), "g.relay", 0, data)
	require.Equal(t, connector.Fulfill, result.Outcome)
	require.NotNil(t, bc.got)

	stored, err := h.Store.Get(context.Background(), bc.got.ID)
	require.NoError(t, err)
	require.Nil(t, stored)
}

type fakeSink struct{ actions []dispatch.Action }

func (s *fakeSink) Enqueue(actions []dispatch.Action) { s.actions = append(s.actions, actions...) }

func TestStoredMessageInvokesDispatchHandler(t *testing.T) {
	h, priv := newHandler(t)
	h.Pricing.SetDefaultRule(pricing.Rule{})
	sink := &fakeSink{}
	h.ActionSink = sink
	h.Dispatch.Register(7, func(msg *message.SignedMessage, ctx dispatch.Context) []dispatch.Action {
		return []dispatch.Action{{Kind: dispatch.ActionReact, TargetID: msg.ID, Emoji: "+1"}}
	}, dispatch.ActionReact)

	data := envelope(t, priv, 7, "app message")
	result := h.HandlePacket(context.Background(), "g.relay", 0, data)
	require.Equal(t, connector.Fulfill, result.Outcome)
	require.Len(t, sink.actions, 1)
}
