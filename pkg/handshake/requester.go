package handshake

import (
	"context"
	"crypto/ecdh"
	"encoding/json"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"

	"github.com/paidmesh/paidmesh/internal/metrics"
	"github.com/paidmesh/paidmesh/pkg/connector"
	"github.com/paidmesh/paidmesh/pkg/message"
)

// Requester drives the initiator side of chain negotiation: build a
// sealed request, send it as a packet through the connector, and decrypt
// the synchronous fulfill data as the response. The connector's
// SendPacket already suspends until fulfill/reject/timeout, so there is no
// separate asynchronous wait for a matching HS_RES on the wire.
type Requester struct {
	SigningKey    *secp256k1.PrivateKey
	EncryptionKey *ecdh.PrivateKey
	Connector     connector.Client
	Resolver      EncryptionKeyResolver
	RequestKind   uint16

	SupportedChains     []string
	SettlementAddresses map[string]string
	PreferredTokens     map[string]string
}

// Handshake sends a handshake request to peerKey at
// destinationRoutingAddress carrying amount (bootstrap uses 0), and
// returns the negotiated response.
func (r *Requester) Handshake(ctx context.Context, peerKey, destinationRoutingAddress string, amount uint64, timeoutMs int) (*ResponsePayload, error) {
	start := time.Now()
	metrics.HandshakesInitiated.WithLabelValues("requester").Inc()
	resp, err := r.handshake(ctx, peerKey, destinationRoutingAddress, amount, timeoutMs)
	metrics.HandshakeDuration.WithLabelValues("requester").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		metrics.HandshakesFailed.WithLabelValues(failureType(err)).Inc()
		return nil, err
	}
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	return resp, nil
}

func (r *Requester) handshake(ctx context.Context, peerKey, destinationRoutingAddress string, amount uint64, timeoutMs int) (*ResponsePayload, error) {
	peerEncPub, err := r.Resolver.ResolveEncryptionKey(ctx, peerKey)
	if err != nil {
		return nil, fmt.Errorf("handshake: resolve peer encryption key: %w", err)
	}

	req := RequestPayload{
		RequestID:           uuid.NewString(),
		SupportedChains:     r.SupportedChains,
		SettlementAddresses: r.SettlementAddresses,
		PreferredTokens:     r.PreferredTokens,
	}
	plain, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	sealed, err := seal(peerEncPub, plain)
	if err != nil {
		return nil, err
	}

	msg, err := message.Sign(r.SigningKey, time.Now().Unix(), r.RequestKind, nil, encodeContent(sealed))
	if err != nil {
		return nil, err
	}
	envelope, err := message.EncodePacketPayload(msg)
	if err != nil {
		return nil, err
	}

	result, err := r.Connector.SendPacket(ctx, destinationRoutingAddress, amount, envelope, timeoutMs)
	if err != nil {
		return nil, fmt.Errorf("handshake: send packet: %w", err)
	}
	if result.Outcome != connector.Fulfill {
		return nil, &RejectedError{Code: result.ErrorCode, Message: result.ErrorMessage}
	}

	respMsg, err := message.DecodePacketPayload(result.Data)
	if err != nil {
		return nil, fmt.Errorf("handshake: decode response envelope: %w", err)
	}
	if err := message.Verify(respMsg); err != nil {
		return nil, fmt.Errorf("handshake: verify response: %w", err)
	}

	sealedResp, err := decodeContent(respMsg.Content)
	if err != nil {
		return nil, err
	}
	respPlain, err := open(r.EncryptionKey, sealedResp)
	if err != nil {
		return nil, fmt.Errorf("handshake: decrypt response: %w", err)
	}

	var resp ResponsePayload
	if err := json.Unmarshal(respPlain, &resp); err != nil {
		return nil, err
	}
	if resp.RequestID != req.RequestID {
		return nil, fmt.Errorf("handshake: response requestId mismatch")
	}
	return &resp, nil
}

// RejectedError is returned when the connector rejects the handshake
// packet outright (e.g. ChainMismatch, payment-required on a non-zero
// bootstrap attempt).
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("handshake rejected: %s %s", e.Code, e.Message)
}
