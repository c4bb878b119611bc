package handshake

import (
	"context"
	"crypto/ecdh"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/paidmesh/paidmesh/internal/errs"
	"github.com/paidmesh/paidmesh/internal/metrics"
	"github.com/paidmesh/paidmesh/pkg/connector"
	"github.com/paidmesh/paidmesh/pkg/message"
	"github.com/paidmesh/paidmesh/pkg/msgutil/nonce"
)

// EncryptionKeyResolver looks up a peer's handshake encryption public key,
// advertised alongside its signing identity in its peer record.
type EncryptionKeyResolver interface {
	ResolveEncryptionKey(ctx context.Context, peerKey string) (*ecdh.PublicKey, error)
}

// Responder implements the responder side of chain negotiation per §4.5
// and satisfies paymenthandler.HandshakeResponder.
type Responder struct {
	SigningKey    *secp256k1.PrivateKey
	EncryptionKey *ecdh.PrivateKey
	Connector     connector.Client
	Resolver      EncryptionKeyResolver
	RequestIDs    *nonce.Manager

	SupportedChains     []string
	SettlementAddresses map[string]string
	PreferredTokens     map[string]string
	DestinationAddress  string
	InitialDeposit      uint64
	SettlementTimeout   time.Duration
	ResponseKind        uint16

	// RateLimit is the minimum interval between accepted requests from the
	// same peer key. Zero selects a 1s default.
	RateLimit time.Duration

	rateMu      sync.Mutex
	lastRequest map[string]time.Time
}

func (r *Responder) allow(peerKey string) bool {
	interval := r.RateLimit
	if interval <= 0 {
		interval = time.Second
	}

	r.rateMu.Lock()
	defer r.rateMu.Unlock()
	if r.lastRequest == nil {
		r.lastRequest = make(map[string]time.Time)
	}
	now := time.Now()
	if last, ok := r.lastRequest[peerKey]; ok && now.Sub(last) < interval {
		return false
	}
	r.lastRequest[peerKey] = now
	return true
}

// HandleRequest implements paymenthandler.HandshakeResponder. reqEnvelope
// is the full packet-payload envelope; the caller has already verified its
// signature, but decoding happens again here for content access.
func (r *Responder) HandleRequest(ctx context.Context, reqEnvelope []byte) ([]byte, error) {
	start := time.Now()
	metrics.HandshakesInitiated.WithLabelValues("responder").Inc()
	resp, err := r.handleRequest(ctx, reqEnvelope)
	metrics.HandshakeDuration.WithLabelValues("responder").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		metrics.HandshakesFailed.WithLabelValues(failureType(err)).Inc()
		return nil, err
	}
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	return resp, nil
}

func (r *Responder) handleRequest(ctx context.Context, reqEnvelope []byte) ([]byte, error) {
	reqMsg, err := message.DecodePacketPayload(reqEnvelope)
	if err != nil {
		return nil, errs.BadRequest("malformed handshake request envelope")
	}

	if !r.allow(reqMsg.AuthorKey) {
		return nil, errs.New(errs.CodeUnauthorized, "handshake rate limit exceeded for this peer")
	}

	peerEncPub, err := r.resolveEncryptionKey(ctx, reqMsg.AuthorKey)
	if err != nil {
		return nil, errs.BadRequest("cannot resolve peer encryption key: " + err.Error())
	}

	sealed, err := decodeContent(reqMsg.Content)
	if err != nil {
		return nil, errs.BadRequest("malformed sealed handshake payload")
	}
	plain, err := open(r.EncryptionKey, sealed)
	if err != nil {
		return nil, errs.BadRequest("cannot decrypt handshake request")
	}

	var req RequestPayload
	if err := json.Unmarshal(plain, &req); err != nil {
		return nil, errs.BadRequest("malformed handshake request payload")
	}
	if req.RequestID == "" {
		return nil, errs.BadRequest("missing requestId")
	}
	if r.RequestIDs.IsNonceUsed(req.RequestID) {
		return nil, errs.BadRequest("stale requestId")
	}
	r.RequestIDs.MarkNonceUsed(req.RequestID)

	chain, token, err := negotiateChain(req.SupportedChains, req.PreferredTokens, r.SupportedChains, r.PreferredTokens)
	if err != nil {
		return nil, errs.ChainMismatch()
	}

	timeout := r.SettlementTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	openCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	info, err := r.Connector.OpenChannel(openCtx, reqMsg.AuthorKey, chain, token, r.InitialDeposit, int(timeout.Seconds()))
	if err != nil {
		return nil, errs.Timeout("channel open did not complete before handshake expiry")
	}

	resp := ResponsePayload{
		RequestID:                req.RequestID,
		DestinationAddress:       r.DestinationAddress,
		NegotiatedChain:          chain,
		SettlementAddress:        r.SettlementAddresses[chain],
		ChannelID:                info.ChannelID,
		SettlementTimeoutSeconds: int(timeout.Seconds()),
	}

	respPlain, err := json.Marshal(resp)
	if err != nil {
		return nil, errs.Internal("marshal handshake response", err)
	}

	sealedResp, err := seal(peerEncPub, respPlain)
	if err != nil {
		return nil, errs.Internal("seal handshake response", err)
	}

	respMsg, err := message.Sign(r.SigningKey, time.Now().Unix(), r.ResponseKind, nil, encodeContent(sealedResp))
	if err != nil {
		return nil, errs.Internal("sign handshake response", err)
	}
	respEnvelope, err := message.EncodePacketPayload(respMsg)
	if err != nil {
		return nil, errs.Internal("encode handshake response envelope", err)
	}
	return respEnvelope, nil
}

func (r *Responder) resolveEncryptionKey(ctx context.Context, peerKey string) (*ecdh.PublicKey, error) {
	if r.Resolver == nil {
		return nil, fmt.Errorf("no encryption key resolver configured")
	}
	return r.Resolver.ResolveEncryptionKey(ctx, peerKey)
}
