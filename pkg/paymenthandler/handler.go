// Package paymenthandler is the entry point the connector invokes for
// every inbound paid packet: it decodes the packet-payload envelope,
// verifies payment, and routes the decoded message to the relay write
// path, the handshake responder, or the application dispatch table.
//
// The handler is pure from the connector's perspective: it never inspects
// packet semantics beyond fulfill/reject, and every mutation it performs
// goes through the event store (which serializes its own per-slot writes).
package paymenthandler

import (
	"context"
	"errors"

	"github.com/paidmesh/paidmesh/internal/errs"
	"github.com/paidmesh/paidmesh/pkg/connector"
	"github.com/paidmesh/paidmesh/pkg/dispatch"
	"github.com/paidmesh/paidmesh/pkg/message"
	"github.com/paidmesh/paidmesh/pkg/pricing"
	"github.com/paidmesh/paidmesh/pkg/store"
)

// HandshakeResponder is the C5 capability this handler calls into for
// handshake-request kinds: it decrypts and answers the request, opening a
// channel synchronously, and returns the encrypted response envelope.
type HandshakeResponder interface {
	HandleRequest(ctx context.Context, reqEnvelope []byte) (respEnvelope []byte, err error)
}

// Broadcaster delivers a message to currently-matching live subscribers.
// Used for ephemeral non-handshake kinds, which are never stored.
type Broadcaster interface {
	Broadcast(msg *message.SignedMessage)
}

// ActionSink enqueues C10 dispatch actions for the outbound publisher.
type ActionSink interface {
	Enqueue(actions []dispatch.Action)
}

// Handler wires C1 (decode/verify), C3 (pricing), C2 (store), C5
// (handshake), and C10 (dispatch) into the connector's packet-handler
// callback.
type Handler struct {
	Pricing          *pricing.Policy
	Store            store.EventStore
	Handshake        HandshakeResponder
	Dispatch         *dispatch.Table
	Broadcaster      Broadcaster
	ActionSink       ActionSink
	HandshakeReqKind uint16
}

// HandlePacket implements connector.PacketHandler.
func (h *Handler) HandlePacket(ctx context.Context, destinationRoutingAddress string, amount uint64, data []byte) connector.PacketResult {
	msg, err := message.DecodePacketPayload(data)
	if err != nil {
		return reject(errs.BadRequest("malformed packet-payload envelope"))
	}

	if err := message.Verify(msg); err != nil {
		return reject(errs.BadRequest("signature verification failed"))
	}

	price := h.Pricing.PriceFor(msg)
	if amount < price.Amount {
		return reject(errs.InsufficientPayment(price.Amount))
	}

	switch {
	case msg.Kind == h.HandshakeReqKind:
		return h.handleHandshake(ctx, data)

	case msg.Kind == store.DeletionKind:
		if err := h.Store.ApplyDeletion(ctx, msg); err != nil {
			return reject(errs.Internal("applying deletion", err))
		}
		return fulfill(nil)

	case message.ClassifyKind(msg.Kind) == message.ClassEphemeral:
		if h.Broadcaster != nil {
			h.Broadcaster.Broadcast(msg)
		}
		return fulfill(nil)

	default:
		result, err := h.Store.Put(ctx, msg)
		if err != nil {
			return reject(errs.Internal("storing message", err))
		}
		if result == store.IgnoredOlder || result == store.IgnoredDuplicate {
			// Still fulfilled: the sender paid for a write attempt that
			// lost a replacement race or repeated an id it already
			// holds, not a protocol failure.
			return fulfill(nil)
		}
		if h.Dispatch != nil && h.Dispatch.HasHandler(msg.Kind) {
			actions := h.Dispatch.Dispatch(msg, dispatch.Context{Stored: true})
			if len(actions) > 0 && h.ActionSink != nil {
				h.ActionSink.Enqueue(actions)
			}
		}
		return fulfill(nil)
	}
}

// AuthorizeGossipWrite implements relay.WriteAuthorizer: a gossip-socket
// write carries no packet amount to check against price, so it is
// authorized only when the message is free to begin with.
func (h *Handler) AuthorizeGossipWrite(msg *message.SignedMessage) error {
	price := h.Pricing.PriceFor(msg)
	if price.Amount > 0 {
		return errs.InsufficientPayment(price.Amount)
	}
	return nil
}

func (h *Handler) handleHandshake(ctx context.Context, reqEnvelope []byte) connector.PacketResult {
	if h.Handshake == nil {
		return reject(errs.Internal("no handshake responder configured", errors.New("paymenthandler: nil HandshakeResponder")))
	}

	respEnvelope, err := h.Handshake.HandleRequest(ctx, reqEnvelope)
	if err != nil {
		var relayErr *errs.RelayError
		if errors.As(err, &relayErr) {
			return reject(relayErr)
		}
		return reject(errs.Internal("handshake failed", err))
	}
	return fulfill(respEnvelope)
}

func reject(e *errs.RelayError) connector.PacketResult {
	result := connector.PacketResult{
		Outcome:      connector.Reject,
		ErrorCode:    string(e.Code),
		ErrorMessage: e.Message,
	}
	return result
}

func fulfill(data []byte) connector.PacketResult {
	return connector.PacketResult{Outcome: connector.Fulfill, Data: data}
}
