package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/paidmesh/paidmesh/internal/errs"
	"github.com/paidmesh/paidmesh/internal/logger"
	"github.com/paidmesh/paidmesh/internal/metrics"
	"github.com/paidmesh/paidmesh/pkg/message"
	"github.com/paidmesh/paidmesh/pkg/pricing"
	"github.com/paidmesh/paidmesh/pkg/store"
)

// WriteAuthorizer is C9's hook for gossip-socket writes, which carry no
// packet payment: a write is authorized only when it is free to begin
// with (owner bypass or a zero-priced kind).
type WriteAuthorizer interface {
	AuthorizeGossipWrite(msg *message.SignedMessage) error
}

// Limits bounds per-connection resource usage per §4.4.
type Limits struct {
	MaxSubscriptionsPerConn int
	MaxFiltersPerSub        int
	OutboundQueueCapacity   int
}

func (l Limits) withDefaults() Limits {
	if l.MaxSubscriptionsPerConn <= 0 {
		l.MaxSubscriptionsPerConn = 20
	}
	if l.MaxFiltersPerSub <= 0 {
		l.MaxFiltersPerSub = 10
	}
	if l.OutboundQueueCapacity <= 0 {
		l.OutboundQueueCapacity = 256
	}
	return l
}

// Server is the paid gossip relay: one goroutine reads and processes each
// connection's frames sequentially, a second goroutine per connection
// drains its bounded outbound queue, and subscriptions across connections
// fan out in parallel.
type Server struct {
	Store     store.EventStore
	Pricing   *pricing.Policy
	Authorize WriteAuthorizer
	Limits    Limits
	Logger    logger.Logger

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*connState
}

// NewServer builds a relay server over the given store and pricing policy.
func NewServer(s store.EventStore, p *pricing.Policy, auth WriteAuthorizer, limits Limits) *Server {
	return &Server{
		Store:     s,
		Pricing:   p,
		Authorize: auth,
		Limits:    limits.withDefaults(),
		Logger:    logger.GetDefaultLogger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*connState),
	}
}

type subscription struct {
	id      string
	filters []message.Filter
}

type connState struct {
	id    string
	conn  *websocket.Conn
	queue *outboundQueue

	mu   sync.Mutex
	subs map[string]*subscription
}

// Handler returns the http.Handler that upgrades and serves gossip
// connections.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("relay: upgrade failed: %v", err), http.StatusBadRequest)
			return
		}

		cs := &connState{
			id:    uuid.NewString(),
			conn:  conn,
			queue: newOutboundQueue(s.Limits.OutboundQueueCapacity),
			subs:  make(map[string]*subscription),
		}
		s.addConn(cs)
		defer s.removeConn(cs)
		defer conn.Close()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.writeLoop(cs)
		}()

		s.readLoop(r.Context(), cs)
		cs.queue.close()
		wg.Wait()
	})
}

func (s *Server) addConn(cs *connState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[cs.id] = cs
	metrics.RelayActiveConnections.Inc()
	s.Logger.Debug("relay connection opened", logger.String("conn", cs.id))
}

func (s *Server) removeConn(cs *connState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, cs.id)
	metrics.RelayActiveConnections.Dec()
	metrics.RelayActiveSubscriptions.Sub(float64(len(cs.subs)))
	s.Logger.Debug("relay connection closed", logger.String("conn", cs.id))
}

func (s *Server) writeLoop(cs *connState) {
	for {
		frame, ok := cs.queue.pop()
		if !ok {
			return
		}
		if err := cs.conn.WriteMessage(websocket.TextMessage, frame.data); err != nil {
			return
		}
	}
}

func (s *Server) readLoop(ctx context.Context, cs *connState) {
	for {
		_, raw, err := cs.conn.ReadMessage()
		if err != nil {
			return
		}

		frame, err := decodeClientFrame(raw)
		if err != nil {
			continue
		}

		switch frame.Kind {
		case "EVENT":
			s.handleEvent(ctx, cs, frame.Event)
		case "REQ":
			s.handleReq(cs, frame.SubID, frame.Filters)
		case "CLOSE":
			cs.mu.Lock()
			_, existed := cs.subs[frame.CloseSubID]
			delete(cs.subs, frame.CloseSubID)
			cs.mu.Unlock()
			if existed {
				metrics.RelayActiveSubscriptions.Dec()
			}
		}
	}
}

// handleEvent implements the write gate of §4.4: verify, price, authorize,
// store, ack the submitting connection, and on a newly-accepted write,
// broadcast to every matching subscription.
func (s *Server) handleEvent(ctx context.Context, cs *connState, msg *message.SignedMessage) {
	start := time.Now()
	metrics.MessageSize.Observe(float64(message.ByteSize(msg)))
	defer func() {
		metrics.MessageProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	if err := message.Verify(msg); err != nil {
		metrics.RelayWrites.WithLabelValues("rejected_signature").Inc()
		metrics.MessagesProcessed.WithLabelValues("text", "failure").Inc()
		s.Logger.Warn("relay write rejected: bad signature", logger.String("id", msg.ID), logger.Error(err))
		cs.queue.push(okFrame(msg.ID, false, "bad-signature"), false)
		return
	}

	price := s.Pricing.PriceFor(msg)
	if price.Amount > 0 {
		if s.Authorize == nil || s.Authorize.AuthorizeGossipWrite(msg) != nil {
			metrics.RelayWrites.WithLabelValues("rejected_payment").Inc()
			metrics.MessagesProcessed.WithLabelValues("text", "failure").Inc()
			s.Logger.Debug("relay write rejected: payment required", logger.String("id", msg.ID), logger.Int("amount", int(price.Amount)))
			cs.queue.push(okFrame(msg.ID, false, fmt.Sprintf("payment-required: %d", price.Amount)), false)
			return
		}
	}

	result, err := s.Store.Put(ctx, msg)
	if err != nil {
		metrics.RelayWrites.WithLabelValues("rejected_store").Inc()
		metrics.MessagesProcessed.WithLabelValues("text", "failure").Inc()
		s.Logger.Warn("relay write rejected: store error", logger.String("id", msg.ID), logger.Error(err))
		cs.queue.push(okFrame(msg.ID, false, string(errs.CodeOf(err))), false)
		return
	}

	cs.queue.push(okFrame(msg.ID, true, ""), false)
	metrics.MessagesProcessed.WithLabelValues("text", "success").Inc()
	switch result {
	case store.Stored:
		metrics.RelayWrites.WithLabelValues("stored").Inc()
		s.Broadcast(msg)
	case store.Deleted:
		metrics.RelayWrites.WithLabelValues("deleted").Inc()
		s.Broadcast(msg)
	}
}

func (s *Server) handleReq(cs *connState, subID string, filters []message.Filter) {
	if len(filters) > s.Limits.MaxFiltersPerSub {
		filters = filters[:s.Limits.MaxFiltersPerSub]
	}

	cs.mu.Lock()
	_, exists := cs.subs[subID]
	if !exists && len(cs.subs) >= s.Limits.MaxSubscriptionsPerConn {
		cs.mu.Unlock()
		s.Logger.Debug("relay subscription rejected: limit reached", logger.String("conn", cs.id), logger.String("sub", subID))
		cs.queue.push(eoseFrame(subID), false)
		return
	}
	cs.subs[subID] = &subscription{id: subID, filters: filters}
	cs.mu.Unlock()
	if !exists {
		metrics.RelayActiveSubscriptions.Inc()
	}

	ctx := context.Background()
	matches, err := s.Store.QueryMany(ctx, filters)
	if err == nil {
		for _, m := range matches {
			f, err := eventFrame(subID, m)
			if err == nil {
				cs.queue.push(f, false)
			}
		}
	}
	cs.queue.push(eoseFrame(subID), false)
}

// Broadcast implements paymenthandler.Broadcaster: deliver msg to every
// currently-matching subscription across every connection. Used both for
// gossip-socket writes and for ephemeral messages arriving via paid
// packets.
func (s *Server) Broadcast(msg *message.SignedMessage) {
	s.mu.RLock()
	conns := make([]*connState, 0, len(s.conns))
	for _, cs := range s.conns {
		conns = append(conns, cs)
	}
	s.mu.RUnlock()

	for _, cs := range conns {
		cs.mu.Lock()
		subs := make([]*subscription, 0, len(cs.subs))
		for _, sub := range cs.subs {
			subs = append(subs, sub)
		}
		cs.mu.Unlock()

		for _, sub := range subs {
			if !matchesAny(msg, sub.filters) {
				continue
			}
			f, err := eventFrame(sub.id, msg)
			if err != nil {
				continue
			}
			if cs.queue.push(f, true) {
				metrics.RelayOutboundDrops.Inc()
			}
			metrics.RelayBroadcasts.Inc()
		}
	}
}

func matchesAny(msg *message.SignedMessage, filters []message.Filter) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if store.Matches(msg, &f) {
			return true
		}
	}
	return false
}

