package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/paidmesh/paidmesh/pkg/message"
	"github.com/paidmesh/paidmesh/pkg/peer"
)

// GossipClient is a minimal relay client used only for the two read-only
// gossip operations bootstrap needs: a single-record lookup (phase 2) and
// a live subscription (phase 5's reverse-discovery monitor). It speaks the
// same EVENT/REQ/CLOSE/EOSE wire forms as pkg/relay.
type GossipClient struct {
	DialTimeout time.Duration
}

func (c *GossipClient) dialer() *websocket.Dialer {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &websocket.Dialer{HandshakeTimeout: timeout}
}

// ReadPeerRecord implements PeerReader: it opens one subscription for
// peerKey's peer records, takes the first EVENT (or none before EOSE),
// and closes the connection.
func (c *GossipClient) ReadPeerRecord(ctx context.Context, transportEndpoint, peerKey string) (*peer.Record, error) {
	conn, _, err := c.dialer().DialContext(ctx, wsEndpoint(transportEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: dial %s: %w", transportEndpoint, err)
	}
	defer conn.Close()

	subID := uuid.NewString()
	req := []interface{}{"REQ", subID, map[string]interface{}{
		"authors": []string{peerKey},
		"kinds":   []int{int(peer.RecordKind)},
		"limit":   1,
	}}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("bootstrap: send REQ: %w", err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("bootstrap: read peer record: %w", err)
		}
		kind, rest, err := decodeFrame(raw)
		if err != nil {
			continue
		}
		switch kind {
		case "EVENT":
			msg, err := parseEventMessage(rest)
			if err != nil {
				continue
			}
			return peer.Decode(msg)
		case "EOSE":
			return nil, fmt.Errorf("bootstrap: %s has no peer record", peerKey)
		}
	}
}

// WatchPeerRecords implements PeerRecordWatcher: it subscribes to every
// peer record on the local relay and invokes onRecord as each one arrives,
// for as long as ctx stays open.
func (c *GossipClient) WatchPeerRecords(ctx context.Context, localTransportEndpoint string, onRecord func(*message.SignedMessage)) error {
	conn, _, err := c.dialer().DialContext(ctx, wsEndpoint(localTransportEndpoint), nil)
	if err != nil {
		return fmt.Errorf("bootstrap: dial %s: %w", localTransportEndpoint, err)
	}
	defer conn.Close()

	subID := uuid.NewString()
	req := []interface{}{"REQ", subID, map[string]interface{}{
		"kinds": []int{int(peer.RecordKind)},
	}}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("bootstrap: send REQ: %w", err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bootstrap: watch peer records: %w", err)
		}
		kind, rest, err := decodeFrame(raw)
		if err != nil {
			continue
		}
		if kind != "EVENT" {
			continue
		}
		msg, err := parseEventMessage(rest)
		if err != nil {
			continue
		}
		onRecord(msg)
	}
}

func decodeFrame(raw []byte) (kind string, parts []json.RawMessage, err error) {
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", nil, err
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("bootstrap: empty frame")
	}
	if err := json.Unmarshal(parts[0], &kind); err != nil {
		return "", nil, err
	}
	return kind, parts, nil
}

func parseEventMessage(parts []json.RawMessage) (*message.SignedMessage, error) {
	if len(parts) != 3 {
		return nil, fmt.Errorf("bootstrap: malformed EVENT frame")
	}
	var msg message.SignedMessage
	if err := json.Unmarshal(parts[2], &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// wsEndpoint normalizes an http(s) transport endpoint to its ws(s)
// equivalent; endpoints already in ws(s) form pass through unchanged.
func wsEndpoint(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	default:
		return endpoint
	}
}
