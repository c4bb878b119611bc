// Package peer defines the peer record message type (a replaceable
// message advertising a node's routing and settlement details) and the
// in-memory peer table a connector keeps per peer it has registered.
package peer

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/paidmesh/paidmesh/pkg/message"
)

// RecordKind is the replaceable-range kind used for peer records: at most
// one per author, newest createdAt wins.
const RecordKind uint16 = 10001

// Record is the decoded content of a peer record message.
type Record struct {
	RoutingAddress      string            `json:"routingAddress"`
	TransportEndpoint   string            `json:"transportEndpoint"`
	AssetCode           string            `json:"assetCode"`
	AssetScale          int               `json:"assetScale"`
	SupportedChains     []string          `json:"supportedChains"`
	SettlementAddresses map[string]string `json:"settlementAddresses"`
	PreferredTokens     map[string]string `json:"preferredTokens"`

	// EncryptionKey is the hex-encoded X25519 public key this peer
	// advertises for handshake payload encryption, resolved by an
	// EncryptionKeyResolver keyed on the author's signing key.
	EncryptionKey string `json:"encryptionKey"`
}

// Sign builds a signed peer record message for priv.
func Sign(priv *secp256k1.PrivateKey, createdAt int64, r Record) (*message.SignedMessage, error) {
	content, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("peer: marshal record: %w", err)
	}
	return message.Sign(priv, createdAt, RecordKind, nil, string(content))
}

// Decode extracts the Record from a peer record message. Returns an error
// if msg is not a RecordKind message or its content does not parse.
func Decode(msg *message.SignedMessage) (*Record, error) {
	if msg.Kind != RecordKind {
		return nil, fmt.Errorf("peer: kind %d is not a peer record", msg.Kind)
	}
	var r Record
	if err := json.Unmarshal([]byte(msg.Content), &r); err != nil {
		return nil, fmt.Errorf("peer: unmarshal record: %w", err)
	}
	return &r, nil
}

// ValidateKeyFormat reports whether key parses as a compressed secp256k1
// public key, the format every author key in this module uses.
func ValidateKeyFormat(key string) error {
	raw, err := hex.DecodeString(key)
	if err != nil {
		return fmt.Errorf("peer: key is not valid hex: %w", err)
	}
	if _, err := secp256k1.ParsePubKey(raw); err != nil {
		return fmt.Errorf("peer: key is not a valid secp256k1 public key: %w", err)
	}
	return nil
}

// Entry is one row of the in-memory peer table: a connector's view of a
// registered peer plus bootstrap- and trust-derived bookkeeping.
type Entry struct {
	Key               string
	RoutingAddress    string
	TransportEndpoint string
	EncryptionKey     string
	ChannelID         string
	ChannelBalance    uint64
	SupportedChains   []string
	Priority          int
	RegisteredAt      time.Time
}

// Table is a concurrency-safe peerKey -> Entry map.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewTable builds an empty peer table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*Entry)}
}

// Upsert installs or replaces the entry for e.Key.
func (t *Table) Upsert(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := e
	t.entries[e.Key] = &cp
}

// Get returns the entry for key, if any.
func (t *Table) Get(key string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// SetChannel records a newly opened channel's id and balance for key.
func (t *Table) SetChannel(key, channelID string, balance uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return
	}
	e.ChannelID = channelID
	e.ChannelBalance = balance
}

// SetPriority updates a peer's routing priority, used when trust-derived
// priorities are refreshed.
func (t *Table) SetPriority(key string, priority int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		e.Priority = priority
	}
}

// Len reports the number of registered peers.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// ChannelCount reports the number of peers with a non-empty channel id.
func (t *Table) ChannelCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.entries {
		if e.ChannelID != "" {
			n++
		}
	}
	return n
}

// Keys returns every registered peer key, in no particular order.
func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	return keys
}
