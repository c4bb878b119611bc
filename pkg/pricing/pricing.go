// Package pricing maps a signed message to the payment amount the relay
// requires before it will store it. The policy is a sparse map keyed by
// kind, read-mostly and safe for concurrent runtime updates.
package pricing

import (
	"sync"

	"github.com/paidmesh/paidmesh/pkg/message"
)

// Rule is the price for one kind (or the default bucket): a flat minimum
// and a per-byte rate. The price is the larger of FlatAmount and
// size × BasePricePerByte.
type Rule struct {
	FlatAmount       uint64
	BasePricePerByte uint64
}

// Price is the amount and asset scale required for a message.
type Price struct {
	Amount     uint64
	AssetScale int
}

// Policy is the runtime-configurable pricing table.
type Policy struct {
	mu sync.RWMutex

	assetScale         int
	ownerKey           string
	bootstrapZeroPrice bool
	handshakeReqKind   uint16
	defaultRule        Rule
	rules              map[uint16]Rule
}

// NewPolicy builds a pricing policy. handshakeReqKind is the kind number
// used for handshake-request messages, needed to implement the
// bootstrap-zero-price carve-out.
func NewPolicy(ownerKey string, assetScale int, defaultRule Rule, handshakeReqKind uint16) *Policy {
	return &Policy{
		assetScale:       assetScale,
		ownerKey:         ownerKey,
		handshakeReqKind: handshakeReqKind,
		defaultRule:      defaultRule,
		rules:            make(map[uint16]Rule),
	}
}

// SetRule installs or replaces the price rule for a specific kind.
func (p *Policy) SetRule(kind uint16, rule Rule) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules[kind] = rule
}

// RemoveRule reverts a kind to the default rule.
func (p *Policy) RemoveRule(kind uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rules, kind)
}

// SetDefaultRule replaces the fallback rule used for kinds with no
// kind-specific override.
func (p *Policy) SetDefaultRule(rule Rule) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultRule = rule
}

// SetBootstrapZeroPrice toggles whether handshake-request messages are
// priced at zero, used by bootstrap nodes that have not yet opened any
// channels to pay with.
func (p *Policy) SetBootstrapZeroPrice(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bootstrapZeroPrice = enabled
}

// SetOwnerKey replaces the key whose writes bypass pricing entirely.
func (p *Policy) SetOwnerKey(ownerKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ownerKey = ownerKey
}

// PriceFor computes the required payment for msg. Owner-authored messages,
// and handshake requests when bootstrap-zero-price is enabled, are always
// free.
func (p *Policy) PriceFor(msg *message.SignedMessage) Price {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.ownerKey != "" && msg.AuthorKey == p.ownerKey {
		return Price{Amount: 0, AssetScale: p.assetScale}
	}
	if p.bootstrapZeroPrice && msg.Kind == p.handshakeReqKind {
		return Price{Amount: 0, AssetScale: p.assetScale}
	}

	rule, ok := p.rules[msg.Kind]
	if !ok {
		rule = p.defaultRule
	}

	byBytes := uint64(message.ByteSize(msg)) * rule.BasePricePerByte
	amount := rule.FlatAmount
	if byBytes > amount {
		amount = byBytes
	}

	return Price{Amount: amount, AssetScale: p.assetScale}
}
