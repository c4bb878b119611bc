package main

import (
	"context"
	"crypto/ecdh"
	"encoding/hex"
	"fmt"
	"sync"
)

// tableEncryptionResolver resolves a peer's handshake encryption key from
// whatever the bootstrap orchestrator's peer table has learned so far.
// Keys are populated as peers are registered (phase 2) and, for this
// node's own identity, pre-seeded via setSelf so a responder can answer
// its own loopback tests without a table entry.
type tableEncryptionResolver struct {
	mu     sync.RWMutex
	lookup func(peerKey string) (string, bool)
	self   struct {
		key string
		pub *ecdh.PublicKey
	}
}

// setLookup installs the peer-table lookup function once the bootstrap
// machine exists (the resolver is constructed before the machine is, to
// break the construction cycle between the two).
func (r *tableEncryptionResolver) setLookup(fn func(peerKey string) (string, bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookup = fn
}

func (r *tableEncryptionResolver) setSelf(key string, pub *ecdh.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.self.key = key
	r.self.pub = pub
}

func (r *tableEncryptionResolver) ResolveEncryptionKey(_ context.Context, peerKey string) (*ecdh.PublicKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if peerKey == r.self.key && r.self.pub != nil {
		return r.self.pub, nil
	}
	if r.lookup == nil {
		return nil, fmt.Errorf("resolver: peer table not yet available for %s", peerKey)
	}
	hexKey, ok := r.lookup(peerKey)
	if !ok || hexKey == "" {
		return nil, fmt.Errorf("resolver: no known encryption key for peer %s", peerKey)
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("resolver: malformed encryption key for peer %s: %w", peerKey, err)
	}
	pub, err := ecdh.X25519().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("resolver: invalid encryption key for peer %s: %w", peerKey, err)
	}
	return pub, nil
}
