// Package store persists signed messages and enforces the replaceable and
// parameterized-replaceable slot semantics: at most one stored message per
// slot, newest createdAt wins, ties broken by the lexicographically
// smaller id. Ephemeral-range messages are never persisted.
package store

import (
	"context"

	"github.com/paidmesh/paidmesh/pkg/message"
)

// PutResult reports what a Put call actually did.
type PutResult int

const (
	// Stored means the message was written (new regular message, or it
	// won its replaceable/parameterized-replaceable slot).
	Stored PutResult = iota
	// IgnoredOlder means a message already occupies this slot with a
	// newer createdAt (or an equal createdAt with a smaller id).
	IgnoredOlder
	// IgnoredDuplicate means a message with this exact id is already
	// stored.
	IgnoredDuplicate
	// Deleted means the put was itself a deletion message that was
	// applied rather than stored.
	Deleted
)

func (r PutResult) String() string {
	switch r {
	case Stored:
		return "stored"
	case IgnoredOlder:
		return "ignored-older"
	case IgnoredDuplicate:
		return "ignored-duplicate"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// DeletionKind is the kind number used for deletion messages: tags list the
// ids (or addressable references) of messages the same author wants
// removed.
const DeletionKind uint16 = 5

// EventStore is the persistence contract for C2. Every method is atomic
// with respect to concurrent callers touching the same (author, kind[,
// dTag]) slot.
type EventStore interface {
	// Put applies the replacement rules for msg.Kind and returns the
	// outcome. Ephemeral-range messages are accepted but never persisted;
	// Put still returns Stored for them so callers can broadcast, but a
	// subsequent Get/QueryMany will never surface them.
	Put(ctx context.Context, msg *message.SignedMessage) (PutResult, error)

	// Get retrieves a stored message by exact id. Returns nil, nil if not
	// found.
	Get(ctx context.Context, id string) (*message.SignedMessage, error)

	// QueryMany returns messages matching any of the given filters,
	// ordered by CreatedAt descending then ID ascending, with each
	// filter's Limit applied independently before the union.
	QueryMany(ctx context.Context, filters []message.Filter) ([]*message.SignedMessage, error)

	// ApplyDeletion removes stored messages referenced by delMsg's tags,
	// but only those authored by delMsg.AuthorKey. Idempotent; deletions
	// referencing messages from other authors are silently ignored for
	// those ids (not an error).
	ApplyDeletion(ctx context.Context, delMsg *message.SignedMessage) error

	// Close releases any held resources (connections, files).
	Close() error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
