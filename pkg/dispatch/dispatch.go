// Package dispatch maps an incoming signed message's kind to application
// behavior via a static, per-kind handler table with an action allowlist.
package dispatch

import (
	"github.com/paidmesh/paidmesh/pkg/message"
)

// ActionKind is one of the small closed set of actions a handler may
// produce.
type ActionKind int

const (
	ActionPublish ActionKind = iota
	ActionReply
	ActionReact
	ActionIgnore
)

// Action is one outbound effect a handler wants to take. Fields not used by
// Kind are left zero.
type Action struct {
	Kind     ActionKind
	Msg      *message.SignedMessage // ActionPublish
	ParentID string                  // ActionReply
	Text     string                  // ActionReply
	TargetID string                  // ActionReact
	Emoji    string                  // ActionReact
	Reason   string                  // ActionIgnore
}

// Context is the per-dispatch context a handler may need: whether the
// message has already been stored.
type Context struct {
	Stored bool
}

// Handler processes one message of a registered kind and returns the
// actions it wants taken. Handlers MUST NOT block on network I/O; schedule
// async work and return ActionIgnore if nothing is ready yet.
type Handler func(msg *message.SignedMessage, ctx Context) []Action

type registration struct {
	handler   Handler
	allowlist map[ActionKind]bool
}

// Table is the static kind -> handler mapping. It is built once at startup
// and is safe for concurrent read-only use thereafter.
type Table struct {
	entries map[uint16]registration
}

// NewTable builds an empty dispatch table.
func NewTable() *Table {
	return &Table{entries: make(map[uint16]registration)}
}

// Register installs a handler for kind, permitted to produce only the
// actions in allowed.
func (t *Table) Register(kind uint16, handler Handler, allowed ...ActionKind) {
	allowlist := make(map[ActionKind]bool, len(allowed))
	for _, a := range allowed {
		allowlist[a] = true
	}
	t.entries[kind] = registration{handler: handler, allowlist: allowlist}
}

// HasHandler reports whether a handler is registered for kind.
func (t *Table) HasHandler(kind uint16) bool {
	_, ok := t.entries[kind]
	return ok
}

// Dispatch invokes the handler registered for msg.Kind, if any, and drops
// any action outside that kind's allowlist. Returns nil if no handler is
// registered.
func (t *Table) Dispatch(msg *message.SignedMessage, ctx Context) []Action {
	reg, ok := t.entries[msg.Kind]
	if !ok {
		return nil
	}

	produced := reg.handler(msg, ctx)
	if len(produced) == 0 {
		return nil
	}

	allowed := make([]Action, 0, len(produced))
	for _, a := range produced {
		if reg.allowlist[a.Kind] {
			allowed = append(allowed, a)
		}
	}
	return allowed
}
