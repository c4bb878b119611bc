package store

import (
	"strings"

	"github.com/paidmesh/paidmesh/pkg/message"
)

// Matches reports whether msg satisfies every populated field of f.
func Matches(msg *message.SignedMessage, f *message.Filter) bool {
	if len(f.IDs) > 0 && !anyPrefix(f.IDs, msg.ID) {
		return false
	}
	if len(f.Authors) > 0 && !anyPrefix(f.Authors, msg.AuthorKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, msg.Kind) {
		return false
	}
	if f.Since != 0 && msg.CreatedAt < f.Since {
		return false
	}
	if f.Until != 0 && msg.CreatedAt > f.Until {
		return false
	}
	for tagName, allowed := range f.Tags {
		if !msgHasTagValue(msg, tagName, allowed) {
			return false
		}
	}
	return true
}

func anyPrefix(prefixes []string, value string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(value, p) {
			return true
		}
	}
	return false
}

func containsKind(kinds []uint16, k uint16) bool {
	for _, kk := range kinds {
		if kk == k {
			return true
		}
	}
	return false
}

func msgHasTagValue(msg *message.SignedMessage, tagName string, allowed []string) bool {
	for _, tag := range msg.Tags {
		if len(tag) < 2 || tag[0] != tagName {
			continue
		}
		for _, v := range allowed {
			if tag[1] == v {
				return true
			}
		}
	}
	return false
}

// Less orders messages newest-first, breaking createdAt ties by the
// lexicographically smaller id.
func Less(a, b *message.SignedMessage) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID < b.ID
}

// WinsSlot reports whether candidate should replace incumbent in a
// replaceable/parameterized-replaceable slot: strictly newer createdAt, or
// equal createdAt with a lexicographically smaller id.
func WinsSlot(candidate, incumbent *message.SignedMessage) bool {
	if incumbent == nil {
		return true
	}
	if candidate.CreatedAt != incumbent.CreatedAt {
		return candidate.CreatedAt > incumbent.CreatedAt
	}
	return candidate.ID < incumbent.ID
}
