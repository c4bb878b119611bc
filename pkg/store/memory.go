package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/paidmesh/paidmesh/internal/logger"
	"github.com/paidmesh/paidmesh/pkg/message"
)

// MemoryStore is an in-memory EventStore. It is acceptable only as a test
// mode: state does not survive a process restart.
type MemoryStore struct {
	mu sync.RWMutex

	byID []*message.SignedMessage // append-only except for deletions; id uniqueness enforced on insert
	ids  map[string]int           // id -> index into byID, -1 if removed

	replaceableSlots   map[string]string // "author:kind" -> id
	parameterizedSlots map[string]string // "author:kind:dTag" -> id

	Logger logger.Logger
}

// NewMemoryStore constructs an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ids:                make(map[string]int),
		replaceableSlots:   make(map[string]string),
		parameterizedSlots: make(map[string]string),
		Logger:             logger.GetDefaultLogger(),
	}
}

func replaceableSlotKey(authorKey string, kind uint16) string {
	return authorKey + ":" + strconv.Itoa(int(kind))
}

func parameterizedSlotKey(authorKey string, kind uint16, dTag string) string {
	return authorKey + ":" + strconv.Itoa(int(kind)) + ":" + dTag
}

func (s *MemoryStore) lookupLocked(id string) *message.SignedMessage {
	idx, ok := s.ids[id]
	if !ok || idx < 0 {
		return nil
	}
	return s.byID[idx]
}

// Put implements EventStore.
func (s *MemoryStore) Put(_ context.Context, msg *message.SignedMessage) (PutResult, error) {
	if msg == nil {
		s.Logger.Warn("store: rejected nil message")
		return 0, fmt.Errorf("store: cannot put nil message")
	}

	if msg.Kind == DeletionKind {
		s.mu.Lock()
		err := s.applyDeletionLocked(msg)
		s.mu.Unlock()
		if err != nil {
			return 0, err
		}
		return Deleted, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	class := message.ClassifyKind(msg.Kind)

	if class == message.ClassEphemeral {
		// Never stored; callers broadcast to live subscribers separately.
		return Stored, nil
	}

	if class == message.ClassRegular {
		if _, exists := s.ids[msg.ID]; exists {
			if s.lookupLocked(msg.ID) != nil {
				return IgnoredDuplicate, nil
			}
		}
		s.insertLocked(msg)
		return Stored, nil
	}

	var slotKey string
	if class == message.ClassReplaceable {
		slotKey = replaceableSlotKey(msg.AuthorKey, msg.Kind)
	} else {
		slotKey = parameterizedSlotKey(msg.AuthorKey, msg.Kind, message.DTagValue(msg.Tags))
	}

	slots := s.replaceableSlots
	if class == message.ClassParameterizedReplaceable {
		slots = s.parameterizedSlots
	}

	incumbentID, hasIncumbent := slots[slotKey]
	var incumbent *message.SignedMessage
	if hasIncumbent {
		incumbent = s.lookupLocked(incumbentID)
	}

	if !WinsSlot(msg, incumbent) {
		return IgnoredOlder, nil
	}

	if incumbent != nil {
		s.removeLocked(incumbent.ID)
	}
	s.insertLocked(msg)
	slots[slotKey] = msg.ID

	return Stored, nil
}

func (s *MemoryStore) insertLocked(msg *message.SignedMessage) {
	if idx, ok := s.ids[msg.ID]; ok && idx >= 0 {
		// Re-inserting the same id (e.g. a slot winner equal to itself)
		// is a no-op.
		return
	}
	s.byID = append(s.byID, msg)
	s.ids[msg.ID] = len(s.byID) - 1
}

func (s *MemoryStore) removeLocked(id string) {
	idx, ok := s.ids[id]
	if !ok || idx < 0 {
		return
	}
	s.byID[idx] = nil
	s.ids[id] = -1
}

// Get implements EventStore.
func (s *MemoryStore) Get(_ context.Context, id string) (*message.SignedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(id), nil
}

// QueryMany implements EventStore.
func (s *MemoryStore) QueryMany(_ context.Context, filters []message.Filter) ([]*message.SignedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var results []*message.SignedMessage

	for _, f := range filters {
		var matched []*message.SignedMessage
		for _, msg := range s.byID {
			if msg == nil || seen[msg.ID] {
				continue
			}
			if Matches(msg, &f) {
				matched = append(matched, msg)
			}
		}
		sort.Slice(matched, func(i, j int) bool { return Less(matched[i], matched[j]) })
		if f.Limit > 0 && len(matched) > f.Limit {
			matched = matched[:f.Limit]
		}
		for _, msg := range matched {
			seen[msg.ID] = true
			results = append(results, msg)
		}
	}

	sort.Slice(results, func(i, j int) bool { return Less(results[i], results[j]) })
	return results, nil
}

// ApplyDeletion implements EventStore.
func (s *MemoryStore) ApplyDeletion(_ context.Context, delMsg *message.SignedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyDeletionLocked(delMsg)
}

func (s *MemoryStore) applyDeletionLocked(delMsg *message.SignedMessage) error {
	for _, tag := range delMsg.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "e":
			s.deleteIfAuthoredBy(tag[1], delMsg.AuthorKey)
		case "a":
			s.deleteAddressableIfAuthoredBy(tag[1], delMsg.AuthorKey)
		}
	}
	return nil
}

func (s *MemoryStore) deleteIfAuthoredBy(id, authorKey string) {
	target := s.lookupLocked(id)
	if target == nil || target.AuthorKey != authorKey {
		return
	}
	s.removeLocked(id)
	s.clearSlotIfHeldBy(target, id)
	s.Logger.Debug("store: deleted message", logger.String("id", id), logger.String("author", authorKey))
}

// deleteAddressableIfAuthoredBy resolves an "a" tag of the form
// "kind:authorKey:dTagValue" and removes the slot's current occupant if it
// was authored by authorKey.
func (s *MemoryStore) deleteAddressableIfAuthoredBy(ref, authorKey string) {
	parts := strings.SplitN(ref, ":", 3)
	if len(parts) < 2 {
		return
	}
	kindNum, err := strconv.Atoi(parts[0])
	if err != nil || parts[1] != authorKey {
		return
	}
	dTag := ""
	if len(parts) == 3 {
		dTag = parts[2]
	}
	slotKey := parameterizedSlotKey(authorKey, uint16(kindNum), dTag)
	id, ok := s.parameterizedSlots[slotKey]
	if !ok {
		return
	}
	target := s.lookupLocked(id)
	if target == nil || target.AuthorKey != authorKey {
		return
	}
	s.removeLocked(id)
	delete(s.parameterizedSlots, slotKey)
	s.Logger.Debug("store: deleted addressable message", logger.String("id", id), logger.String("author", authorKey))
}

func (s *MemoryStore) clearSlotIfHeldBy(target *message.SignedMessage, id string) {
	class := message.ClassifyKind(target.Kind)
	switch class {
	case message.ClassReplaceable:
		key := replaceableSlotKey(target.AuthorKey, target.Kind)
		if s.replaceableSlots[key] == id {
			delete(s.replaceableSlots, key)
		}
	case message.ClassParameterizedReplaceable:
		key := parameterizedSlotKey(target.AuthorKey, target.Kind, message.DTagValue(target.Tags))
		if s.parameterizedSlots[key] == id {
			delete(s.parameterizedSlots, key)
		}
	}
}

// Close implements EventStore.
func (s *MemoryStore) Close() error { return nil }

// Ping implements EventStore.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }
