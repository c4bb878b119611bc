package store

import (
	"context"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/paidmesh/paidmesh/pkg/message"
)

func sign(t *testing.T, priv *secp256k1.PrivateKey, createdAt int64, kind uint16, tags []message.Tag, content string) *message.SignedMessage {
	t.Helper()
	msg, err := message.Sign(priv, createdAt, kind, tags, content)
	require.NoError(t, err)
	return msg
}

// TestReplaceableUpsert covers S4: three replaceable-kind puts out of order, only
// the newest survives.
func TestReplaceableUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	m1 := sign(t, priv, 1000, 10002, nil, "v1")
	m2 := sign(t, priv, 2000, 10002, nil, "v2")
	m3 := sign(t, priv, 1500, 10002, nil, "v3")

	for _, m := range []*message.SignedMessage{m1, m2, m3} {
		_, err := s.Put(ctx, m)
		require.NoError(t, err)
	}

	results, err := s.QueryMany(ctx, []message.Filter{{Authors: []string{m1.AuthorKey}, Kinds: []uint16{10002}}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, m2.ID, results[0].ID)

	got, err := s.Get(ctx, m1.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = s.Get(ctx, m3.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

// TestAuthorOnlyDeletion covers S5: a deletion from a different author is
// ignored; the same author's deletion succeeds.
func TestAuthorOnlyDeletion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	k1, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	k2, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	m := sign(t, k1, 1000, 1, nil, "hello")
	_, err = s.Put(ctx, m)
	require.NoError(t, err)

	wrongDeletion := sign(t, k2, 2000, DeletionKind, []message.Tag{{"e", m.ID}}, "")
	_, err = s.Put(ctx, wrongDeletion)
	require.NoError(t, err)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got, "deletion from a different author must not remove the message")

	rightDeletion := sign(t, k1, 3000, DeletionKind, []message.Tag{{"e", m.ID}}, "")
	_, err = s.Put(ctx, rightDeletion)
	require.NoError(t, err)

	got, err = s.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestEphemeralNeverPersisted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	m := sign(t, priv, 1000, 20001, nil, "ephemeral")
	result, err := s.Put(ctx, m)
	require.NoError(t, err)
	require.Equal(t, Stored, result)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	results, err := s.QueryMany(ctx, []message.Filter{{Kinds: []uint16{20001}}})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestParameterizedReplaceableUsesDTag(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	a1 := sign(t, priv, 1000, 30000, []message.Tag{{"d", "slot-a"}}, "a1")
	a2 := sign(t, priv, 2000, 30000, []message.Tag{{"d", "slot-a"}}, "a2")
	b1 := sign(t, priv, 1500, 30000, []message.Tag{{"d", "slot-b"}}, "b1")

	for _, m := range []*message.SignedMessage{a1, a2, b1} {
		_, err := s.Put(ctx, m)
		require.NoError(t, err)
	}

	results, err := s.QueryMany(ctx, []message.Filter{{Authors: []string{a1.AuthorKey}, Kinds: []uint16{30000}}})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestRegularDuplicateIgnored(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	m := sign(t, priv, 1000, 1, nil, "hello")
	first, err := s.Put(ctx, m)
	require.NoError(t, err)
	require.Equal(t, Stored, first)

	second, err := s.Put(ctx, m)
	require.NoError(t, err)
	require.Equal(t, IgnoredDuplicate, second)
}
