package message

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/paidmesh/paidmesh/internal/metrics"
)

const schnorrAlgorithm = "schnorr-secp256k1"

// ErrBadID means the message's id does not match the recomputed canonical
// hash: the message was mutated after signing.
var ErrBadID = errors.New("message: id does not match canonical hash")

// ErrBadSignature means the Schnorr signature does not verify against
// AuthorKey.
var ErrBadSignature = errors.New("message: signature verification failed")

// canonicalForm is the exact structure hashed to produce a message id. Field
// order is part of the wire contract; tags and tag elements are never
// reordered or deduplicated.
type canonicalForm struct {
	AuthorKey string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      uint16     `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
}

func tagsToRaw(tags []Tag) [][]string {
	raw := make([][]string, len(tags))
	for i, t := range tags {
		raw[i] = []string(t)
	}
	return raw
}

// CanonicalBytes renders the deterministic byte form hashed to compute a
// message id.
func CanonicalBytes(authorKey string, createdAt int64, kind uint16, tags []Tag, content string) ([]byte, error) {
	return json.Marshal(canonicalForm{
		AuthorKey: authorKey,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tagsToRaw(tags),
		Content:   content,
	})
}

// ComputeID returns the hex-encoded SHA-256 hash of the canonical form.
func ComputeID(authorKey string, createdAt int64, kind uint16, tags []Tag, content string) (string, error) {
	b, err := CanonicalBytes(authorKey, createdAt, kind, tags, content)
	if err != nil {
		return "", fmt.Errorf("message: canonicalize: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Sign builds and signs a new message. authorKey is derived from priv.
func Sign(priv *secp256k1.PrivateKey, createdAt int64, kind uint16, tags []Tag, content string) (*SignedMessage, error) {
	start := time.Now()
	msg, err := signUnmetered(priv, createdAt, kind, tags, content)
	metrics.CryptoOperationDuration.WithLabelValues("sign", schnorrAlgorithm).Observe(time.Since(start).Seconds())
	metrics.CryptoOperations.WithLabelValues("sign", schnorrAlgorithm).Inc()
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("sign").Inc()
	}
	return msg, err
}

func signUnmetered(priv *secp256k1.PrivateKey, createdAt int64, kind uint16, tags []Tag, content string) (*SignedMessage, error) {
	authorKey := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	id, err := ComputeID(authorKey, createdAt, kind, tags, content)
	if err != nil {
		return nil, err
	}
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("message: decode id: %w", err)
	}

	sig, err := schnorr.Sign(priv, idBytes)
	if err != nil {
		return nil, fmt.Errorf("message: sign: %w", err)
	}

	return &SignedMessage{
		ID:        id,
		AuthorKey: authorKey,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
		Signature: hex.EncodeToString(sig.Serialize()),
	}, nil
}

// Verify recomputes the canonical hash and checks the Schnorr signature
// against AuthorKey. It returns ErrBadID if the id was tampered with and
// ErrBadSignature for any signature or key-parsing failure.
func Verify(msg *SignedMessage) error {
	start := time.Now()
	err := verifyUnmetered(msg)
	metrics.CryptoOperationDuration.WithLabelValues("verify", schnorrAlgorithm).Observe(time.Since(start).Seconds())
	metrics.CryptoOperations.WithLabelValues("verify", schnorrAlgorithm).Inc()
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("verify").Inc()
	}
	return err
}

func verifyUnmetered(msg *SignedMessage) error {
	wantID, err := ComputeID(msg.AuthorKey, msg.CreatedAt, msg.Kind, msg.Tags, msg.Content)
	if err != nil {
		return fmt.Errorf("message: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(wantID), []byte(msg.ID)) != 1 {
		return ErrBadID
	}

	pubBytes, err := hex.DecodeString(msg.AuthorKey)
	if err != nil {
		return fmt.Errorf("%w: bad author key encoding", ErrBadSignature)
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("%w: bad author key: %v", ErrBadSignature, err)
	}

	sigBytes, err := hex.DecodeString(msg.Signature)
	if err != nil {
		return fmt.Errorf("%w: bad signature encoding", ErrBadSignature)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	idBytes, err := hex.DecodeString(msg.ID)
	if err != nil {
		return ErrBadID
	}

	if !sig.Verify(idBytes, pub) {
		return ErrBadSignature
	}
	return nil
}

// ByteSize is the size in bytes of the message's content, used by the
// pricing engine.
func ByteSize(msg *SignedMessage) int {
	return len(msg.Content)
}
