// Package message implements the signed-message codec: canonical id
// computation, Schnorr signing/verification, and the binary packet-payload
// envelope that carries one signed message as routed-packet data.
package message

// Tag is an ordered list of strings; by convention the first element names
// the tag (e.g. "d", "p", "e").
type Tag []string

// SignedMessage is an author-signed record distributed via the gossip
// relay. ID is the hex-encoded canonical hash; Signature is the hex-encoded
// Schnorr signature over the raw ID bytes, verified against AuthorKey (a
// hex-encoded compressed secp256k1 public key).
type SignedMessage struct {
	ID        string `json:"id"`
	AuthorKey string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      uint16 `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Signature string `json:"sig"`
}

// KindClass is the storage-semantics class a kind falls into, determined
// purely by its numeric range.
type KindClass int

const (
	// ClassRegular messages are stored indefinitely by id.
	ClassRegular KindClass = iota
	// ClassReplaceable: at most one stored message per (author, kind).
	ClassReplaceable
	// ClassEphemeral messages are never stored.
	ClassEphemeral
	// ClassParameterizedReplaceable: at most one stored message per
	// (author, kind, dTagValue).
	ClassParameterizedReplaceable
)

// Kind-class boundaries, by numeric range (not by name).
const (
	ReplaceableRangeStart               = 10000
	EphemeralRangeStart                 = 20000
	ParameterizedReplaceableRangeStart  = 30000
	ParameterizedReplaceableRangeEnd    = 40000
)

// ClassifyKind returns the storage-semantics class for a kind.
func ClassifyKind(kind uint16) KindClass {
	switch {
	case kind >= ReplaceableRangeStart && kind < EphemeralRangeStart:
		return ClassReplaceable
	case kind >= EphemeralRangeStart && kind < ParameterizedReplaceableRangeStart:
		return ClassEphemeral
	case kind >= ParameterizedReplaceableRangeStart && kind < ParameterizedReplaceableRangeEnd:
		return ClassParameterizedReplaceable
	default:
		return ClassRegular
	}
}

// DTagValue returns the first string of the first tag named "d", or "" if
// no such tag exists. A message with no "d" tag and one with ["d",""] sit
// in the same parameterized-replaceable slot.
func DTagValue(tags []Tag) string {
	for _, t := range tags {
		if len(t) >= 1 && t[0] == "d" {
			if len(t) >= 2 {
				return t[1]
			}
			return ""
		}
	}
	return ""
}

// Filter selects messages matching all of its populated fields; multiple
// filters in a query OR together.
type Filter struct {
	IDs     []string          // prefix match allowed
	Authors []string          // prefix match allowed
	Kinds   []uint16
	Since   int64
	Until   int64
	Tags    map[string][]string // tag name (without "#") -> allowed second-element values
	Limit   int
}
