package message

import (
	"testing"
	"testing/quick"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	msg, err := Sign(priv, 1700000000, 1, []Tag{{"d", "slot"}, {"p", "abc"}}, "hello relay")
	require.NoError(t, err)
	require.NoError(t, Verify(msg))
}

func TestVerifyRejectsMutation(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	msg, err := Sign(priv, 1700000000, 1, nil, "hello relay")
	require.NoError(t, err)

	msg.Content = "tampered"
	require.ErrorIs(t, Verify(msg), ErrBadID)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	other, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	msg, err := Sign(priv, 1700000000, 1, nil, "hello relay")
	require.NoError(t, err)

	forged, err := Sign(other, msg.CreatedAt, msg.Kind, msg.Tags, msg.Content)
	require.NoError(t, err)

	msg.Signature = forged.Signature
	require.ErrorIs(t, Verify(msg), ErrBadSignature)
}

func TestClassifyKind(t *testing.T) {
	cases := []struct {
		kind uint16
		want KindClass
	}{
		{1, ClassRegular},
		{9999, ClassRegular},
		{10000, ClassReplaceable},
		{19999, ClassReplaceable},
		{20000, ClassEphemeral},
		{29999, ClassEphemeral},
		{30000, ClassParameterizedReplaceable},
		{39999, ClassParameterizedReplaceable},
		{40000, ClassRegular},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ClassifyKind(c.kind), "kind %d", c.kind)
	}
}

func TestDTagValue(t *testing.T) {
	require.Equal(t, "", DTagValue(nil))
	require.Equal(t, "", DTagValue([]Tag{{"p", "x"}}))
	require.Equal(t, "", DTagValue([]Tag{{"d"}}))
	require.Equal(t, "slot-1", DTagValue([]Tag{{"p", "x"}, {"d", "slot-1"}}))
}

// TestRoundTripProperty asserts decodePacketPayload(encodePacketPayload(m))
// == m for arbitrary signed messages, including tags with control
// characters and whitespace, and that tag order is never disturbed.
func TestRoundTripProperty(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	property := func(createdAt int64, kind uint16, content string, rawTags [][]string) bool {
		tags := make([]Tag, len(rawTags))
		for i, rt := range rawTags {
			tags[i] = Tag(rt)
		}

		msg, err := Sign(priv, createdAt, kind, tags, content)
		if err != nil {
			return false
		}

		encoded, err := EncodePacketPayload(msg)
		if err != nil {
			return false
		}
		decoded, err := DecodePacketPayload(encoded)
		if err != nil {
			return false
		}

		if decoded.ID != msg.ID || decoded.AuthorKey != msg.AuthorKey ||
			decoded.CreatedAt != msg.CreatedAt || decoded.Kind != msg.Kind ||
			decoded.Content != msg.Content || decoded.Signature != msg.Signature {
			return false
		}
		if len(decoded.Tags) != len(msg.Tags) {
			return false
		}
		for i := range msg.Tags {
			if len(decoded.Tags[i]) != len(msg.Tags[i]) {
				return false
			}
			for j := range msg.Tags[i] {
				if decoded.Tags[i][j] != msg.Tags[i][j] {
					return false
				}
			}
		}
		return true
	}

	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 200}))
}

func TestRoundTripWithControlCharsAndWhitespace(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	tags := []Tag{
		{"d", "has\twhitespace\nand\x00control"},
		{"p", "  leading and trailing  "},
	}
	msg, err := Sign(priv, 42, 99, tags, "content with \x01\x02 control bytes")
	require.NoError(t, err)

	encoded, err := EncodePacketPayload(msg)
	require.NoError(t, err)
	decoded, err := DecodePacketPayload(encoded)
	require.NoError(t, err)

	require.Equal(t, msg.Tags, decoded.Tags)
	require.Equal(t, msg.Content, decoded.Content)
}
