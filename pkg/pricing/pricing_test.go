package pricing

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/paidmesh/paidmesh/pkg/message"
)

const handshakeReqKind uint16 = 20100

func TestOwnerBypassesPricing(t *testing.T) {
	owner, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	ownerKey := msgAuthorKey(t, owner)

	p := NewPolicy(ownerKey, 2, Rule{BasePricePerByte: 1}, handshakeReqKind)

	msg, err := message.Sign(owner, 1, 1, nil, "a fairly long message body")
	require.NoError(t, err)

	price := p.PriceFor(msg)
	require.Equal(t, uint64(0), price.Amount)
}

func TestInsufficientPaymentScenario(t *testing.T) {
	// S3: 200-byte message, 1 unit/byte -> required=200.
	author, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	p := NewPolicy("", 0, Rule{BasePricePerByte: 1}, handshakeReqKind)

	content := make([]byte, 200)
	for i := range content {
		content[i] = 'a'
	}
	msg, err := message.Sign(author, 1, 1, nil, string(content))
	require.NoError(t, err)

	price := p.PriceFor(msg)
	require.Equal(t, uint64(200), price.Amount)
}

func TestFlatPriceFloor(t *testing.T) {
	author, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	p := NewPolicy("", 0, Rule{}, handshakeReqKind)
	p.SetRule(42, Rule{FlatAmount: 500, BasePricePerByte: 1})

	msg, err := message.Sign(author, 1, 42, nil, "short")
	require.NoError(t, err)

	price := p.PriceFor(msg)
	require.Equal(t, uint64(500), price.Amount)
}

func TestBootstrapZeroPriceOnlyAppliesToHandshake(t *testing.T) {
	author, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	p := NewPolicy("", 0, Rule{BasePricePerByte: 1}, handshakeReqKind)
	p.SetBootstrapZeroPrice(true)

	handshake, err := message.Sign(author, 1, handshakeReqKind, nil, "request")
	require.NoError(t, err)
	require.Equal(t, uint64(0), p.PriceFor(handshake).Amount)

	other, err := message.Sign(author, 1, 1, nil, "request")
	require.NoError(t, err)
	require.Greater(t, p.PriceFor(other).Amount, uint64(0))
}

func msgAuthorKey(t *testing.T, priv *secp256k1.PrivateKey) string {
	t.Helper()
	msg, err := message.Sign(priv, 0, 0, nil, "")
	require.NoError(t, err)
	return msg.AuthorKey
}
