package main

import (
	"crypto/ecdh"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func TestKeyFileRoundTrip(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signing.key")
	require.NoError(t, os.WriteFile(path, []byte(hex.EncodeToString(priv.Serialize())+"\n"), 0600))

	loaded, err := readSigningKeyFile(path)
	require.NoError(t, err)
	require.Equal(t, priv.Serialize(), loaded.Serialize())
}

func TestReadSigningKeyFileRejectsBadLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.key")
	require.NoError(t, os.WriteFile(path, []byte("abcd"), 0600))

	_, err := readSigningKeyFile(path)
	require.Error(t, err)
}

func TestTableEncryptionResolverResolvesSelfAndPeers(t *testing.T) {
	priv, err := ecdh.X25519().GenerateKey(nil)
	require.NoError(t, err)
	peerPriv, err := ecdh.X25519().GenerateKey(nil)
	require.NoError(t, err)

	r := &tableEncryptionResolver{}
	r.setSelf("self-key", priv.PublicKey())
	r.setLookup(func(key string) (string, bool) {
		if key == "peer-key" {
			return hex.EncodeToString(peerPriv.PublicKey().Bytes()), true
		}
		return "", false
	})

	selfPub, err := r.ResolveEncryptionKey(nil, "self-key")
	require.NoError(t, err)
	require.Equal(t, priv.PublicKey().Bytes(), selfPub.Bytes())

	peerPub, err := r.ResolveEncryptionKey(nil, "peer-key")
	require.NoError(t, err)
	require.Equal(t, peerPriv.PublicKey().Bytes(), peerPub.Bytes())

	_, err = r.ResolveEncryptionKey(nil, "unknown-key")
	require.Error(t, err)
}
