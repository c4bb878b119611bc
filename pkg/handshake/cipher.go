package handshake

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/paidmesh/paidmesh/internal/metrics"
)

const aeadAlgorithm = "aes256gcm"

// GenerateEncryptionKey creates the X25519 key pair a node advertises
// alongside its signing identity for handshake payload encryption.
func GenerateEncryptionKey() (*ecdh.PrivateKey, error) {
	return ecdh.X25519().GenerateKey(rand.Reader)
}

// seal performs ephemeral-static authenticated encryption against peerPub:
// a fresh X25519 key pair per call, ECDH against peerPub, an HKDF-derived
// AES-256-GCM key bound to both public keys as transcript, and a sealed
// ephemeralPub||nonce||ciphertext packet. Grounded on
// keys.EncryptWithEd25519Peer, generalized to operate directly on X25519
// keys instead of converting from an Ed25519 identity.
func seal(peerPub *ecdh.PublicKey, plaintext []byte) ([]byte, error) {
	start := time.Now()
	out, err := sealUnmetered(peerPub, plaintext)
	metrics.CryptoOperationDuration.WithLabelValues("seal", aeadAlgorithm).Observe(time.Since(start).Seconds())
	metrics.CryptoOperations.WithLabelValues("seal", aeadAlgorithm).Inc()
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("encrypt").Inc()
	}
	return out, err
}

func sealUnmetered(peerPub *ecdh.PublicKey, plaintext []byte) ([]byte, error) {
	ephPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	raw, err := ephPriv.ECDH(peerPub)
	if err != nil {
		return nil, err
	}

	ephPub := ephPriv.PublicKey().Bytes()
	transcript := append(append([]byte{}, ephPub...), peerPub.Bytes()...)
	key, err := deriveKey(raw, transcript)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce, plaintext, ephPub)

	out := make([]byte, 0, len(ephPub)+len(nonce)+len(ct))
	out = append(out, ephPub...)
	out = append(out, nonce...)
	out = append(out, ct...)
	return out, nil
}

// open reverses seal given the recipient's own X25519 private key.
func open(priv *ecdh.PrivateKey, packet []byte) ([]byte, error) {
	start := time.Now()
	out, err := openUnmetered(priv, packet)
	metrics.CryptoOperationDuration.WithLabelValues("open", aeadAlgorithm).Observe(time.Since(start).Seconds())
	metrics.CryptoOperations.WithLabelValues("open", aeadAlgorithm).Inc()
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("decrypt").Inc()
	}
	return out, err
}

func openUnmetered(priv *ecdh.PrivateKey, packet []byte) ([]byte, error) {
	const ePubLen = 32
	if len(packet) < ePubLen+12 {
		return nil, fmt.Errorf("handshake: sealed payload too short")
	}
	ePubBytes := packet[:ePubLen]
	nonce := packet[ePubLen : ePubLen+12]
	ct := packet[ePubLen+12:]

	ePub, err := ecdh.X25519().NewPublicKey(ePubBytes)
	if err != nil {
		return nil, fmt.Errorf("handshake: invalid ephemeral public key: %w", err)
	}
	raw, err := priv.ECDH(ePub)
	if err != nil {
		return nil, err
	}

	selfPub := priv.PublicKey().Bytes()
	transcript := append(append([]byte{}, ePubBytes...), selfPub...)
	key, err := deriveKey(raw, transcript)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ct, ePubBytes)
}

func deriveKey(raw, transcript []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, raw, transcript, []byte("paidmesh-handshake-aes256gcm"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("handshake: hkdf: %w", err)
	}
	return key, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
