// Package handshake implements the encrypted chain-negotiation protocol
// (C5): two ephemeral kinds, a request and a response, carrying an
// authenticated-encrypted payload keyed from a fresh ephemeral X25519 key
// and the recipient's encryption key, plus a random nonce. The responder negotiates a common
// settlement chain, opens a payment channel synchronously through the
// connector, and returns the signed response as packet fulfill data.
//
// Message-signing identity (secp256k1, verified via pkg/message) and
// handshake-payload encryption identity are deliberately separate keys:
// the former is a Schnorr signing key, the latter an X25519 key-agreement
// key, and no elliptic curve in this module is asked to do both jobs.
package handshake

import "encoding/base64"

// RequestPayload is the plaintext sealed inside an HS_REQ message's
// content field.
type RequestPayload struct {
	RequestID           string            `json:"requestId"`
	SupportedChains     []string          `json:"supportedChains"`
	SettlementAddresses map[string]string `json:"settlementAddresses"`
	PreferredTokens     map[string]string `json:"preferredTokens"`
}

// ResponsePayload is the plaintext sealed inside an HS_RES message's
// content field.
type ResponsePayload struct {
	RequestID                string `json:"requestId"`
	DestinationAddress       string `json:"destinationAddress"`
	NegotiatedChain          string `json:"negotiatedChain,omitempty"`
	SettlementAddress        string `json:"settlementAddress,omitempty"`
	ChannelID                string `json:"channelId,omitempty"`
	SettlementTimeoutSeconds int    `json:"settlementTimeoutSeconds,omitempty"`
}

// encodeContent/decodeContent carry a sealed binary payload inside a
// SignedMessage's UTF-8 content field.
func encodeContent(sealed []byte) string {
	return base64.StdEncoding.EncodeToString(sealed)
}

func decodeContent(content string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(content)
}
