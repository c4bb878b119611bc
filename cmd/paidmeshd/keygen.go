package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"
)

var keygenOutPath string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a secp256k1 signing key pair",
	RunE:  runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVar(&keygenOutPath, "out", "", "Write the hex-encoded private key to this file instead of stdout")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	privHex := hex.EncodeToString(priv.Serialize())
	pubHex := hexPublicKey(priv)

	if keygenOutPath != "" {
		if err := os.WriteFile(keygenOutPath, []byte(privHex+"\n"), 0600); err != nil {
			return fmt.Errorf("write key file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote private key to %s\npublic key: %s\n", keygenOutPath, pubHex)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "private key: %s\npublic key:  %s\n", privHex, pubHex)
	return nil
}

func hexPublicKey(priv *secp256k1.PrivateKey) string {
	return hex.EncodeToString(priv.PubKey().SerializeCompressed())
}

func readSigningKeyFile(path string) (*secp256k1.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key file: %w", err)
	}

	decoded, err := hex.DecodeString(trimKeyFile(raw))
	if err != nil {
		return nil, fmt.Errorf("decode signing key hex: %w", err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("signing key must be 32 bytes, got %d", len(decoded))
	}
	priv := secp256k1.PrivKeyFromBytes(decoded)
	return priv, nil
}

func trimKeyFile(raw []byte) string {
	s := string(raw)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}
