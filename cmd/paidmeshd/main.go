package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "paidmeshd",
	Short: "paidmeshd - gossip relay and payment connector node",
	Long: `paidmeshd runs a single node of the peer-to-peer social gossip
relay fused with an Interledger-style payment connector: it stores and
serves signed messages, prices them per kind, negotiates settlement
chains with peers over an encrypted handshake, and bootstraps into the
mesh from a configured genesis peer list.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML or JSON config file (overrides the env-name cascade)")
}
