package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/auth"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key <api-key>",
	Short: "Generate the SHA256 hash for an API key",
	Long: `Generate the SHA-256 hash of a raw API key.

The gateway's key lookup layer stores hashes, never raw keys. Use this to
seed key records for an organization.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(auth.HashKey(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}
