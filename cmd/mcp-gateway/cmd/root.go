// Package cmd provides the CLI commands for the MCP gateway.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcp-gateway",
	Short: "MCP Gateway - multi-tenant front-end for MCP servers",
	Long: `mcp-gateway terminates HTTP and WebSocket connections from MCP clients,
authenticates them, routes each JSON-RPC request to the backend MCP server
that implements the requested capability, and returns the result.

Quick start:
  1. Create a config file: mcp-gateway.yaml (declare mcp_servers)
  2. Run: mcp-gateway start

Configuration:
  Config is loaded from mcp-gateway.yaml in the current directory,
  $HOME/.mcp-gateway/, or /etc/mcp-gateway/.

  Deployment-sensitive values can be overridden via environment variables:
  GATEWAY_PORT, GATEWAY_HOST, ALLOWED_ORIGINS, JWT_SECRET, MCP_API_KEY,
  SESSION_TIMEOUT, MAX_CONCURRENT_SESSIONS, API_RATE_LIMIT,
  MAX_REQUEST_SIZE, CORS_CREDENTIALS, NODE_ENV.

Commands:
  start       Start the gateway
  hash-key    Generate the SHA256 hash for an API key
  version     Print version information`,
}

// Execute runs the root command. Boot-time configuration failures exit 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcp-gateway.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
