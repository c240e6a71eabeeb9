// mcp-gateway is the multi-tenant front-end for MCP backend servers.
package main

import (
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/cmd/mcp-gateway/cmd"
)

func main() {
	cmd.Execute()
}
