package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ispacehq/ivault/internal/logger"
	"github.com/ispacehq/ivault/internal/mcp"
)

// mcpServerCmd runs the MCP server over stdio. Tools expose item
// metadata only; the session stays locked for the server's lifetime.
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Runs the MCP server (metadata-only tools) over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := mcp.NewServer(mcp.ServerOptions{
			Vault:      app.svc,
			PolicyPath: app.cfg.PolicyPath,
			Log:        logger.New("mcp", app.cfg.LogLevel),
		})
		if err != nil {
			return fmt.Errorf("failed to start MCP server: %w", err)
		}
		return srv.Run(cmd.Context())
	},
}
