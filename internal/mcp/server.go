// Package mcp implements the MCP (Model Context Protocol) server for
// ivault. Tools expose item metadata only: names, types and ids. AI
// agents never receive decrypted payloads, and the session stays locked
// for the server's whole lifetime.
package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ispacehq/ivault/internal/logger"
	"github.com/ispacehq/ivault/pkg/vault"
)

// Server is the MCP server over a vault service.
type Server struct {
	server *mcp.Server
	vault  *vault.Service
	policy *Policy
	log    *logger.Logger
}

// ServerOptions configures the MCP server.
type ServerOptions struct {
	// Vault is the backing vault service. Required.
	Vault *vault.Service

	// PolicyPath is the exposure policy file. A missing file puts the
	// server in restricted mode where no tool returns any items.
	PolicyPath string

	// Log is optional; nil falls back to a no-op logger.
	Log *logger.Logger
}

// NewServer builds the MCP server and registers its tools.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Vault == nil {
		return nil, errors.New("mcp: vault service is required")
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}

	policy, err := LoadPolicy(opts.PolicyPath)
	if err != nil {
		if !errors.Is(err, ErrPolicyNotFound) {
			return nil, err
		}
		log.Warn().Str("path", opts.PolicyPath).Msg("no policy file, running restricted")
		policy = RestrictedPolicy()
	}

	s := &Server{
		server: mcp.NewServer(
			&mcp.Implementation{Name: "ivault", Version: "1.0.0"},
			nil,
		),
		vault:  opts.Vault,
		policy: policy,
		log:    log,
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "item_list",
		Description: "List vault items of a given type with metadata (id, name, type). Does NOT return passwords, card numbers or document contents.",
	}, s.handleItemList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "item_search",
		Description: "Search vault items of a given type by case-insensitive name match. Returns metadata only, never secret values.",
	}, s.handleItemSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "item_exists",
		Description: "Check whether a vault item with the given display name exists and return its metadata. Does NOT return the item's payload.",
	}, s.handleItemExists)
}

// Run serves MCP requests over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
