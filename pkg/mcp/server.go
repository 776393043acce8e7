// Package mcp exposes Tandem to MCP clients over stdio.
package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pario-ai/tandem/pkg/completion"
	"github.com/pario-ai/tandem/pkg/models"
)

// Principal scopes cache entries created through MCP.
const Principal = "mcp"

// Resolver lists the candidate models.
type Resolver interface {
	Resolve() models.ModelList
}

// CacheStatter provides cache statistics without coupling to a concrete cache implementation.
type CacheStatter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// Summarizer aggregates attempt history per model.
type Summarizer interface {
	Summary(ctx context.Context, since time.Time) ([]models.ModelSummary, error)
}

// Handlers holds dependencies for MCP tool handlers. Cache and tracker may
// be nil, in which case their tools report that they are unavailable.
type Handlers struct {
	svc      *completion.Service
	registry Resolver
	cache    CacheStatter
	tracker  Summarizer
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *completion.Service, reg Resolver, cache CacheStatter, tracker Summarizer) *Handlers {
	return &Handlers{svc: svc, registry: reg, cache: cache, tracker: tracker}
}

type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

var toolRegistry = map[string]toolEntry{
	"tandem_complete": {
		def:     completeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleComplete },
	},
	"tandem_models": {
		def:     modelsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleModels },
	},
	"tandem_cache_stats": {
		def:     cacheStatsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCacheStats },
	},
	"tandem_stats": {
		def:     statsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStats },
	},
}

// NewServer creates an MCP server with every Tandem tool registered.
func NewServer(h *Handlers, version string) *server.MCPServer {
	s := server.NewMCPServer("tandem", version, server.WithToolCapabilities(true))
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run serves MCP over stdin/stdout until the client disconnects.
func Run(h *Handlers, version string) error {
	return server.ServeStdio(NewServer(h, version))
}
