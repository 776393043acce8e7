package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pario-ai/tandem/pkg/completion"
	"github.com/pario-ai/tandem/pkg/failover"
	"github.com/pario-ai/tandem/pkg/prompt"
)

var completeToolDef = mcp.NewTool("tandem_complete",
	mcp.WithDescription("Rewrite or interpret a message about a contact. Answers come from the cache when possible and fail over across the configured models otherwise."),
	mcp.WithString("prompt", mcp.Required(), mcp.Description("The message to transform or interpret")),
	mcp.WithString("contact_id", mcp.Description("Contact the message concerns; scopes the cache")),
	mcp.WithString("context", mcp.Description("Relationship context such as romantic or coparenting")),
	mcp.WithString("mode", mcp.Description("transform (default) or interpret")),
	mcp.WithString("session_id", mcp.Description("Sticky failover session (defaults to the MCP session)")),
)

var modelsToolDef = mcp.NewTool("tandem_models",
	mcp.WithDescription("List the failover order and each session's current position in it."),
)

var cacheStatsToolDef = mcp.NewTool("tandem_cache_stats",
	mcp.WithDescription("Show response cache entry counts and hit rate."),
)

var statsToolDef = mcp.NewTool("tandem_stats",
	mcp.WithDescription("Show per-model attempt statistics."),
	mcp.WithString("since", mcp.Description("Only count attempts newer than this duration, e.g. 24h (optional)")),
)

type completeArgs struct {
	Prompt    string `json:"prompt"`
	ContactID string `json:"contact_id"`
	Context   string `json:"context"`
	Mode      string `json:"mode"`
	SessionID string `json:"session_id"`
}

type statsArgs struct {
	Since string `json:"since"`
}

// decode unmarshals MCP request arguments into a typed struct.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("unmarshal args: %w", err)
	}
	return result, nil
}

// HandleComplete runs one completion.
func (h *Handlers) HandleComplete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[completeArgs](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode, err := prompt.ParseMode(args.Mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := h.svc.Complete(ctx, completion.Request{
		Prompt:     args.Prompt,
		ScopeKey:   completion.ScopeKey(Principal, args.ContactID),
		ContextTag: args.Context,
		Mode:       mode,
		SessionID:  completion.SessionKey(Principal, args.SessionID),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", failover.KindOf(err), err)), nil
	}
	return mcp.NewToolResultJSON(res)
}

type modelsOutput struct {
	Models   []string                     `json:"models"`
	Sessions map[string]failover.Snapshot `json:"sessions"`
}

// HandleModels reports the resolved model order.
func (h *Handlers) HandleModels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(modelsOutput{
		Models:   h.registry.Resolve(),
		Sessions: h.svc.Sessions().Snapshots(),
	})
}

// HandleCacheStats reports cache counters.
func (h *Handlers) HandleCacheStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.cache == nil {
		return mcp.NewToolResultText("Cache is disabled."), nil
	}
	stats, err := h.cache.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatCacheStats(stats)), nil
}

// HandleStats reports per-model attempt statistics.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.tracker == nil {
		return mcp.NewToolResultText("Attempt tracking is disabled."), nil
	}
	args, err := decode[statsArgs](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var since time.Time
	if args.Since != "" {
		d, err := time.ParseDuration(args.Since)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid since: %v", err)), nil
		}
		since = time.Now().Add(-d)
	}
	rows, err := h.tracker.Summary(ctx, since)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSummary(rows)), nil
}
