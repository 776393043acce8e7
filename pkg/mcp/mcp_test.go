package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/tandem/pkg/cache/sqlite"
	"github.com/pario-ai/tandem/pkg/completion"
	"github.com/pario-ai/tandem/pkg/failover"
	"github.com/pario-ai/tandem/pkg/models"
	"github.com/pario-ai/tandem/pkg/registry"
	"github.com/pario-ai/tandem/pkg/tracker"
)

func testHandlers(t *testing.T, status map[string]int) *Handlers {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if code, ok := status[req.Model]; ok {
			w.WriteHeader(code)
			return
		}
		_ = json.NewEncoder(w).Encode(models.ChatCompletionResponse{
			Choices: []models.Choice{{Message: models.ChatMessage{Role: "assistant", Content: "Maybe try asking how their day went."}}},
		})
	}))
	t.Cleanup(upstream.Close)

	dir := t.TempDir()
	c, err := sqlite.New(filepath.Join(dir, "mcp.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	tr, err := tracker.New(filepath.Join(dir, "mcp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	reg := registry.New(registry.List("m1", "m2"))
	client := failover.New(reg, failover.Options{Endpoint: upstream.URL, APIKey: "k", Backoff: -1, Recorder: tr})
	svc := completion.New(completion.Options{Cache: c, Client: client, Version: "v1"})
	return NewHandlers(svc, reg, c, tr)
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestHandleComplete(t *testing.T) {
	h := testHandlers(t, map[string]int{"m1": http.StatusServiceUnavailable})
	ctx := context.Background()

	res, err := h.HandleComplete(ctx, makeRequest(map[string]any{"prompt": "we never talk", "contact_id": "sam"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var out completion.Result
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	assert.Equal(t, "m2", out.ModelUsed)
	assert.Equal(t, 6, out.Score)
	assert.False(t, out.Cached)

	res, err = h.HandleComplete(ctx, makeRequest(map[string]any{"prompt": "we never talk", "contact_id": "sam"}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	assert.True(t, out.Cached)
}

func TestHandleCompleteErrors(t *testing.T) {
	h := testHandlers(t, nil)
	ctx := context.Background()

	res, err := h.HandleComplete(ctx, makeRequest(map[string]any{"prompt": ""}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "non_retryable")

	res, err = h.HandleComplete(ctx, makeRequest(map[string]any{"prompt": "hi", "mode": "yell"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleModels(t *testing.T) {
	h := testHandlers(t, map[string]int{"m1": http.StatusTooManyRequests})
	ctx := context.Background()

	_, err := h.HandleComplete(ctx, makeRequest(map[string]any{"prompt": "hello", "session_id": "s1"}))
	require.NoError(t, err)

	res, err := h.HandleModels(ctx, makeRequest(nil))
	require.NoError(t, err)

	var out modelsOutput
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	assert.Equal(t, []string{"m1", "m2"}, out.Models)
	assert.Equal(t, 1, out.Sessions["mcp/s1"].CurrentIndex)
}

func TestHandleStats(t *testing.T) {
	h := testHandlers(t, map[string]int{"m1": http.StatusBadGateway})
	ctx := context.Background()

	_, err := h.HandleComplete(ctx, makeRequest(map[string]any{"prompt": "hello"}))
	require.NoError(t, err)

	res, err := h.HandleStats(ctx, makeRequest(map[string]any{"since": "1h"}))
	require.NoError(t, err)
	out := text(t, res)
	assert.Contains(t, out, "m1")
	assert.Contains(t, out, "m2")

	res, err = h.HandleStats(ctx, makeRequest(map[string]any{"since": "yesterday"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = h.HandleCacheStats(ctx, makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "Entries:  1")
}

func TestDisabledBackends(t *testing.T) {
	h := NewHandlers(nil, registry.New(nil), nil, nil)
	ctx := context.Background()

	res, err := h.HandleCacheStats(ctx, makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "Cache is disabled.", text(t, res))

	res, err = h.HandleStats(ctx, makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "Attempt tracking is disabled.", text(t, res))
}

func TestNewServerRegistersTools(t *testing.T) {
	h := testHandlers(t, nil)
	s := NewServer(h, "test")
	require.NotNil(t, s)
	assert.Len(t, toolRegistry, 4)
}

func TestFormatSummary(t *testing.T) {
	assert.Equal(t, "No attempts recorded.", formatSummary(nil))

	out := formatSummary([]models.ModelSummary{{Model: "vendor/alpha:free", Attempts: 3, Successes: 2, Failures: 1, AvgLatencyMs: 40}})
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "never")
}
