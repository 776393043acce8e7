package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/tandem/pkg/cache/sqlite"
	"github.com/pario-ai/tandem/pkg/completion"
	"github.com/pario-ai/tandem/pkg/failover"
	"github.com/pario-ai/tandem/pkg/models"
	"github.com/pario-ai/tandem/pkg/registry"
)

func setupServer(t *testing.T, apiKey string, status map[string]int, ids ...string) *Server {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-provider" {
			t.Error("expected provider API key in upstream request")
		}
		var req models.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if code, ok := status[req.Model]; ok {
			w.WriteHeader(code)
			return
		}
		_ = json.NewEncoder(w).Encode(models.ChatCompletionResponse{
			Choices: []models.Choice{{Message: models.ChatMessage{Role: "assistant", Content: "I hear you."}}},
		})
	}))
	t.Cleanup(upstream.Close)

	c, err := sqlite.New(filepath.Join(t.TempDir(), "api.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	reg := registry.New(registry.List(ids...))
	client := failover.New(reg, failover.Options{Endpoint: upstream.URL, APIKey: apiKey, Backoff: -1})
	svc := completion.New(completion.Options{Cache: c, Client: client, Version: "v1"})
	return New(":0", svc, reg)
}

func post(srv *Server, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/complete", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

var auth = map[string]string{"Authorization": "Bearer alice"}

func TestComplete(t *testing.T) {
	srv := setupServer(t, "sk-provider", nil, "m1")
	body := `{"prompt":"you never call","contact_id":"bob","context":"romantic"}`

	w := post(srv, body, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "miss", w.Header().Get(CacheHeader))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	var res completion.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "I hear you.", res.Text)
	assert.Equal(t, "m1", res.ModelUsed)
	assert.Equal(t, 5, res.Score)

	w2 := post(srv, body, map[string]string{"Authorization": "Bearer alice", RequestIDHeader: "req-42"})
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "hit", w2.Header().Get(CacheHeader))
	assert.Equal(t, "req-42", w2.Header().Get(RequestIDHeader))
}

func TestCompleteErrors(t *testing.T) {
	srv := setupServer(t, "sk-provider", map[string]int{"m1": 500, "m2": 429}, "m1", "m2")

	tests := []struct {
		name    string
		body    string
		headers map[string]string
		want    int
	}{
		{"missing api key", `{"prompt":"hi"}`, nil, http.StatusUnauthorized},
		{"invalid json", `{"prompt":`, auth, http.StatusBadRequest},
		{"unknown mode", `{"prompt":"hi","mode":"shout"}`, auth, http.StatusBadRequest},
		{"empty prompt", `{"prompt":"  "}`, auth, http.StatusBadRequest},
		{"all models failed", `{"prompt":"hi"}`, auth, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(srv, tt.body, tt.headers)
			assert.Equal(t, tt.want, w.Code, w.Body.String())

			var env struct {
				Error struct {
					Message string `json:"message"`
					Type    string `json:"type"`
					Code    int    `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.Equal(t, tt.want, env.Error.Code)
			assert.Equal(t, "tandem_error", env.Error.Type)
		})
	}
}

func TestCompleteMissingProviderKey(t *testing.T) {
	srv := setupServer(t, "", nil, "m1")
	w := post(srv, `{"prompt":"hi"}`, auth)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "API key is not configured")
}

func TestMethodNotAllowed(t *testing.T) {
	srv := setupServer(t, "sk-provider", nil, "m1")

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/complete", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/models", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func getModels(t *testing.T, srv *Server, headers map[string]string) modelsResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp modelsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestModelsReportsSession(t *testing.T) {
	srv := setupServer(t, "sk-provider", map[string]int{"m1": 503}, "m1", "m2")

	w := post(srv, `{"prompt":"hi"}`, map[string]string{"Authorization": "Bearer alice", SessionHeader: "phone"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := getModels(t, srv, map[string]string{"Authorization": "Bearer alice", SessionHeader: "phone"})
	assert.Equal(t, models.ModelList{"m1", "m2"}, resp.Models)
	require.NotNil(t, resp.Session)
	assert.Equal(t, 1, resp.Session.CurrentIndex)
	assert.Equal(t, "m2", resp.Session.LastSuccessfulModel)

	// Anonymous callers get the model list only.
	assert.Nil(t, getModels(t, srv, nil).Session)
	assert.Nil(t, getModels(t, srv, map[string]string{SessionHeader: "phone"}).Session)
}

func TestSessionsAreScopedToPrincipal(t *testing.T) {
	srv := setupServer(t, "sk-provider", map[string]int{"m1": 503}, "m1", "m2")

	w := post(srv, `{"prompt":"hi"}`, map[string]string{"Authorization": "Bearer alice", SessionHeader: "phone"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Same session name, different principal: nothing to see.
	resp := getModels(t, srv, map[string]string{"Authorization": "Bearer mallory", SessionHeader: "phone"})
	assert.Nil(t, resp.Session)

	// Looking the session up never creates one.
	assert.Equal(t, 1, srv.svc.Sessions().Len())
	_, ok := srv.svc.Sessions().Lookup("alice/phone")
	assert.True(t, ok)
}

func TestHealth(t *testing.T) {
	srv := setupServer(t, "sk-provider", nil, "m1")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{failover.ConfigurationError(failover.ErrMissingCredential), http.StatusInternalServerError},
		{failover.RequestError("bad"), http.StatusBadRequest},
		{&completion.FailedError{Err: &failover.ExhaustedError{Attempted: []string{"a"}}}, http.StatusBadGateway},
		{&completion.FailedError{Err: fmt.Errorf("failover cancelled: %w", context.Canceled)}, http.StatusGatewayTimeout},
		{&completion.FailedError{Err: &failover.Error{Kind: failover.KindCancelled, Err: context.DeadlineExceeded}}, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
