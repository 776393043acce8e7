// Package api exposes the completion service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/pario-ai/tandem/pkg/completion"
	"github.com/pario-ai/tandem/pkg/failover"
	"github.com/pario-ai/tandem/pkg/models"
	"github.com/pario-ai/tandem/pkg/prompt"
)

const (
	// SessionHeader selects a sticky failover session within the caller's
	// principal. Defaults to the principal itself.
	SessionHeader   = "X-Tandem-Session"
	RequestIDHeader = "X-Request-ID"
	CacheHeader     = "X-Tandem-Cache"

	maxBodyBytes = 1 << 20
)

// Resolver lists the candidate models.
type Resolver interface {
	Resolve() models.ModelList
}

// Server is the Tandem HTTP front end.
type Server struct {
	listen   string
	svc      *completion.Service
	registry Resolver
	mux      *http.ServeMux
}

// New creates a Server wired to svc.
func New(listen string, svc *completion.Service, reg Resolver) *Server {
	s := &Server{
		listen:   listen,
		svc:      svc,
		registry: reg,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/complete", s.handleComplete)
	s.mux.HandleFunc("/v1/models", s.handleModels)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("tandem listening", "addr", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

type completeRequest struct {
	Prompt      string               `json:"prompt"`
	ContactID   string               `json:"contact_id"`
	Context     string               `json:"context"`
	Mode        string               `json:"mode"`
	History     []models.ChatMessage `json:"history"`
	Instruction string               `json:"instruction"`
	ContactName string               `json:"contact_name"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	principal := extractAPIKey(r)
	if principal == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)

	var body completeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode, err := prompt.ParseMode(body.Mode)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	session := completion.SessionKey(principal, r.Header.Get(SessionHeader))

	res, err := s.svc.Complete(r.Context(), completion.Request{
		Prompt:      body.Prompt,
		ScopeKey:    completion.ScopeKey(principal, body.ContactID),
		ContextTag:  body.Context,
		Mode:        mode,
		History:     body.History,
		SessionID:   session,
		ContactName: body.ContactName,
		Instruction: body.Instruction,
		RequestID:   requestID,
	})
	if err != nil {
		code := statusFor(err)
		log.Warn("api: completion failed", "request_id", requestID, "status", code, "err", err)
		writeJSONError(w, code, err.Error())
		return
	}

	cache := "miss"
	if res.Cached {
		cache = "hit"
	}
	w.Header().Set(CacheHeader, cache)
	writeJSON(w, http.StatusOK, res)
}

type modelsResponse struct {
	Models  models.ModelList   `json:"models"`
	Session *failover.Snapshot `json:"session,omitempty"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := modelsResponse{Models: s.registry.Resolve()}
	if principal := extractAPIKey(r); principal != "" {
		key := completion.SessionKey(principal, r.Header.Get(SessionHeader))
		if st, ok := s.svc.Sessions().Lookup(key); ok {
			snap := st.Snapshot()
			resp.Session = &snap
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps a completion error onto an HTTP status.
func statusFor(err error) int {
	switch failover.KindOf(err) {
	case failover.KindConfiguration:
		return http.StatusInternalServerError
	case failover.KindNonRetryable:
		return http.StatusBadRequest
	case failover.KindExhausted, failover.KindRetryable:
		return http.StatusBadGateway
	case failover.KindCancelled:
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("api: write response failed", "err", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"tandem_error","code":%d}}`, message, code)
}
