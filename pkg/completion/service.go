// Package completion ties the cache, failover client and scorer together
// behind a single Complete call.
package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pario-ai/tandem/pkg/cache/sqlite"
	"github.com/pario-ai/tandem/pkg/failover"
	"github.com/pario-ai/tandem/pkg/models"
	"github.com/pario-ai/tandem/pkg/prompt"
	"github.com/pario-ai/tandem/pkg/scorer"
)

// Cache is the subset of the fingerprint cache the service needs.
type Cache interface {
	Get(ctx context.Context, scopeKey, fingerprint string) (*models.CacheEntry, bool)
	Put(ctx context.Context, scopeKey string, entry models.CacheEntry) error
	Invalidate(ctx context.Context, scopeKey, fingerprint string) error
}

// Sender sends a chat completion for one session.
type Sender interface {
	Send(ctx context.Context, st *failover.State, req models.ChatCompletionRequest) (*failover.Completion, error)
}

// Request is a single completion call.
type Request struct {
	Prompt     string
	ScopeKey   string
	ContextTag string
	Mode       prompt.Mode
	History    []models.ChatMessage
	// SessionID selects the sticky failover state. Calls without one share
	// the default session.
	SessionID   string
	ContactName string
	Instruction string
	RequestID   string
}

// Result is what Complete returns to callers.
type Result struct {
	Text           string           `json:"text"`
	Score          int              `json:"score"`
	Rationale      string           `json:"rationale"`
	Sentiment      models.Sentiment `json:"sentiment"`
	EmotionalState string           `json:"emotional_state"`
	ModelUsed      string           `json:"model_used"`
	Cached         bool             `json:"cached"`
	Fingerprint    string           `json:"fingerprint"`
}

// FailedError reports that the provider could not produce a completion.
// The underlying failover error is available via errors.As.
type FailedError struct {
	Err error
}

func (e *FailedError) Error() string {
	return "completion failed: " + e.Err.Error()
}

func (e *FailedError) Unwrap() error {
	return e.Err
}

// Options configures a Service.
type Options struct {
	// Cache may be nil to disable caching.
	Cache    Cache
	Client   Sender
	Sessions *failover.Sessions
	Prompts  *prompt.Builder
	// Version is mixed into every fingerprint.
	Version string
}

// Service is the completion façade.
type Service struct {
	cache    Cache
	client   Sender
	sessions *failover.Sessions
	prompts  *prompt.Builder
	version  string
}

// New creates a Service.
func New(opts Options) *Service {
	s := &Service{
		cache:    opts.Cache,
		client:   opts.Client,
		sessions: opts.Sessions,
		prompts:  opts.Prompts,
		version:  opts.Version,
	}
	if s.sessions == nil {
		s.sessions = failover.NewSessions()
	}
	if s.prompts == nil {
		s.prompts = prompt.NewBuilder(prompt.Templates{}, 0.7, 500)
	}
	return s
}

// Sessions exposes the per-session failover table.
func (s *Service) Sessions() *failover.Sessions {
	return s.sessions
}

// ScopeKey builds the cache partition key for a principal talking about a
// contact.
func ScopeKey(principal, contactID string) string {
	return strings.TrimSpace(principal) + "/" + strings.TrimSpace(contactID)
}

// SessionKey names the failover session for a caller. A caller-chosen
// session is namespaced under its principal so callers never share or
// observe each other's state.
func SessionKey(principal, session string) string {
	principal = strings.TrimSpace(principal)
	if session = strings.TrimSpace(session); session == "" {
		return principal
	}
	return principal + "/" + session
}

// Complete answers req from the cache when possible and from the provider
// otherwise. A cache failure never fails the call.
func (s *Service) Complete(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, failover.RequestError("prompt is empty")
	}
	if req.Mode == "" {
		req.Mode = prompt.ModeTransform
	}

	fp := s.fingerprint(req.Prompt, req.ContextTag, req.Mode, req.Instruction)

	if s.cache != nil {
		if e, ok := s.cache.Get(ctx, req.ScopeKey, fp); ok {
			log.Debug("completion: cache hit", "scope", req.ScopeKey, "model", e.ModelUsed)
			return &Result{
				Text:           e.ResponseText,
				Score:          e.Score,
				Rationale:      e.Rationale,
				Sentiment:      e.Sentiment,
				EmotionalState: e.EmotionalState,
				ModelUsed:      e.ModelUsed,
				Cached:         true,
				Fingerprint:    fp,
			}, nil
		}
	}

	chat := s.prompts.Build(prompt.Input{
		Mode:        req.Mode,
		Message:     req.Prompt,
		ContextTag:  req.ContextTag,
		ContactName: req.ContactName,
		History:     req.History,
		Instruction: req.Instruction,
	})

	callCtx := failover.WithLabels(ctx, failover.Labels{RequestID: req.RequestID, SessionID: req.SessionID})
	out, err := s.client.Send(callCtx, s.sessions.Get(req.SessionID), chat)
	if err != nil {
		return nil, &FailedError{Err: err}
	}

	eval := scorer.Evaluate(out.Text, scorer.Hints{ContextTag: req.ContextTag, HasHistory: len(req.History) > 0})
	sentiment, state := scorer.Mood(out.Text)

	res := &Result{
		Text:           out.Text,
		Score:          eval.Score,
		Rationale:      eval.Rationale,
		Sentiment:      sentiment,
		EmotionalState: state,
		ModelUsed:      out.Model,
		Fingerprint:    fp,
	}

	if s.cache != nil {
		err := s.cache.Put(ctx, req.ScopeKey, models.CacheEntry{
			Fingerprint:    fp,
			ContextTag:     req.ContextTag,
			ResponseText:   res.Text,
			Score:          res.Score,
			Rationale:      res.Rationale,
			Sentiment:      res.Sentiment,
			EmotionalState: res.EmotionalState,
			ModelUsed:      res.ModelUsed,
		})
		if err != nil {
			log.Warn("completion: cache put failed", "scope", req.ScopeKey, "err", err)
		}
	}
	return res, nil
}

// fingerprint keys a request. An instruction replaces the system prompt,
// so it is part of the key when present.
func (s *Service) fingerprint(promptText, contextTag string, mode prompt.Mode, instruction string) string {
	if instruction = strings.TrimSpace(instruction); instruction != "" {
		return sqlite.Fingerprint(promptText, contextTag, string(mode), s.version, instruction)
	}
	return sqlite.Fingerprint(promptText, contextTag, string(mode), s.version)
}

// Forget drops the cached answer for req so the next call goes to the
// provider. Only the fields that make up the cache key are used.
func (s *Service) Forget(ctx context.Context, req Request) error {
	if s.cache == nil {
		return nil
	}
	if req.Mode == "" {
		req.Mode = prompt.ModeTransform
	}
	fp := s.fingerprint(req.Prompt, req.ContextTag, req.Mode, req.Instruction)
	if err := s.cache.Invalidate(ctx, req.ScopeKey, fp); err != nil {
		return fmt.Errorf("forget: %w", err)
	}
	return nil
}
