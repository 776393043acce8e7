package failover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pario-ai/tandem/pkg/models"
	"github.com/pario-ai/tandem/pkg/registry"
)

const (
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 25 * time.Second
	// DefaultBackoff is the pause between two attempts.
	DefaultBackoff = 500 * time.Millisecond

	maxResponseBytes = 4 << 20
	maxReasonBytes   = 512
)

// Resolver supplies the candidate models for one call.
type Resolver interface {
	Resolve() models.ModelList
}

// Recorder receives every attempt the client makes.
type Recorder interface {
	RecordAttempt(ctx context.Context, a models.Attempt) error
}

// Options configures a Client.
type Options struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	Backoff    time.Duration
	HTTPClient *http.Client
	Recorder   Recorder
}

// Client sends chat completions, failing over across the registry's models.
type Client struct {
	endpoint string
	apiKey   string
	registry Resolver
	http     *http.Client
	timeout  time.Duration
	backoff  time.Duration
	recorder Recorder
}

// New creates a Client resolving candidates from reg.
func New(reg Resolver, opts Options) *Client {
	c := &Client{
		endpoint: opts.Endpoint,
		apiKey:   strings.TrimSpace(opts.APIKey),
		registry: reg,
		http:     opts.HTTPClient,
		timeout:  opts.Timeout,
		backoff:  opts.Backoff,
		recorder: opts.Recorder,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.backoff < 0 {
		c.backoff = 0
	}
	return c
}

// Completion is a successful provider response.
type Completion struct {
	Text     string
	Model    string
	Usage    *models.Usage
	Attempts []models.Attempt
}

// Labels tag the attempts of one call for the Recorder.
type Labels struct {
	RequestID string
	SessionID string
}

type labelsKey struct{}

// WithLabels attaches attempt labels to ctx.
func WithLabels(ctx context.Context, l Labels) context.Context {
	return context.WithValue(ctx, labelsKey{}, l)
}

// LabelsFrom returns the labels attached to ctx, if any.
func LabelsFrom(ctx context.Context) Labels {
	l, _ := ctx.Value(labelsKey{}).(Labels)
	return l
}

// Send issues req against the model st currently points at, moving down
// the list on retryable failures. On success after failing over, st keeps
// pointing at the model that answered; a first-attempt success returns st
// to the primary. When every remaining model fails, st is restored to its
// value before the call and an *ExhaustedError is returned.
//
// ctx is checked between attempts and during backoff; an attempt already
// in flight runs until it completes or hits the per-attempt timeout.
func (c *Client) Send(ctx context.Context, st *State, req models.ChatCompletionRequest) (*Completion, error) {
	if c.apiKey == "" {
		return nil, ConfigurationError(ErrMissingCredential)
	}
	if c.endpoint == "" {
		return nil, ConfigurationError(errors.New("provider URL is not configured"))
	}
	if len(req.Messages) == 0 {
		return nil, RequestError("request has no messages")
	}

	list := c.registry.Resolve()

	st.run.Lock()
	defer st.run.Unlock()

	idx, original := st.begin(len(list))
	labels := LabelsFrom(ctx)

	var (
		attempts  []models.Attempt
		attempted []string
		last      *Error
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, cancelledError(len(attempted), err)
		}

		model := list[idx]
		attempted = append(attempted, model)
		req.Model = model

		start := time.Now()
		resp, aerr := c.attempt(ctx, req)
		a := models.Attempt{
			RequestID: labels.RequestID,
			SessionID: labels.SessionID,
			Model:     model,
			Outcome:   models.OutcomeSuccess,
			LatencyMs: time.Since(start).Milliseconds(),
			CreatedAt: time.Now().UTC(),
		}
		if aerr != nil {
			a.Outcome = models.OutcomeNonRetryable
			if aerr.Retryable() {
				a.Outcome = models.OutcomeRetryable
			}
			a.StatusCode = aerr.StatusCode
			a.Reason = aerr.Reason
		} else {
			a.StatusCode = http.StatusOK
		}
		attempts = append(attempts, a)
		c.record(ctx, a)

		if aerr == nil {
			st.succeed(model, idx, len(attempted) > 1)
			if len(attempted) > 1 {
				log.Info("failover: recovered on fallback model", "model", registry.DisplayName(model), "attempts", len(attempted))
			}
			resp.Model = model
			resp.Attempts = attempts
			return resp, nil
		}

		if !aerr.Retryable() {
			log.Error("failover: request rejected", "model", registry.DisplayName(model), "err", aerr)
			return nil, aerr
		}

		last = aerr
		log.Warn("failover: attempt failed", "model", registry.DisplayName(model),
			"attempt", len(attempted), "reason", aerr.Reason, "status", aerr.StatusCode)

		if idx+1 >= len(list) {
			break
		}
		idx++
		st.advance(idx)

		if err := c.wait(ctx); err != nil {
			return nil, cancelledError(len(attempted), err)
		}
	}

	st.restore(original)
	ex := &ExhaustedError{Attempted: attempted, Last: last}
	log.Error("failover: all models failed", "attempted", strings.Join(attempted, ","), "err", last)
	return nil, ex
}

// attempt performs one HTTP exchange and classifies its outcome.
func (c *Client) attempt(ctx context.Context, req models.ChatCompletionRequest) (*Completion, *Error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindNonRetryable, Model: req.Model, Reason: "encode request", Err: err}
	}

	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Model: req.Model, Reason: "invalid provider URL", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(req.Model, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Kind: KindRetryable, Model: req.Model, StatusCode: resp.StatusCode, Reason: "read response", Err: err}
	}

	return classifyResponse(req.Model, resp.StatusCode, respBody)
}

func (c *Client) wait(ctx context.Context) error {
	if c.backoff <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) record(ctx context.Context, a models.Attempt) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordAttempt(context.WithoutCancel(ctx), a); err != nil {
		log.Warn("failover: record attempt failed", "model", a.Model, "err", err)
	}
}

// classifyTransport maps a failed round trip onto a retryable error.
func classifyTransport(model string, err error) *Error {
	reason := "connection failed"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		reason = "timeout"
	}
	return &Error{Kind: KindRetryable, Model: model, Reason: reason, Err: err}
}

// classifyResponse maps a provider response onto a completion or a
// classified error. 400, 401, 403, 413 and 422 mean the request itself is
// wrong and are not retried; every other non-2xx status is specific to the
// model or the moment and moves on to the next model.
func classifyResponse(model string, status int, body []byte) (*Completion, *Error) {
	switch {
	case status >= 200 && status < 300:
		var parsed models.ChatCompletionResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, &Error{Kind: KindRetryable, Model: model, StatusCode: status, Reason: "malformed response", Err: err}
		}
		if len(parsed.Choices) == 0 {
			return nil, &Error{Kind: KindRetryable, Model: model, StatusCode: status, Reason: "response has no choices"}
		}
		text := strings.TrimSpace(parsed.Choices[0].Message.Content)
		if text == "" {
			return nil, &Error{Kind: KindRetryable, Model: model, StatusCode: status, Reason: "empty completion"}
		}
		return &Completion{Text: text, Usage: parsed.Usage}, nil
	case status == http.StatusTooManyRequests:
		return nil, &Error{Kind: KindRetryable, Model: model, StatusCode: status, Reason: "rate limited", Err: bodyError(body)}
	case status >= 500:
		return nil, &Error{Kind: KindRetryable, Model: model, StatusCode: status, Reason: "server error", Err: bodyError(body)}
	case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusForbidden,
		status == http.StatusRequestEntityTooLarge, status == http.StatusUnprocessableEntity:
		return nil, &Error{Kind: KindNonRetryable, Model: model, StatusCode: status, Reason: "request rejected", Err: bodyError(body)}
	default:
		return nil, &Error{Kind: KindRetryable, Model: model, StatusCode: status, Reason: "unexpected status", Err: bodyError(body)}
	}
}

func bodyError(body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return nil
	}
	if len(msg) > maxReasonBytes {
		msg = msg[:maxReasonBytes] + "..."
	}
	return errors.New(msg)
}
