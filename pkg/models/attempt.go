package models

import "time"

// AttemptOutcome classifies a single provider attempt.
type AttemptOutcome string

const (
	OutcomeSuccess      AttemptOutcome = "success"
	OutcomeRetryable    AttemptOutcome = "retryable"
	OutcomeNonRetryable AttemptOutcome = "non_retryable"
)

// Attempt records one request sent to one model.
type Attempt struct {
	ID         int64          `json:"id"`
	RequestID  string         `json:"request_id"`
	SessionID  string         `json:"session_id,omitempty"`
	Model      string         `json:"model"`
	Outcome    AttemptOutcome `json:"outcome"`
	StatusCode int            `json:"status_code,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	LatencyMs  int64          `json:"latency_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ModelSummary aggregates attempts for one model.
type ModelSummary struct {
	Model        string    `json:"model"`
	Attempts     int       `json:"attempts"`
	Successes    int       `json:"successes"`
	Failures     int       `json:"failures"`
	AvgLatencyMs int64     `json:"avg_latency_ms"`
	LastSuccess  time.Time `json:"last_success,omitempty"`
}
