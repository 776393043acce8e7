// Package prompt turns a user message into provider chat messages.
package prompt

import (
	"fmt"
	"strings"

	"github.com/pario-ai/tandem/pkg/models"
)

// Mode selects how a message is handled.
type Mode string

const (
	// ModeTransform rewrites the user's own outgoing message.
	ModeTransform Mode = "transform"
	// ModeInterpret explains an incoming message and suggests a reply.
	ModeInterpret Mode = "interpret"
)

// ParseMode validates a mode name. Empty means transform.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeTransform:
		return ModeTransform, nil
	case ModeInterpret:
		return ModeInterpret, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Context tags with a known description.
var contextDescriptions = map[string]string{
	"romantic":    "partner & intimate relationships",
	"coparenting": "raising children together",
	"workplace":   "professional relationships",
	"family":      "extended family connections",
	"friend":      "friendships & social bonds",
}

// Describe returns a human description of a context tag.
func Describe(tag string) string {
	if d, ok := contextDescriptions[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return d
	}
	return "general relationship"
}

const defaultTransform = `You are a calm third voice in a {context} conversation. Rewrite the message {contact} is about to receive so it keeps its meaning but lands with care instead of blame. Reply with the rewritten message only.`

const defaultInterpret = `You are a calm third voice in a {context} conversation. Someone named {contact} sent the message below. Explain the feelings and unmet needs behind it, then suggest a kind reply.`

// historyLimit caps how many prior messages are replayed to the model.
const historyLimit = 6

// Templates holds system prompts per mode. Placeholders {context} and
// {contact} are substituted on use.
type Templates struct {
	Transform string
	Interpret string
}

// Input is everything needed to build one provider request.
type Input struct {
	Mode        Mode
	Message     string
	ContextTag  string
	ContactName string
	History     []models.ChatMessage
	// Instruction replaces the system prompt entirely when set.
	Instruction string
}

// Builder produces provider requests with fixed sampling settings.
type Builder struct {
	templates   Templates
	temperature float64
	maxTokens   int
}

// NewBuilder creates a Builder. Empty templates fall back to the defaults.
func NewBuilder(t Templates, temperature float64, maxTokens int) *Builder {
	if strings.TrimSpace(t.Transform) == "" {
		t.Transform = defaultTransform
	}
	if strings.TrimSpace(t.Interpret) == "" {
		t.Interpret = defaultInterpret
	}
	return &Builder{templates: t, temperature: temperature, maxTokens: maxTokens}
}

// Build assembles the provider request. The model is left empty; the
// failover client fills it in per attempt.
func (b *Builder) Build(in Input) models.ChatCompletionRequest {
	contact := strings.TrimSpace(in.ContactName)
	if contact == "" {
		contact = "the other person"
	}
	r := strings.NewReplacer("{context}", Describe(in.ContextTag), "{contact}", contact)

	system := in.Instruction
	if system == "" {
		system = b.templates.Transform
		if in.Mode == ModeInterpret {
			system = b.templates.Interpret
		}
	}

	msgs := []models.ChatMessage{{Role: "system", Content: r.Replace(system)}}
	history := in.History
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, models.ChatMessage{Role: "user", Content: strings.TrimSpace(in.Message)})

	req := models.ChatCompletionRequest{
		Messages:    msgs,
		Temperature: b.temperature,
		MaxTokens:   b.maxTokens,
	}
	// Interpretation reads better a little warmer and shorter.
	if in.Mode == ModeInterpret {
		req.Temperature = 0.8
		req.MaxTokens = min(b.maxTokens, 400)
	}
	return req
}
