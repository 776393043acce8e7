package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/tandem/pkg/models"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeTransform, m)

	m, err = ParseMode(" Interpret ")
	require.NoError(t, err)
	assert.Equal(t, ModeInterpret, m)

	_, err = ParseMode("summarize")
	assert.Error(t, err)
}

func TestBuildTransform(t *testing.T) {
	b := NewBuilder(Templates{}, 0.7, 500)
	req := b.Build(Input{Mode: ModeTransform, Message: "  you never listen ", ContextTag: "romantic", ContactName: "Sam"})

	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "partner & intimate relationships")
	assert.Contains(t, req.Messages[0].Content, "Sam")
	assert.Equal(t, models.ChatMessage{Role: "user", Content: "you never listen"}, req.Messages[1])
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 500, req.MaxTokens)
	assert.Empty(t, req.Model)
}

func TestBuildInterpretSettings(t *testing.T) {
	b := NewBuilder(Templates{}, 0.7, 500)
	req := b.Build(Input{Mode: ModeInterpret, Message: "fine.", ContextTag: "unknown-tag"})

	assert.Contains(t, req.Messages[0].Content, "general relationship")
	assert.Contains(t, req.Messages[0].Content, "the other person")
	assert.Equal(t, 0.8, req.Temperature)
	assert.Equal(t, 400, req.MaxTokens)
}

func TestBuildCustomTemplatesAndInstruction(t *testing.T) {
	b := NewBuilder(Templates{Transform: "Soften for {contact} ({context})."}, 0.5, 100)

	req := b.Build(Input{Message: "x", ContextTag: "workplace", ContactName: "Lee"})
	assert.Equal(t, "Soften for Lee (professional relationships).", req.Messages[0].Content)

	req = b.Build(Input{Message: "x", Instruction: "Only say hello to {contact}."})
	assert.Equal(t, "Only say hello to the other person.", req.Messages[0].Content)
}

func TestBuildTrimsHistory(t *testing.T) {
	b := NewBuilder(Templates{}, 0.7, 500)
	var history []models.ChatMessage
	for i := 0; i < 10; i++ {
		history = append(history, models.ChatMessage{Role: "user", Content: strings.Repeat("h", i+1)})
	}
	req := b.Build(Input{Message: "now", History: history})

	require.Len(t, req.Messages, 1+historyLimit+1)
	assert.Equal(t, history[len(history)-historyLimit], req.Messages[1])
	assert.Equal(t, "now", req.Messages[len(req.Messages)-1].Content)
}
