package scorer

import (
	"encoding/json"
	"strings"

	"github.com/pario-ai/tandem/pkg/models"
)

// DefaultEmotionalState is reported when the response carries none.
const DefaultEmotionalState = "calm"

// Mood extracts sentiment and emotional state from a response that embeds
// a JSON object, optionally inside a ```json fence. Plain-text responses
// yield neutral/calm.
func Mood(text string) (models.Sentiment, string) {
	var payload struct {
		Sentiment      string `json:"sentiment"`
		EmotionalState string `json:"emotional_state"`
	}
	raw, ok := embeddedJSON(text)
	if !ok || json.Unmarshal([]byte(raw), &payload) != nil {
		return models.SentimentNeutral, DefaultEmotionalState
	}

	sentiment := models.SentimentNeutral
	if s := strings.ToLower(strings.TrimSpace(payload.Sentiment)); s != "" {
		sentiment = models.ParseSentiment(s)
	}
	state := strings.TrimSpace(payload.EmotionalState)
	if state == "" {
		state = DefaultEmotionalState
	}
	return sentiment, state
}

func embeddedJSON(text string) (string, bool) {
	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			text = rest[:j]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
