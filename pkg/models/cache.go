package models

import "time"

// Sentiment is the coarse tone attached to a cached response.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentUnknown  Sentiment = "unknown"
)

// ParseSentiment maps free-form text onto a Sentiment. Anything
// unrecognized becomes SentimentUnknown.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(s) {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return Sentiment(s)
	default:
		return SentimentUnknown
	}
}

// CacheEntry stores a scored completion under its fingerprint.
type CacheEntry struct {
	Fingerprint    string    `json:"fingerprint"`
	ContextTag     string    `json:"context_tag"`
	ResponseText   string    `json:"response_text"`
	Score          int       `json:"score"`
	Rationale      string    `json:"rationale,omitempty"`
	Sentiment      Sentiment `json:"sentiment"`
	EmotionalState string    `json:"emotional_state"`
	ModelUsed      string    `json:"model_used"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Expired int64 `json:"expired"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
