// Package scorer rates completion text with a shallow, deterministic
// heuristic. It performs no I/O.
package scorer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	baseScore   = 5
	minScore    = 1
	maxScore    = 10
	lengthBonus = 200 // characters
	healingCap  = 2
)

var (
	healingWords = []string{"understand", "love", "connect", "care", "heal", "support", "listen", "trust", "safe"}
	memoryWords  = []string{"pattern", "before", "previously", "remember"}
	actionWords  = []string{"try", "could", "might", "consider", "suggest"}

	contextWords = map[string][]string{
		"romantic":    {"partner", "relationship", "together"},
		"coparenting": {"children", "kids", "parenting"},
	}
)

// Hints carries the light context that influences a score.
type Hints struct {
	ContextTag string
	// HasHistory reports whether prior conversation was supplied to the call.
	HasHistory bool
}

// Result is a score together with how it was reached.
type Result struct {
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
}

// Score returns the quality score of text in [1,10].
func Score(text string, hints Hints) int {
	return Evaluate(text, hints).Score
}

// Evaluate scores text and explains each contribution.
func Evaluate(text string, hints Hints) Result {
	lower := strings.ToLower(text)
	score := baseScore
	parts := []string{fmt.Sprintf("base %d", baseScore)}

	if utf8.RuneCountInString(text) > lengthBonus {
		score++
		parts = append(parts, "+1 length")
	}

	if found := matches(lower, healingWords); len(found) > 0 {
		n := min(len(found), healingCap)
		score += n
		parts = append(parts, fmt.Sprintf("+%d healing (%s)", n, strings.Join(found, ", ")))
	}

	if hints.HasHistory && len(matches(lower, memoryWords)) > 0 {
		score++
		parts = append(parts, "+1 memory")
	}

	if words, ok := contextWords[strings.ToLower(strings.TrimSpace(hints.ContextTag))]; ok && len(matches(lower, words)) > 0 {
		score++
		parts = append(parts, "+1 context")
	}

	if len(matches(lower, actionWords)) > 0 {
		score++
		parts = append(parts, "+1 actionable")
	}

	score = max(minScore, min(maxScore, score))
	return Result{Score: score, Rationale: strings.Join(parts, "; ")}
}

// matches returns the words from vocab contained in lower, in vocab order.
func matches(lower string, vocab []string) []string {
	var found []string
	for _, w := range vocab {
		if strings.Contains(lower, w) {
			found = append(found, w)
		}
	}
	return found
}
