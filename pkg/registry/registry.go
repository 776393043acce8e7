// Package registry resolves the ordered list of candidate models.
package registry

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pario-ai/tandem/pkg/models"
)

// DefaultModel is used whenever configuration yields no usable model.
const DefaultModel = "google/gemma-2-9b-it:free"

// SlotPrefix names model slots: model1, model2, ...
const SlotPrefix = "model"

// Source supplies named model slots from the active configuration.
type Source interface {
	Slots() (map[string]string, error)
}

// Static is a fixed in-memory Source.
type Static map[string]string

// Slots implements Source.
func (s Static) Slots() (map[string]string, error) {
	return s, nil
}

// List builds a Static source from an ordered list of models.
func List(ids ...string) Static {
	s := make(Static, len(ids))
	for i, id := range ids {
		s[fmt.Sprintf("%s%d", SlotPrefix, i+1)] = id
	}
	return s
}

// Registry resolves model slots into an ordered ModelList.
type Registry struct {
	src      Source
	fallback string
}

// New creates a Registry reading from src.
func New(src Source) *Registry {
	return &Registry{src: src, fallback: DefaultModel}
}

// Resolve returns the ordered candidate models. Slots are read from model1
// upward and scanning stops at the first missing index. Blank entries are
// skipped and repeats dropped. It never fails: an empty or unreadable
// source resolves to the single default model.
func (r *Registry) Resolve() models.ModelList {
	if r.src == nil {
		return models.ModelList{r.fallback}
	}
	slots, err := r.src.Slots()
	if err != nil {
		log.Warn("registry: could not load model configuration, using fallback", "fallback", r.fallback, "err", err)
		return models.ModelList{r.fallback}
	}

	var list models.ModelList
	seen := make(map[string]bool, len(slots))
	for i := 1; ; i++ {
		raw, ok := slots[fmt.Sprintf("%s%d", SlotPrefix, i)]
		if !ok {
			break
		}
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		list = append(list, id)
	}

	if len(list) == 0 {
		return models.ModelList{r.fallback}
	}
	return list
}

// DisplayName shortens a provider model id for logs: "vendor/name:tag"
// becomes "name".
func DisplayName(id string) string {
	if id == "" {
		return "unknown"
	}
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	if i := strings.Index(id, ":"); i >= 0 {
		id = id[:i]
	}
	return id
}
