package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/tandem/pkg/models"
	"github.com/pario-ai/tandem/pkg/registry"
)

// formatSummary formats per-model attempt summaries as a text table.
func formatSummary(rows []models.ModelSummary) string {
	if len(rows) == 0 {
		return "No attempts recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %8s %8s %8s %10s  %s\n",
		"Model", "Attempts", "OK", "Failed", "Avg ms", "Last success")
	b.WriteString(strings.Repeat("-", 90) + "\n")
	for _, r := range rows {
		last := "never"
		if !r.LastSuccess.IsZero() {
			last = r.LastSuccess.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(&b, "%-25s %8d %8d %8d %10d  %s\n",
			registry.DisplayName(r.Model), r.Attempts, r.Successes, r.Failures, r.AvgLatencyMs, last)
	}
	return b.String()
}

// formatCacheStats formats cache statistics.
func formatCacheStats(s models.CacheStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entries:  %d\n", s.Entries)
	fmt.Fprintf(&b, "Expired:  %d\n", s.Expired)
	fmt.Fprintf(&b, "Hits:     %d\n", s.Hits)
	fmt.Fprintf(&b, "Misses:   %d\n", s.Misses)
	if total := s.Hits + s.Misses; total > 0 {
		fmt.Fprintf(&b, "Hit rate: %.1f%%\n", float64(s.Hits)/float64(total)*100)
	}
	return b.String()
}
