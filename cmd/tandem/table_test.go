package main

import (
	"strings"
	"testing"
)

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"MODEL", "ATTEMPTS"}, [][]string{{"alpha", "3"}, {"beta"}}, 2)

	for _, want := range []string{"MODEL", "ATTEMPTS", "alpha", "beta", "3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines < 4 {
		t.Errorf("expected a bordered table, got %d lines", lines)
	}
}
