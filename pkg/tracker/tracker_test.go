package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/tandem/pkg/models"
)

func newTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func attempt(req, model string, outcome models.AttemptOutcome, latency int64, at time.Time) models.Attempt {
	return models.Attempt{
		RequestID: req,
		SessionID: "sess",
		Model:     model,
		Outcome:   outcome,
		LatencyMs: latency,
		CreatedAt: at,
	}
}

func TestRecordAndRequest(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := attempt("r1", "m1", models.OutcomeRetryable, 30, now)
	a.StatusCode = 429
	a.Reason = "rate limited"
	if err := tr.RecordAttempt(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := tr.RecordAttempt(ctx, attempt("r1", "m2", models.OutcomeSuccess, 80, now.Add(time.Millisecond))); err != nil {
		t.Fatal(err)
	}
	_ = tr.RecordAttempt(ctx, attempt("r2", "m1", models.OutcomeSuccess, 10, now))

	got, err := tr.Request(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(got))
	}
	if got[0].Model != "m1" || got[0].StatusCode != 429 || got[0].Reason != "rate limited" {
		t.Errorf("unexpected first attempt: %+v", got[0])
	}
	if got[1].Model != "m2" || got[1].Outcome != models.OutcomeSuccess {
		t.Errorf("unexpected second attempt: %+v", got[1])
	}
	if !got[0].CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", got[0].CreatedAt, now)
	}
}

func TestRecent(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range 5 {
		_ = tr.RecordAttempt(ctx, attempt("r", "m1", models.OutcomeSuccess, 1, now.Add(time.Duration(i)*time.Second)))
	}

	got, err := tr.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(got))
	}
	if !got[0].CreatedAt.After(got[2].CreatedAt) {
		t.Error("expected newest first")
	}
}

func TestSummary(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = tr.RecordAttempt(ctx, attempt("r1", "m1", models.OutcomeRetryable, 100, now))
	_ = tr.RecordAttempt(ctx, attempt("r1", "m2", models.OutcomeSuccess, 200, now.Add(time.Second)))
	_ = tr.RecordAttempt(ctx, attempt("r2", "m1", models.OutcomeSuccess, 300, now.Add(2*time.Second)))
	_ = tr.RecordAttempt(ctx, attempt("old", "m3", models.OutcomeSuccess, 5, now.Add(-time.Hour)))

	summaries, err := tr.Summary(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 models, got %d", len(summaries))
	}

	m1 := summaries[0]
	if m1.Model != "m1" || m1.Attempts != 2 || m1.Successes != 1 || m1.Failures != 1 {
		t.Errorf("unexpected m1 summary: %+v", m1)
	}
	if m1.AvgLatencyMs != 200 {
		t.Errorf("expected avg latency 200, got %d", m1.AvgLatencyMs)
	}
	if !m1.LastSuccess.Equal(now.Add(2 * time.Second)) {
		t.Errorf("last success = %v", m1.LastSuccess)
	}

	all, err := tr.Summary(ctx, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 models without a lower bound, got %d", len(all))
	}
}

func TestSummaryNeverSucceeded(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_ = tr.RecordAttempt(ctx, attempt("r", "m1", models.OutcomeNonRetryable, 5, time.Time{}))

	summaries, err := tr.Summary(ctx, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || !summaries[0].LastSuccess.IsZero() || summaries[0].Failures != 1 {
		t.Errorf("unexpected summary: %+v", summaries)
	}
}

func TestPrune(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = tr.RecordAttempt(ctx, attempt("a", "m1", models.OutcomeSuccess, 1, now.Add(-48*time.Hour)))
	_ = tr.RecordAttempt(ctx, attempt("b", "m1", models.OutcomeSuccess, 1, now))

	n, err := tr.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	left, _ := tr.Recent(ctx, 10)
	if len(left) != 1 || left[0].RequestID != "b" {
		t.Errorf("unexpected remaining attempts: %+v", left)
	}
}
