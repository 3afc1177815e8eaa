package lifecycle_test

import (
	"errors"
	"testing"
	"time"

	"reelline/internal/domain"
	"reelline/internal/lifecycle"
)

var t0 = time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)

func video(status string, started *time.Time, minutes int) domain.Video {
	return domain.Video{ID: "v1", ProjectID: "p1", Status: status, StartedAt: started, AllowedDurationMinutes: minutes}
}

func TestNormalize(t *testing.T) {
	cases := map[string]lifecycle.Status{
		"active":        lifecycle.StatusActive,
		"in_progress":   lifecycle.StatusActive,
		"In_Review":     lifecycle.StatusReviewAdmin,
		" canceled ":    lifecycle.StatusCancelled,
		"review_client": lifecycle.StatusReviewClient,
		"":              lifecycle.StatusNew,
		"archived":      lifecycle.StatusNew,
	}
	for raw, want := range cases {
		if got := lifecycle.Normalize(raw); got != want {
			t.Fatalf("Normalize(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestActiveVideoBecomesLateAfterBudget(t *testing.T) {
	ev := lifecycle.Evaluator{}
	v := video("active", &t0, 300)

	res := ev.Evaluate(v, t0.Add(301*time.Minute))
	if !res.IsLate || res.Status != lifecycle.StatusLate || !res.NewlyLate {
		t.Fatalf("expected newly late, got %+v", res)
	}
	if !res.DueAt.Equal(t0.Add(300 * time.Minute)) {
		t.Fatalf("unexpected due at %s", res.DueAt)
	}

	res = ev.Evaluate(v, t0.Add(300*time.Minute))
	if res.IsLate {
		t.Fatalf("exactly at the budget is not late")
	}
}

func TestLegacyInProgressIsTreatedAsActive(t *testing.T) {
	res := lifecycle.Evaluator{}.Evaluate(video("in_progress", &t0, 60), t0.Add(2*time.Hour))
	if !res.IsLate {
		t.Fatalf("expected legacy in_progress to be late")
	}
}

func TestNoStartNeverLate(t *testing.T) {
	deadline := t0.Add(-24 * time.Hour)
	v := video("active", nil, 10)
	v.Deadline = &deadline
	res := lifecycle.Evaluator{DefaultAllowedMinutes: 10}.Evaluate(v, t0)
	if res.IsLate || res.Status != lifecycle.StatusActive {
		t.Fatalf("video without start must not be late: %+v", res)
	}
}

func TestTerminalAndValidatedNeverLate(t *testing.T) {
	later := t0.Add(72 * time.Hour)
	for _, status := range []string{"completed", "cancelled", "canceled"} {
		res := lifecycle.Evaluator{}.Evaluate(video(status, &t0, 5), later)
		if res.IsLate {
			t.Fatalf("%s video reported late", status)
		}
	}
	v := video("active", &t0, 5)
	v.Validated = true
	if res := (lifecycle.Evaluator{}).Evaluate(v, later); res.IsLate {
		t.Fatalf("validated video reported late")
	}
	v = video("late", &t0, 5)
	v.Validated = true
	if res := (lifecycle.Evaluator{}).Evaluate(v, later); res.IsLate || res.Status != lifecycle.StatusCompleted {
		t.Fatalf("validated video with a late label should count as completed: %+v", res)
	}
}

func TestStoredLateIsRevalidated(t *testing.T) {
	ev := lifecycle.Evaluator{}
	res := ev.Evaluate(video("late", &t0, 60), t0.Add(2*time.Hour))
	if !res.IsLate || res.NewlyLate {
		t.Fatalf("already-late video must stay late without a new transition: %+v", res)
	}
	// budget extended after the flag was written
	res = ev.Evaluate(video("late", &t0, 600), t0.Add(2*time.Hour))
	if res.IsLate || res.Status != lifecycle.StatusActive {
		t.Fatalf("expected stale late flag to be dropped: %+v", res)
	}
}

func TestEvaluationIsIdempotent(t *testing.T) {
	ev := lifecycle.Evaluator{}
	v := video("active", &t0, 30)
	now := t0.Add(time.Hour)
	a, b := ev.Evaluate(v, now), ev.Evaluate(v, now)
	if a != b {
		t.Fatalf("evaluations differ: %+v vs %+v", a, b)
	}
}

func TestDefaultAllowedMinutes(t *testing.T) {
	v := video("active", &t0, 0)
	if res := (lifecycle.Evaluator{}).Evaluate(v, t0.Add(48*time.Hour)); res.IsLate {
		t.Fatalf("no budget configured, expected not late")
	}
	if res := (lifecycle.Evaluator{DefaultAllowedMinutes: 60}).Evaluate(v, t0.Add(61*time.Minute)); !res.IsLate {
		t.Fatalf("expected default budget to apply")
	}
}

func TestLateImpliesActiveAndPastDue(t *testing.T) {
	ev := lifecycle.Evaluator{DefaultAllowedMinutes: 30}
	starts := []*time.Time{nil, &t0}
	for _, raw := range []string{"new", "active", "late", "revision_requested", "review_admin", "review_client", "completed", "cancelled", "in_progress", "in_review", "bogus"} {
		for _, start := range starts {
			for _, minutes := range []int{0, 15, 90} {
				for _, offset := range []time.Duration{0, 20 * time.Minute, 2 * time.Hour} {
					v := video(raw, start, minutes)
					now := t0.Add(offset)
					res := ev.Evaluate(v, now)
					if !res.IsLate {
						continue
					}
					stored := lifecycle.Normalize(raw)
					if stored != lifecycle.StatusActive && stored != lifecycle.StatusLate {
						t.Fatalf("late reported for %s", raw)
					}
					due, ok := ev.DueAt(v)
					if !ok || !now.After(due) {
						t.Fatalf("late reported before due for %s", raw)
					}
				}
			}
		}
	}
}

func TestCheckTransition(t *testing.T) {
	ok := [][2]lifecycle.Status{
		{lifecycle.StatusNew, lifecycle.StatusActive},
		{lifecycle.StatusActive, lifecycle.StatusReviewAdmin},
		{lifecycle.StatusLate, lifecycle.StatusReviewAdmin},
		{lifecycle.StatusReviewAdmin, lifecycle.StatusReviewClient},
		{lifecycle.StatusReviewClient, lifecycle.StatusCompleted},
		{lifecycle.StatusReviewClient, lifecycle.StatusRevisionRequested},
		{lifecycle.StatusRevisionRequested, lifecycle.StatusActive},
		{lifecycle.StatusNew, lifecycle.StatusCancelled},
	}
	for _, tr := range ok {
		if err := lifecycle.CheckTransition(tr[0], tr[1], false); err != nil {
			t.Fatalf("expected %s -> %s allowed: %v", tr[0], tr[1], err)
		}
	}
	err := lifecycle.CheckTransition(lifecycle.StatusCompleted, lifecycle.StatusCancelled, false)
	var te lifecycle.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected transition error, got %v", err)
	}
	if err := lifecycle.CheckTransition(lifecycle.StatusNew, lifecycle.StatusCompleted, true); err != nil {
		t.Fatalf("force should bypass: %v", err)
	}
}
