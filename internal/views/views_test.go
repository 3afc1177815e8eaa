package views_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"reelline/internal/domain"
	"reelline/internal/finance"
	"reelline/internal/lifecycle"
	"reelline/internal/performance"
	"reelline/internal/views"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newBuilder() views.Builder {
	ev := lifecycle.Evaluator{DefaultAllowedMinutes: 300}
	return views.Builder{
		Evaluator:       ev,
		Scorer:          performance.Scorer{Ladder: performance.DefaultLadder(), Evaluator: ev},
		Allocator:       finance.Allocator{DesignUnitRate: decimal.NewFromInt(20), Thresholds: finance.DefaultThresholds()},
		NominalCapacity: 4,
	}
}

func strp(s string) *string { return &s }

func TestBuildEmpty(t *testing.T) {
	v := newBuilder().Build(views.Input{Now: now, Period: domain.PeriodOf(now)})
	if len(v.Projects) != 0 || len(v.Performance) != 0 || len(v.Workload) != 0 {
		t.Fatalf("expected empty views, got %+v", v)
	}
	if v.Global.AvgOnTimeRate != 100 {
		t.Fatalf("expected neutral on-time average, got %d", v.Global.AvgOnTimeRate)
	}
}

func TestProjectSummaryAndWorkload(t *testing.T) {
	startedLate := now.Add(-8 * time.Hour)
	startedFresh := now.Add(-30 * time.Minute)
	done := now.Add(-2 * time.Hour)
	in := views.Input{
		Now:      now,
		Period:   domain.PeriodOf(now),
		Clients:  []domain.Client{{ID: "c1", Name: "Acme", Active: true}},
		Projects: []domain.Project{{ID: "p2", ClientID: "c1", Title: "Reels"}, {ID: "p1", ClientID: "c1", Title: "Launch", RequestedVideos: 4}},
		Team: []domain.TeamMember{
			{ID: "ed-a", Name: "Ana", Role: domain.RoleEditor},
			{ID: "ed-idle", Name: "Idle", Role: domain.RoleEditor},
		},
		Videos: []domain.Video{
			{ID: "v1", ProjectID: "p1", AssigneeID: strp("ed-a"), Status: "in_progress", StartedAt: &startedLate},
			{ID: "v2", ProjectID: "p1", AssigneeID: strp("ed-a"), Status: "active", StartedAt: &startedFresh},
			{ID: "v3", ProjectID: "p1", AssigneeID: strp("ed-b"), Status: "completed", CompletedAt: &done},
			{ID: "v4", ProjectID: "p1", Status: "in_review"},
			{ID: "v5", ProjectID: "p1", AssigneeID: strp("ed-b"), Status: "review_client"},
		},
		Questions: []domain.Question{{ID: "q1", Answered: false}, {ID: "q2", Answered: true}},
	}
	v := newBuilder().Build(in)

	if len(v.Projects) != 2 || v.Projects[0].ProjectID != "p1" {
		t.Fatalf("expected projects sorted by id, got %+v", v.Projects)
	}
	p := v.Projects[0]
	want := views.StatusCounts{Active: 1, Late: 1, InReview: 1, AtClient: 1, Completed: 1}
	if p.Counts != want {
		t.Fatalf("unexpected counts %+v", p.Counts)
	}
	if p.Progress != 25 || p.ClientName != "Acme" {
		t.Fatalf("unexpected summary %+v", p)
	}
	if len(p.Editors) != 2 || p.Editors[0].EditorID != "ed-a" || p.Editors[0].Assigned != 2 || p.Editors[1].Completed != 1 {
		t.Fatalf("unexpected editor breakdown %+v", p.Editors)
	}
	if v.Projects[1].Progress != 100 || len(v.Projects[1].Editors) != 0 {
		t.Fatalf("empty project should be zero-filled, got %+v", v.Projects[1])
	}

	if len(v.Workload) != 3 {
		t.Fatalf("expected three editors in workload, got %+v", v.Workload)
	}
	byID := map[string]views.WorkloadRow{}
	for _, row := range v.Workload {
		byID[row.EditorID] = row
	}
	if byID["ed-a"].Active != 2 || byID["ed-a"].LoadPercent != 50 {
		t.Fatalf("unexpected workload for ed-a: %+v", byID["ed-a"])
	}
	if byID["ed-idle"].Active != 0 || byID["ed-idle"].Name != "Idle" {
		t.Fatalf("idle editor should appear zero-filled: %+v", byID["ed-idle"])
	}

	perf, ok := v.EditorPerformance("ed-a")
	if !ok || perf.LateVideos != 1 || perf.Status != performance.StatusWarning {
		t.Fatalf("unexpected performance for ed-a: %+v", perf)
	}
	if v.Global.Counts.Late != 1 || v.Global.UnansweredQuestions != 1 || v.Global.WarningEditors != 1 {
		t.Fatalf("unexpected global stats %+v", v.Global)
	}
	ev, ok := v.Evaluation("v1")
	if !ok || !ev.NewlyLate {
		t.Fatalf("expected v1 newly late, got %+v", ev)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	started := now.Add(-time.Hour)
	in := views.Input{
		Now:    now,
		Period: domain.PeriodOf(now),
		Videos: []domain.Video{
			{ID: "b", ProjectID: "p", AssigneeID: strp("x"), Status: "active", StartedAt: &started},
			{ID: "a", ProjectID: "p", AssigneeID: strp("y"), Status: "new"},
		},
		Projects: []domain.Project{{ID: "p"}},
	}
	first := newBuilder().Build(in)
	in.Videos[0], in.Videos[1] = in.Videos[1], in.Videos[0]
	second := newBuilder().Build(in)
	if first.Evaluations[0].VideoID != second.Evaluations[0].VideoID || first.Workload[0].EditorID != second.Workload[0].EditorID {
		t.Fatalf("input order leaked into output")
	}
}
