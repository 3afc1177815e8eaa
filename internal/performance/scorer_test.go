package performance_test

import (
	"testing"
	"time"

	"reelline/internal/domain"
	"reelline/internal/lifecycle"
	"reelline/internal/performance"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newScorer() performance.Scorer {
	return performance.Scorer{Ladder: performance.DefaultLadder(), Evaluator: lifecycle.Evaluator{DefaultAllowedMinutes: 300}}
}

func TestScoreScenarioHealthyEditor(t *testing.T) {
	stat := &domain.EditorStat{EditorID: "ed-1", TotalDelivered: 10, TotalOnTime: 9, XP: 260}
	p := newScorer().Score("ed-1", stat, nil, now)
	if p.OnTimeRate != 90 {
		t.Fatalf("expected on-time 90, got %d", p.OnTimeRate)
	}
	if p.Status != performance.StatusActive {
		t.Fatalf("expected active, got %s", p.Status)
	}
	if p.Level != 3 || p.Rank != performance.RankSilver {
		t.Fatalf("unexpected level/rank %d/%s", p.Level, p.Rank)
	}
}

func TestScoreScenarioLowOnTimeIsAtRisk(t *testing.T) {
	stat := &domain.EditorStat{EditorID: "ed-2", TotalDelivered: 4, TotalOnTime: 2}
	p := newScorer().Score("ed-2", stat, nil, now)
	if p.OnTimeRate != 50 || p.Status != performance.StatusAtRisk {
		t.Fatalf("expected at_risk at 50%%, got %s at %d", p.Status, p.OnTimeRate)
	}
}

func TestStatusPrecedence(t *testing.T) {
	started := now.Add(-10 * time.Hour)
	lateVideo := domain.Video{ID: "v1", Status: "active", StartedAt: &started, AllowedDurationMinutes: 60}
	cases := []struct {
		name   string
		stat   domain.EditorStat
		videos []domain.Video
		want   performance.Status
	}{
		{"streak of three", domain.EditorStat{TotalDelivered: 10, TotalOnTime: 10, ConsecutiveLate: 3}, nil, performance.StatusAtRisk},
		{"one late in a row", domain.EditorStat{TotalDelivered: 10, TotalOnTime: 10, ConsecutiveLate: 1}, nil, performance.StatusWarning},
		{"currently late video", domain.EditorStat{TotalDelivered: 10, TotalOnTime: 10}, []domain.Video{lateVideo}, performance.StatusWarning},
		{"low rate beats late video", domain.EditorStat{TotalDelivered: 10, TotalOnTime: 7}, []domain.Video{lateVideo}, performance.StatusAtRisk},
		{"clean", domain.EditorStat{TotalDelivered: 10, TotalOnTime: 8}, nil, performance.StatusActive},
	}
	for _, tc := range cases {
		stat := tc.stat
		if got := newScorer().Score("ed", &stat, tc.videos, now).Status; got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestMissingStatDefaults(t *testing.T) {
	p := newScorer().Score("fresh", nil, nil, now)
	if p.OnTimeRate != 100 || p.AvgQuality != 5 || p.Level != 1 || p.Rank != performance.RankBronze {
		t.Fatalf("unexpected defaults %+v", p)
	}
	if p.Status != performance.StatusActive || p.HasHistory {
		t.Fatalf("fresh editor should be active without history: %+v", p)
	}
}

func TestVideoCounters(t *testing.T) {
	started := now.Add(-time.Hour)
	monthStart := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	lastMonth := time.Date(2026, 9, 30, 23, 59, 0, 0, time.UTC)
	videos := []domain.Video{
		{ID: "a", Status: "active", StartedAt: &started, AllowedDurationMinutes: 300},
		{ID: "b", Status: "review_client"},
		{ID: "c", Status: "completed", CompletedAt: &monthStart, Validated: true},
		{ID: "d", Status: "completed", CompletedAt: &lastMonth},
		{ID: "e", Status: "cancelled"},
		{ID: "f", Status: "new"},
	}
	p := newScorer().Score("ed", &domain.EditorStat{TotalDelivered: 2, TotalOnTime: 2}, videos, now)
	if p.ActiveVideos != 3 {
		t.Fatalf("expected 3 active videos, got %d", p.ActiveVideos)
	}
	if p.VideosThisMonth != 1 {
		t.Fatalf("expected 1 video this month, got %d", p.VideosThisMonth)
	}
	if p.ValidatedVideos != 1 || p.LateVideos != 0 {
		t.Fatalf("unexpected counters %+v", p)
	}
}

func TestOnTimeRateBounds(t *testing.T) {
	for delivered := 0; delivered <= 12; delivered++ {
		for onTime := -1; onTime <= delivered+2; onTime++ {
			r := performance.OnTimeRate(delivered, onTime)
			if r < 0 || r > 100 {
				t.Fatalf("rate %d out of bounds for %d/%d", r, onTime, delivered)
			}
			if delivered == 0 && r != 100 {
				t.Fatalf("expected 100 with no deliveries, got %d", r)
			}
		}
	}
}

func TestQualityIgnoredWithoutDeliveries(t *testing.T) {
	p := newScorer().Score("ed", &domain.EditorStat{AvgQuality: 2.5}, nil, now)
	if p.AvgQuality != 5 {
		t.Fatalf("expected default quality, got %v", p.AvgQuality)
	}
	p = newScorer().Score("ed", &domain.EditorStat{TotalDelivered: 3, TotalOnTime: 3, AvgQuality: 4.2}, nil, now)
	if p.AvgQuality != 4.2 {
		t.Fatalf("expected recorded quality, got %v", p.AvgQuality)
	}
}
