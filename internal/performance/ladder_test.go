package performance_test

import (
	"testing"

	"reelline/internal/performance"
)

func TestLadderMonotonic(t *testing.T) {
	l := performance.DefaultLadder()
	if err := l.Validate(); err != nil {
		t.Fatalf("default ladder invalid: %v", err)
	}
	prevLevel, prevRank := 0, -1
	for xp := -50; xp <= 20000; xp += 7 {
		level := l.Level(xp)
		rank := l.Ordinal(l.Rank(level))
		if level < prevLevel {
			t.Fatalf("level decreased at xp %d", xp)
		}
		if rank < prevRank {
			t.Fatalf("rank decreased at xp %d", xp)
		}
		prevLevel, prevRank = level, rank
	}
}

func TestLadderBoundaries(t *testing.T) {
	l := performance.DefaultLadder()
	cases := map[int]int{0: 1, 99: 1, 100: 2, 249: 2, 250: 3, 12000: 10, 99999: 10}
	for xp, want := range cases {
		if got := l.Level(xp); got != want {
			t.Fatalf("Level(%d) = %d, want %d", xp, got, want)
		}
	}
	if l.Rank(10) != performance.RankDiamond || l.Rank(1) != performance.RankBronze {
		t.Fatalf("unexpected rank ends")
	}
	if l.NextLevelXP(10) != -1 || l.NextLevelXP(1) != 100 {
		t.Fatalf("unexpected next level xp")
	}
}

func TestLadderValidateRejectsOverlap(t *testing.T) {
	bad := []performance.Ladder{
		{LevelXP: []int{0, 100, 100}, Bands: []performance.Band{{Rank: "bronze", MinLevel: 1}}},
		{LevelXP: []int{10}, Bands: []performance.Band{{Rank: "bronze", MinLevel: 1}}},
		{LevelXP: []int{0}, Bands: []performance.Band{{Rank: "bronze", MinLevel: 1}, {Rank: "silver", MinLevel: 1}}},
		{LevelXP: []int{0}, Bands: []performance.Band{{Rank: "silver", MinLevel: 2}}},
		{LevelXP: []int{0}},
	}
	for i, l := range bad {
		if err := l.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
