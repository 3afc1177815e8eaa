package performance

import (
	"errors"
	"fmt"
	"sort"
)

type Rank string

const (
	RankBronze   Rank = "bronze"
	RankSilver   Rank = "silver"
	RankGold     Rank = "gold"
	RankPlatinum Rank = "platinum"
	RankDiamond  Rank = "diamond"
)

// Band assigns Rank to every level >= MinLevel up to the next band.
type Band struct {
	Rank     Rank `json:"rank" yaml:"rank" toml:"rank"`
	MinLevel int  `json:"min_level" yaml:"min_level" toml:"min_level"`
}

// Ladder maps XP to levels and levels to ranks. LevelXP[i] is the XP needed
// to reach level i+1.
type Ladder struct {
	LevelXP []int
	Bands   []Band
}

// DefaultLadder is used when configuration does not supply one.
func DefaultLadder() Ladder {
	return Ladder{
		LevelXP: []int{0, 100, 250, 500, 1000, 2000, 3500, 5500, 8000, 12000},
		Bands: []Band{
			{Rank: RankBronze, MinLevel: 1},
			{Rank: RankSilver, MinLevel: 3},
			{Rank: RankGold, MinLevel: 5},
			{Rank: RankPlatinum, MinLevel: 7},
			{Rank: RankDiamond, MinLevel: 9},
		},
	}
}

func (l Ladder) Validate() error {
	if len(l.LevelXP) == 0 {
		return errors.New("ladder needs at least one level")
	}
	if l.LevelXP[0] != 0 {
		return errors.New("level 1 must start at 0 xp")
	}
	for i := 1; i < len(l.LevelXP); i++ {
		if l.LevelXP[i] <= l.LevelXP[i-1] {
			return fmt.Errorf("level %d xp %d must exceed level %d xp %d", i+1, l.LevelXP[i], i, l.LevelXP[i-1])
		}
	}
	if len(l.Bands) == 0 {
		return errors.New("ladder needs at least one rank band")
	}
	if l.Bands[0].MinLevel != 1 {
		return errors.New("first rank band must start at level 1")
	}
	seen := map[Rank]bool{}
	for i, b := range l.Bands {
		if b.Rank == "" {
			return fmt.Errorf("rank band %d has empty rank", i)
		}
		if seen[b.Rank] {
			return fmt.Errorf("rank %s appears twice", b.Rank)
		}
		seen[b.Rank] = true
		if i > 0 && b.MinLevel <= l.Bands[i-1].MinLevel {
			return fmt.Errorf("rank band %s must start above level %d", b.Rank, l.Bands[i-1].MinLevel)
		}
	}
	return nil
}

// Level returns the highest level whose threshold xp has reached.
func (l Ladder) Level(xp int) int {
	if len(l.LevelXP) == 0 {
		return 1
	}
	n := sort.Search(len(l.LevelXP), func(i int) bool { return l.LevelXP[i] > xp })
	if n < 1 {
		return 1
	}
	return n
}

func (l Ladder) Rank(level int) Rank {
	if len(l.Bands) == 0 {
		return RankBronze
	}
	r := l.Bands[0].Rank
	for _, b := range l.Bands {
		if level >= b.MinLevel {
			r = b.Rank
		}
	}
	return r
}

// Ordinal is the band index of r, or -1 when r is not on the ladder.
func (l Ladder) Ordinal(r Rank) int {
	for i, b := range l.Bands {
		if b.Rank == r {
			return i
		}
	}
	return -1
}

func (l Ladder) Lowest() Rank {
	return l.Rank(1)
}

// NextLevelXP is the xp needed for the level after level, or -1 at the top.
func (l Ladder) NextLevelXP(level int) int {
	if level < 1 || level >= len(l.LevelXP) {
		return -1
	}
	return l.LevelXP[level]
}
