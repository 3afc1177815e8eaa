// Package performance turns an editor's delivery history into level, rank and
// a three-tier health status.
package performance

import (
	"math"
	"time"

	"reelline/internal/domain"
	"reelline/internal/lifecycle"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusWarning Status = "warning"
	StatusAtRisk  Status = "at_risk"
)

const (
	defaultOnTimeRate = 100
	defaultQuality    = 5.0
)

type Performance struct {
	EditorID        string  `json:"editor_id"`
	Level           int     `json:"level"`
	Rank            Rank    `json:"rank"`
	XP              int     `json:"xp"`
	NextLevelXP     int     `json:"next_level_xp"`
	VideosThisMonth int     `json:"videos_this_month"`
	ValidatedVideos int     `json:"validated_videos"`
	LateVideos      int     `json:"late_videos"`
	OnTimeRate      int     `json:"on_time_rate"`
	AvgQuality      float64 `json:"avg_quality"`
	ActiveVideos    int     `json:"active_videos"`
	Streak          int     `json:"streak"`
	ConsecutiveLate int     `json:"consecutive_late"`
	Delivered       int     `json:"delivered"`
	OnTime          int     `json:"on_time"`
	Status          Status  `json:"status" enum:"active,warning,at_risk"`
	HasHistory      bool    `json:"has_history"`
}

// Scorer holds the configuration for Score. Zero thresholds use 75 and 3.
type Scorer struct {
	Ladder           Ladder
	Evaluator        lifecycle.Evaluator
	AtRiskOnTimeRate int
	AtRiskLateStreak int
}

func (s Scorer) thresholds() (int, int) {
	rate, streak := s.AtRiskOnTimeRate, s.AtRiskLateStreak
	if rate <= 0 {
		rate = 75
	}
	if streak <= 0 {
		streak = 3
	}
	return rate, streak
}

// OnTimeRate is on_time/delivered as a rounded percentage in [0,100], or 100
// when nothing has been delivered yet.
func OnTimeRate(delivered, onTime int) int {
	if delivered <= 0 {
		return defaultOnTimeRate
	}
	rate := int(math.Round(float64(onTime) / float64(delivered) * 100))
	if rate < 0 {
		return 0
	}
	if rate > 100 {
		return 100
	}
	return rate
}

// Score computes the performance record for one editor. stat may be nil for
// editors without delivery history. videos must be the editor's current
// assignments.
func (s Scorer) Score(editorID string, stat *domain.EditorStat, videos []domain.Video, now time.Time) Performance {
	p := Performance{
		EditorID:   editorID,
		OnTimeRate: defaultOnTimeRate,
		AvgQuality: defaultQuality,
	}
	if stat != nil {
		p.HasHistory = true
		p.XP = max(stat.XP, 0)
		p.Delivered = stat.TotalDelivered
		p.OnTime = stat.TotalOnTime
		p.OnTimeRate = OnTimeRate(stat.TotalDelivered, stat.TotalOnTime)
		p.Streak = stat.DayStreak
		p.ConsecutiveLate = stat.ConsecutiveLate
		if stat.TotalDelivered > 0 && stat.AvgQuality > 0 {
			p.AvgQuality = stat.AvgQuality
		}
	}
	p.Level = s.Ladder.Level(p.XP)
	p.Rank = s.Ladder.Rank(p.Level)
	p.NextLevelXP = s.Ladder.NextLevelXP(p.Level)

	month := domain.PeriodOf(now)
	for _, v := range videos {
		ev := s.Evaluator.Evaluate(v, now)
		if v.Validated {
			p.ValidatedVideos++
		}
		if ev.IsLate {
			p.LateVideos++
		}
		if ev.Status.Open() && !v.Validated {
			p.ActiveVideos++
		}
		if ev.Status == lifecycle.StatusCompleted && v.CompletedAt != nil && month.Contains(*v.CompletedAt) {
			p.VideosThisMonth++
		}
	}
	p.Status = s.classify(p)
	return p
}

func (s Scorer) classify(p Performance) Status {
	rate, streak := s.thresholds()
	switch {
	case p.OnTimeRate < rate || p.ConsecutiveLate >= streak:
		return StatusAtRisk
	case p.LateVideos >= 1 || p.ConsecutiveLate >= 1:
		return StatusWarning
	default:
		return StatusActive
	}
}
