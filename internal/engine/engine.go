// Package engine runs the pure evaluators over a store snapshot and owns the
// few write-backs they imply: persisting detected late transitions and
// manual status changes.
package engine

import (
	"database/sql"
	"log/slog"
	"time"

	"reelline/internal/config"
	"reelline/internal/events"
	"reelline/internal/finance"
	"reelline/internal/lifecycle"
	"reelline/internal/logging"
	"reelline/internal/notify"
	"reelline/internal/performance"
	"reelline/internal/repo"
	"reelline/internal/views"
)

// SystemActor is recorded on events the engine writes on its own.
const SystemActor = "reelline-engine"

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Notifier notify.Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, notifier notify.Notifier, logger *slog.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{Now: time.Now},
		Config:   cfg,
		Notifier: notifier,
		Logger:   logger,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() *slog.Logger {
	if e.Logger == nil {
		return logging.NewNop()
	}
	return e.Logger
}

func (e Engine) cfg() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

func (e Engine) Evaluator() lifecycle.Evaluator {
	return lifecycle.Evaluator{DefaultAllowedMinutes: e.cfg().Engine.DefaultAllowedMinutes}
}

// Builder assembles the view builder from configuration.
func (e Engine) Builder() views.Builder {
	cfg := e.cfg()
	st := cfg.Finance.Status
	ev := e.Evaluator()
	return views.Builder{
		Evaluator: ev,
		Scorer: performance.Scorer{
			Ladder:           cfg.Ladder(),
			Evaluator:        ev,
			AtRiskOnTimeRate: cfg.Engine.AtRiskOnTimeRate,
			AtRiskLateStreak: cfg.Engine.AtRiskLateStreak,
		},
		Allocator: finance.Allocator{
			DesignUnitRate: cfg.DesignUnitRate(),
			Thresholds: finance.Thresholds{
				LateBalanceRatio:     st.LateBalanceRatio,
				LateDaysLeft:         st.LateDaysLeft,
				CriticalBalanceRatio: st.CriticalBalanceRatio,
				CriticalDaysLeft:     st.CriticalDaysLeft,
			},
		},
		NominalCapacity: cfg.Engine.NominalCapacity,
	}
}
