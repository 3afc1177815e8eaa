package engine

import (
	"context"
	"sort"
	"time"

	"reelline/internal/domain"
	"reelline/internal/events"
	"reelline/internal/repo"
	"reelline/internal/views"
)

// Snapshot is one consistent-enough read of every collection. A collection
// that could not be fetched is empty and listed in Unavailable.
type Snapshot struct {
	Period      domain.Period
	Projects    []domain.Project
	Videos      []domain.Video
	Stats       []domain.EditorStat
	Clients     []domain.Client
	Team        []domain.TeamMember
	Deliveries  []domain.Delivery
	Expenses    []domain.Expense
	Payments    []domain.Payment
	Questions   []domain.Question
	Unavailable map[string]string
}

func (s Snapshot) Partial() bool { return len(s.Unavailable) > 0 }

func fetch[T any](ctx context.Context, e Engine, s *Snapshot, name string, fn func(context.Context) ([]T, error)) []T {
	ctx, cancel := context.WithTimeout(ctx, e.cfg().FetchTimeout())
	defer cancel()
	out, err := fn(ctx)
	if err != nil {
		e.log().Warn("collection unavailable", "collection", name, "error", err)
		if s.Unavailable == nil {
			s.Unavailable = map[string]string{}
		}
		s.Unavailable[name] = err.Error()
		return nil
	}
	return out
}

// Load reads every collection for period. Fetch failures never fail Load.
func (e Engine) Load(ctx context.Context, period domain.Period) Snapshot {
	s := Snapshot{Period: period}
	r := e.Repo
	s.Projects = fetch(ctx, e, &s, events.Projects, r.ListProjects)
	s.Videos = fetch(ctx, e, &s, events.Videos, func(ctx context.Context) ([]domain.Video, error) {
		return r.ListVideos(ctx, repo.VideoFilters{})
	})
	s.Stats = fetch(ctx, e, &s, events.EditorStats, r.ListEditorStats)
	s.Clients = fetch(ctx, e, &s, events.Clients, r.ListClients)
	s.Team = fetch(ctx, e, &s, events.Team, r.ListTeam)
	s.Deliveries = fetch(ctx, e, &s, events.Deliveries, func(ctx context.Context) ([]domain.Delivery, error) {
		return r.ListDeliveries(ctx, period)
	})
	s.Expenses = fetch(ctx, e, &s, events.Expenses, func(ctx context.Context) ([]domain.Expense, error) {
		return r.ListExpenses(ctx, period)
	})
	s.Payments = fetch(ctx, e, &s, events.Payments, r.ListPayments)
	s.Questions = fetch(ctx, e, &s, events.Questions, r.ListQuestions)
	return s
}

// Result is the published output of one recomputation.
type Result struct {
	views.Views
	Period      string   `json:"period"`
	Partial     bool     `json:"partial"`
	Unavailable []string `json:"unavailable"`
}

// NewlyLate lists videos whose stored label has not caught up with lateness.
func (r Result) NewlyLate() []string {
	var ids []string
	for _, ev := range r.Evaluations {
		if ev.NewlyLate {
			ids = append(ids, ev.VideoID)
		}
	}
	return ids
}

// Compute is pure: the same snapshot and instant give the same result.
func (e Engine) Compute(s Snapshot, now time.Time) Result {
	v := e.Builder().Build(views.Input{
		Now:        now,
		Period:     s.Period,
		Projects:   s.Projects,
		Videos:     s.Videos,
		Stats:      s.Stats,
		Clients:    s.Clients,
		Team:       s.Team,
		Deliveries: s.Deliveries,
		Expenses:   s.Expenses,
		Payments:   s.Payments,
		Questions:  s.Questions,
	})
	unavailable := make([]string, 0, len(s.Unavailable))
	for name := range s.Unavailable {
		unavailable = append(unavailable, name)
	}
	sort.Strings(unavailable)
	return Result{Views: v, Period: s.Period.Key(), Partial: s.Partial(), Unavailable: unavailable}
}

// Snapshot loads the current month and computes over it.
func (e Engine) Snapshot(ctx context.Context) (Snapshot, Result) {
	now := e.now()
	s := e.Load(ctx, domain.PeriodOf(now))
	return s, e.Compute(s, now)
}

// SnapshotFor computes over a specific month, evaluated at now.
func (e Engine) SnapshotFor(ctx context.Context, period domain.Period) (Snapshot, Result) {
	s := e.Load(ctx, period)
	return s, e.Compute(s, e.now())
}
