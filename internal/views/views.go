// Package views joins lifecycle, performance and finance output into the
// summaries shown on dashboards. It adds no rules of its own.
package views

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"reelline/internal/domain"
	"reelline/internal/finance"
	"reelline/internal/lifecycle"
	"reelline/internal/performance"
)

type Builder struct {
	Evaluator       lifecycle.Evaluator
	Scorer          performance.Scorer
	Allocator       finance.Allocator
	NominalCapacity int
}

type Input struct {
	Now        time.Time
	Period     domain.Period
	Projects   []domain.Project
	Videos     []domain.Video
	Stats      []domain.EditorStat
	Clients    []domain.Client
	Team       []domain.TeamMember
	Deliveries []domain.Delivery
	Expenses   []domain.Expense
	Payments   []domain.Payment
	Questions  []domain.Question
}

type StatusCounts struct {
	New       int `json:"new"`
	Active    int `json:"active"`
	Late      int `json:"late"`
	Revision  int `json:"revision"`
	InReview  int `json:"in_review"`
	AtClient  int `json:"at_client"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

func (c *StatusCounts) add(s lifecycle.Status) {
	switch s {
	case lifecycle.StatusActive:
		c.Active++
	case lifecycle.StatusLate:
		c.Late++
	case lifecycle.StatusRevisionRequested:
		c.Revision++
	case lifecycle.StatusReviewAdmin:
		c.InReview++
	case lifecycle.StatusReviewClient:
		c.AtClient++
	case lifecycle.StatusCompleted:
		c.Completed++
	case lifecycle.StatusCancelled:
		c.Cancelled++
	default:
		c.New++
	}
}

type EditorBreakdown struct {
	EditorID  string `json:"editor_id"`
	Name      string `json:"name"`
	Assigned  int    `json:"assigned"`
	Completed int    `json:"completed"`
}

type ProjectSummary struct {
	ProjectID  string            `json:"project_id"`
	Title      string            `json:"title"`
	ClientID   string            `json:"client_id"`
	ClientName string            `json:"client_name"`
	Priority   string            `json:"priority"`
	Deadline   *time.Time        `json:"deadline,omitempty" format:"date-time"`
	Requested  int               `json:"requested"`
	Total      int               `json:"total"`
	Counts     StatusCounts      `json:"counts"`
	Progress   int               `json:"progress"`
	Editors    []EditorBreakdown `json:"editors"`
}

type WorkloadRow struct {
	EditorID    string `json:"editor_id"`
	Name        string `json:"name"`
	Active      int    `json:"active"`
	Capacity    int    `json:"capacity"`
	LoadPercent int    `json:"load_percent"`
	Overloaded  bool   `json:"overloaded"`
}

type GlobalStats struct {
	Editors             int             `json:"editors"`
	Projects            int             `json:"projects"`
	Videos              int             `json:"videos"`
	AvgOnTimeRate       int             `json:"avg_on_time_rate"`
	AtRiskEditors       int             `json:"at_risk_editors"`
	WarningEditors      int             `json:"warning_editors"`
	Counts              StatusCounts    `json:"counts"`
	UnansweredQuestions int             `json:"unanswered_questions"`
	TotalContracted     decimal.Decimal `json:"total_contracted"`
	TotalCollected      decimal.Decimal `json:"total_collected"`
	TotalProfit         decimal.Decimal `json:"total_profit"`
}

// Views is everything one recomputation produces.
type Views struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	Evaluations []lifecycle.Evaluation    `json:"evaluations"`
	Projects    []ProjectSummary          `json:"projects"`
	Performance []performance.Performance `json:"performance"`
	Workload    []WorkloadRow             `json:"workload"`
	Finance     finance.Report            `json:"finance"`
	Global      GlobalStats               `json:"global"`
}

// Evaluation returns the derived state of one video.
func (v Views) Evaluation(videoID string) (lifecycle.Evaluation, bool) {
	i := sort.Search(len(v.Evaluations), func(i int) bool { return v.Evaluations[i].VideoID >= videoID })
	if i < len(v.Evaluations) && v.Evaluations[i].VideoID == videoID {
		return v.Evaluations[i], true
	}
	return lifecycle.Evaluation{}, false
}

func (v Views) EditorPerformance(editorID string) (performance.Performance, bool) {
	for _, p := range v.Performance {
		if p.EditorID == editorID {
			return p, true
		}
	}
	return performance.Performance{}, false
}

func (b Builder) Build(in Input) Views {
	out := Views{GeneratedAt: in.Now}

	videos := sortedVideos(in.Videos)
	evals := make(map[string]lifecycle.Evaluation, len(videos))
	out.Evaluations = make([]lifecycle.Evaluation, 0, len(videos))
	for _, v := range videos {
		ev := b.Evaluator.Evaluate(v, in.Now)
		evals[v.ID] = ev
		out.Evaluations = append(out.Evaluations, ev)
	}

	names := map[string]string{}
	for _, m := range in.Team {
		names[m.ID] = m.Name
	}

	out.Projects = b.projectSummaries(in, videos, evals, names)
	out.Performance = b.performance(in, videos)
	out.Workload = b.workload(out.Performance, names)
	out.Finance = b.Allocator.Allocate(finance.Input{
		Period:     in.Period,
		Now:        in.Now,
		Clients:    in.Clients,
		Team:       in.Team,
		Deliveries: in.Deliveries,
		Expenses:   in.Expenses,
		Payments:   in.Payments,
	})
	out.Global = b.global(in, out)
	return out
}

func (b Builder) projectSummaries(in Input, videos []domain.Video, evals map[string]lifecycle.Evaluation, names map[string]string) []ProjectSummary {
	clients := map[string]string{}
	for _, c := range in.Clients {
		clients[c.ID] = c.Name
	}
	byProject := map[string][]domain.Video{}
	for _, v := range videos {
		byProject[v.ProjectID] = append(byProject[v.ProjectID], v)
	}

	projects := make([]domain.Project, len(in.Projects))
	copy(projects, in.Projects)
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })

	out := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		s := ProjectSummary{
			ProjectID:  p.ID,
			Title:      p.Title,
			ClientID:   p.ClientID,
			ClientName: clients[p.ClientID],
			Priority:   p.Priority,
			Deadline:   p.Deadline,
			Requested:  p.RequestedVideos,
			Editors:    []EditorBreakdown{},
		}
		perEditor := map[string]*EditorBreakdown{}
		for _, v := range byProject[p.ID] {
			st := evals[v.ID].Status
			s.Total++
			s.Counts.add(st)
			id := v.Assignee()
			if id == "" {
				continue
			}
			eb := perEditor[id]
			if eb == nil {
				eb = &EditorBreakdown{EditorID: id, Name: names[id]}
				perEditor[id] = eb
			}
			eb.Assigned++
			if st == lifecycle.StatusCompleted {
				eb.Completed++
			}
		}
		expected := s.Requested
		if expected <= 0 {
			expected = s.Total - s.Counts.Cancelled
		}
		s.Progress = finance.Progress(s.Counts.Completed, expected)
		for _, eb := range perEditor {
			s.Editors = append(s.Editors, *eb)
		}
		sort.Slice(s.Editors, func(i, j int) bool { return s.Editors[i].EditorID < s.Editors[j].EditorID })
		out = append(out, s)
	}
	return out
}

// editorIDs is every editor on the team plus anyone holding stats or videos.
func editorIDs(in Input, videos []domain.Video) []string {
	seen := map[string]bool{}
	for _, m := range in.Team {
		if m.Role == domain.RoleEditor {
			seen[m.ID] = true
		}
	}
	for _, s := range in.Stats {
		if s.EditorID != "" {
			seen[s.EditorID] = true
		}
	}
	for _, v := range videos {
		if id := v.Assignee(); id != "" {
			seen[id] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b Builder) performance(in Input, videos []domain.Video) []performance.Performance {
	stats := map[string]*domain.EditorStat{}
	for i := range in.Stats {
		stats[in.Stats[i].EditorID] = &in.Stats[i]
	}
	assigned := map[string][]domain.Video{}
	for _, v := range videos {
		if id := v.Assignee(); id != "" {
			assigned[id] = append(assigned[id], v)
		}
	}
	ids := editorIDs(in, videos)
	out := make([]performance.Performance, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.Scorer.Score(id, stats[id], assigned[id], in.Now))
	}
	return out
}

func (b Builder) workload(perf []performance.Performance, names map[string]string) []WorkloadRow {
	capacity := b.NominalCapacity
	out := make([]WorkloadRow, 0, len(perf))
	for _, p := range perf {
		row := WorkloadRow{EditorID: p.EditorID, Name: names[p.EditorID], Active: p.ActiveVideos, Capacity: capacity}
		if capacity > 0 {
			row.LoadPercent = int(math.Round(float64(p.ActiveVideos) / float64(capacity) * 100))
			row.Overloaded = p.ActiveVideos > capacity
		}
		out = append(out, row)
	}
	return out
}

func (b Builder) global(in Input, v Views) GlobalStats {
	g := GlobalStats{
		Editors:         len(v.Performance),
		Projects:        len(in.Projects),
		Videos:          len(v.Evaluations),
		AvgOnTimeRate:   100,
		TotalContracted: v.Finance.TotalContracted,
		TotalCollected:  v.Finance.TotalCollected,
		TotalProfit:     v.Finance.TotalProfit,
	}
	for _, ev := range v.Evaluations {
		g.Counts.add(ev.Status)
	}
	if len(v.Performance) > 0 {
		sum := 0
		for _, p := range v.Performance {
			sum += p.OnTimeRate
			switch p.Status {
			case performance.StatusAtRisk:
				g.AtRiskEditors++
			case performance.StatusWarning:
				g.WarningEditors++
			}
		}
		g.AvgOnTimeRate = int(math.Round(float64(sum) / float64(len(v.Performance))))
	}
	for _, q := range in.Questions {
		if !q.Answered {
			g.UnansweredQuestions++
		}
	}
	return g
}

func sortedVideos(in []domain.Video) []domain.Video {
	out := make([]domain.Video, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
