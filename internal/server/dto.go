package server

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"reelline/internal/domain"
	"reelline/internal/engine"
	"reelline/internal/finance"
	"reelline/internal/views"
)

// Request payloads

type TransitionRequest struct {
	Status   string `json:"status" enum:"new,active,late,revision_requested,review_admin,review_client,completed,cancelled,in_progress,in_review,canceled"`
	Force    bool   `json:"force,omitempty"`
	Validate bool   `json:"validate,omitempty"`
}

type ChangeRequest struct {
	Collection string `json:"collection,omitempty" enum:"projects,videos,editor_stats,clients,team,deliveries,expenses,payments,questions"`
}

type DevLoginRequest struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Responses. Money is rendered as decimal strings.

type DevLoginResponse struct {
	Token string `json:"token"`
}

type ChangeResponse struct {
	Accepted bool `json:"accepted"`
}

type resultMeta struct {
	Period      string    `json:"period" example:"2026-10"`
	GeneratedAt time.Time `json:"generated_at" format:"date-time"`
	Partial     bool      `json:"partial"`
	Unavailable []string  `json:"unavailable"`
}

type GlobalResponse struct {
	Editors             int                `json:"editors"`
	Projects            int                `json:"projects"`
	Videos              int                `json:"videos"`
	AvgOnTimeRate       int                `json:"avg_on_time_rate"`
	AtRiskEditors       int                `json:"at_risk_editors"`
	WarningEditors      int                `json:"warning_editors"`
	Counts              views.StatusCounts `json:"counts"`
	UnansweredQuestions int                `json:"unanswered_questions"`
	TotalContracted     string             `json:"total_contracted"`
	TotalCollected      string             `json:"total_collected"`
	TotalProfit         string             `json:"total_profit"`
}

type DashboardResponse struct {
	resultMeta
	Global    GlobalResponse          `json:"global"`
	Projects  []views.ProjectSummary  `json:"projects"`
	Workload  []views.WorkloadRow     `json:"workload"`
	LateCount int                     `json:"late_count"`
	Late      []LateVideoResponse     `json:"late"`
	Finance   *FinanceSummaryResponse `json:"finance,omitempty"`
}

type LateVideoResponse struct {
	VideoID string    `json:"video_id"`
	DueAt   time.Time `json:"due_at" format:"date-time"`
}

type FinanceSummaryResponse struct {
	TotalContracted string `json:"total_contracted"`
	TotalCollected  string `json:"total_collected"`
	TotalCost       string `json:"total_cost"`
	TotalProfit     string `json:"total_profit"`
}

type ProjectsResponse struct {
	resultMeta
	Items []views.ProjectSummary `json:"items"`
}

type PerformanceResponse struct {
	resultMeta
	Items []PerformanceItem `json:"items"`
}

type PerformanceItem struct {
	EditorID        string `json:"editor_id"`
	Level           int    `json:"level"`
	Rank            string `json:"rank"`
	XP              int    `json:"xp"`
	NextLevelXP     int    `json:"next_level_xp"`
	VideosThisMonth int    `json:"videos_this_month"`
	ValidatedVideos int    `json:"validated_videos"`
	LateVideos      int    `json:"late_videos"`
	OnTimeRate      int    `json:"on_time_rate"`
	ActiveVideos    int    `json:"active_videos"`
	Streak          int    `json:"streak"`
	ConsecutiveLate int    `json:"consecutive_late"`
	Status          string `json:"status" enum:"active,warning,at_risk"`
}

type WorkloadResponse struct {
	resultMeta
	Items []views.WorkloadRow `json:"items"`
}

type ContributorResponse struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Videos   int    `json:"videos"`
	Designs  int    `json:"designs"`
	Earned   string `json:"earned"`
}

type ClientCostResponse struct {
	ClientID             string                `json:"client_id"`
	Name                 string                `json:"name"`
	Active               bool                  `json:"active"`
	VideoCount           int                   `json:"video_count"`
	VideosExpected       int                   `json:"videos_expected"`
	VideoRate            string                `json:"video_rate"`
	VideoCost            string                `json:"video_cost"`
	DesignCount          int                   `json:"design_count"`
	DesignsExpected      map[string]int        `json:"designs_expected"`
	DesignCost           string                `json:"design_cost"`
	CopywritingCost      string                `json:"copywriting_cost"`
	DesignerRetainerCost string                `json:"designer_retainer_cost"`
	TotalCost            string                `json:"total_cost"`
	TotalPaid            string                `json:"total_paid"`
	SharedCharge         string                `json:"shared_charge"`
	Profit               string                `json:"profit"`
	Margin               int                   `json:"margin"`
	Contract             string                `json:"contract"`
	CollectedToDate      string                `json:"collected_to_date"`
	Balance              string                `json:"balance"`
	Progress             int                   `json:"progress"`
	Status               string                `json:"status" enum:"on_track,late,critical"`
	Contributors         []ContributorResponse `json:"contributors"`
}

type FinanceResponse struct {
	resultMeta
	ActiveClientCount     int                  `json:"active_client_count"`
	TotalExpenses         string               `json:"total_expenses"`
	ExpensesByCategory    map[string]string    `json:"expenses_by_category"`
	SharedChargePerClient string               `json:"shared_charge_per_client"`
	TotalContracted       string               `json:"total_contracted"`
	TotalCollected        string               `json:"total_collected"`
	TotalCost             string               `json:"total_cost"`
	TotalProfit           string               `json:"total_profit"`
	Clients               []ClientCostResponse `json:"clients"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func metaFor(r engine.Result) resultMeta {
	unavailable := r.Unavailable
	if unavailable == nil {
		unavailable = []string{}
	}
	return resultMeta{Period: r.Period, GeneratedAt: r.GeneratedAt, Partial: r.Partial, Unavailable: unavailable}
}

func globalResponse(g views.GlobalStats) GlobalResponse {
	return GlobalResponse{
		Editors:             g.Editors,
		Projects:            g.Projects,
		Videos:              g.Videos,
		AvgOnTimeRate:       g.AvgOnTimeRate,
		AtRiskEditors:       g.AtRiskEditors,
		WarningEditors:      g.WarningEditors,
		Counts:              g.Counts,
		UnansweredQuestions: g.UnansweredQuestions,
		TotalContracted:     money(g.TotalContracted),
		TotalCollected:      money(g.TotalCollected),
		TotalProfit:         money(g.TotalProfit),
	}
}

func dashboardResponse(r engine.Result, withFinance bool) DashboardResponse {
	res := DashboardResponse{
		resultMeta: metaFor(r),
		Global:     globalResponse(r.Global),
		Projects:   nonNil(r.Projects),
		Workload:   nonNil(r.Workload),
		Late:       []LateVideoResponse{},
	}
	for _, ev := range r.Evaluations {
		if ev.IsLate {
			res.Late = append(res.Late, LateVideoResponse{VideoID: ev.VideoID, DueAt: ev.DueAt})
		}
	}
	res.LateCount = len(res.Late)
	if withFinance {
		res.Finance = &FinanceSummaryResponse{
			TotalContracted: money(r.Finance.TotalContracted),
			TotalCollected:  money(r.Finance.TotalCollected),
			TotalCost:       money(r.Finance.TotalCost),
			TotalProfit:     money(r.Finance.TotalProfit),
		}
	}
	return res
}

func performanceResponse(r engine.Result) PerformanceResponse {
	res := PerformanceResponse{resultMeta: metaFor(r), Items: []PerformanceItem{}}
	for _, p := range r.Performance {
		res.Items = append(res.Items, PerformanceItem{
			EditorID:        p.EditorID,
			Level:           p.Level,
			Rank:            string(p.Rank),
			XP:              p.XP,
			NextLevelXP:     p.NextLevelXP,
			VideosThisMonth: p.VideosThisMonth,
			ValidatedVideos: p.ValidatedVideos,
			LateVideos:      p.LateVideos,
			OnTimeRate:      p.OnTimeRate,
			ActiveVideos:    p.ActiveVideos,
			Streak:          p.Streak,
			ConsecutiveLate: p.ConsecutiveLate,
			Status:          string(p.Status),
		})
	}
	return res
}

func clientCostResponse(c finance.ClientCost) ClientCostResponse {
	designs := make(map[string]int, len(c.DesignsExpected))
	for k, v := range c.DesignsExpected {
		designs[string(k)] = v
	}
	res := ClientCostResponse{
		ClientID:             c.ClientID,
		Name:                 c.Name,
		Active:               c.Active,
		VideoCount:           c.VideoCount,
		VideosExpected:       c.VideosExpected,
		VideoRate:            money(c.VideoRate),
		VideoCost:            money(c.VideoCost),
		DesignCount:          c.DesignCount,
		DesignsExpected:      designs,
		DesignCost:           money(c.DesignCost),
		CopywritingCost:      money(c.CopywritingCost),
		DesignerRetainerCost: money(c.DesignerRetainerCost),
		TotalCost:            money(c.TotalCost),
		TotalPaid:            money(c.TotalPaid),
		SharedCharge:         money(c.SharedCharge),
		Profit:               money(c.Profit),
		Margin:               c.Margin,
		Contract:             money(c.Contract),
		CollectedToDate:      money(c.CollectedToDate),
		Balance:              money(c.Balance),
		Progress:             c.Progress,
		Status:               string(c.Status),
		Contributors:         []ContributorResponse{},
	}
	for _, ct := range c.Contributors {
		res.Contributors = append(res.Contributors, ContributorResponse{
			MemberID: ct.MemberID, Name: ct.Name, Role: ct.Role,
			Videos: ct.Videos, Designs: ct.Designs, Earned: money(ct.Earned),
		})
	}
	return res
}

func financeResponse(r engine.Result) FinanceResponse {
	rep := r.Finance
	res := FinanceResponse{
		resultMeta:            metaFor(r),
		ActiveClientCount:     rep.ActiveClientCount,
		TotalExpenses:         money(rep.TotalExpenses),
		ExpensesByCategory:    map[string]string{},
		SharedChargePerClient: money(rep.SharedChargePerClient),
		TotalContracted:       money(rep.TotalContracted),
		TotalCollected:        money(rep.TotalCollected),
		TotalCost:             money(rep.TotalCost),
		TotalProfit:           money(rep.TotalProfit),
		Clients:               []ClientCostResponse{},
	}
	cats := make([]string, 0, len(rep.ExpensesByCategory))
	for k := range rep.ExpensesByCategory {
		cats = append(cats, k)
	}
	sort.Strings(cats)
	for _, k := range cats {
		res.ExpensesByCategory[k] = money(rep.ExpensesByCategory[k])
	}
	for _, c := range rep.Clients {
		res.Clients = append(res.Clients, clientCostResponse(c))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
