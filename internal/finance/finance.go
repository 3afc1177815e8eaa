// Package finance allocates per-client production cost and pooled monthly
// expenses, and derives profit, margin and a payment health status.
package finance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"reelline/internal/domain"
)

type Status string

const (
	StatusOnTrack  Status = "on_track"
	StatusLate     Status = "late"
	StatusCritical Status = "critical"
)

var hundred = decimal.NewFromInt(100)

// Thresholds classify a client by unpaid share of the contract and days left
// before the project end date. A client is flagged when both limits are hit.
type Thresholds struct {
	LateBalanceRatio     float64
	LateDaysLeft         int
	CriticalBalanceRatio float64
	CriticalDaysLeft     int
}

func DefaultThresholds() Thresholds {
	return Thresholds{LateBalanceRatio: 0.25, LateDaysLeft: 15, CriticalBalanceRatio: 0.5, CriticalDaysLeft: 7}
}

type Allocator struct {
	DesignUnitRate decimal.Decimal
	Thresholds     Thresholds
}

type Input struct {
	Period     domain.Period
	Now        time.Time
	Clients    []domain.Client
	Team       []domain.TeamMember
	Deliveries []domain.Delivery
	Expenses   []domain.Expense
	Payments   []domain.Payment
}

type Contributor struct {
	MemberID string          `json:"member_id"`
	Name     string          `json:"name"`
	Role     string          `json:"role"`
	Videos   int             `json:"videos"`
	Designs  int             `json:"designs"`
	Earned   decimal.Decimal `json:"earned"`
}

type ClientCost struct {
	ClientID             string                    `json:"client_id"`
	Name                 string                    `json:"name"`
	Active               bool                      `json:"active"`
	VideoCount           int                       `json:"video_count"`
	VideosExpected       int                       `json:"videos_expected"`
	VideoRate            decimal.Decimal           `json:"video_rate"`
	VideoCost            decimal.Decimal           `json:"video_cost"`
	DesignCount          int                       `json:"design_count"`
	DesignsExpected      map[domain.DesignType]int `json:"designs_expected"`
	DesignCost           decimal.Decimal           `json:"design_cost"`
	CopywritingCost      decimal.Decimal           `json:"copywriting_cost"`
	DesignerRetainerCost decimal.Decimal           `json:"designer_retainer_cost"`
	TotalCost            decimal.Decimal           `json:"total_cost"`
	TotalPaid            decimal.Decimal           `json:"total_paid"`
	SharedCharge         decimal.Decimal           `json:"shared_charge"`
	Profit               decimal.Decimal           `json:"profit"`
	Margin               int                       `json:"margin"`
	Contract             decimal.Decimal           `json:"contract"`
	CollectedToDate      decimal.Decimal           `json:"collected_to_date"`
	Balance              decimal.Decimal           `json:"balance"`
	Progress             int                       `json:"progress"`
	Status               Status                    `json:"status"`
	Contributors         []Contributor             `json:"contributors"`
}

type Report struct {
	Period                string                     `json:"period"`
	ActiveClientCount     int                        `json:"active_client_count"`
	TotalExpenses         decimal.Decimal            `json:"total_expenses"`
	ExpensesByCategory    map[string]decimal.Decimal `json:"expenses_by_category"`
	SharedChargePerClient decimal.Decimal            `json:"shared_charge_per_client"`
	TotalContracted       decimal.Decimal            `json:"total_contracted"`
	TotalCollected        decimal.Decimal            `json:"total_collected"`
	TotalCost             decimal.Decimal            `json:"total_cost"`
	TotalProfit           decimal.Decimal            `json:"total_profit"`
	Clients               []ClientCost               `json:"clients"`
}

// Client returns the cost line for id.
func (r Report) Client(id string) (ClientCost, bool) {
	for _, c := range r.Clients {
		if c.ClientID == id {
			return c, true
		}
	}
	return ClientCost{}, false
}

// SharedCharge splits total evenly over active clients, rounded to cents.
// It is zero when there are no active clients.
func SharedCharge(total decimal.Decimal, activeClients int) decimal.Decimal {
	if activeClients <= 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(activeClients)), 2)
}

// Margin is round(profit/paid*100) with halves away from zero, or 0 when
// nothing was paid.
func Margin(profit, paid decimal.Decimal) int {
	if paid.IsZero() {
		return 0
	}
	return int(profit.Div(paid).Mul(hundred).Round(0).IntPart())
}

// Progress is delivered/expected as a rounded percentage; 100 when nothing is expected.
func Progress(delivered, expected int) int {
	if expected <= 0 {
		return 100
	}
	return int(decimal.NewFromInt(int64(delivered)).Mul(hundred).DivRound(decimal.NewFromInt(int64(expected)), 0).IntPart())
}

func (a Allocator) Allocate(in Input) Report {
	report := Report{
		Period:             in.Period.Key(),
		ExpensesByCategory: map[string]decimal.Decimal{},
		TotalExpenses:      decimal.Zero,
		TotalContracted:    decimal.Zero,
		TotalCollected:     decimal.Zero,
		TotalCost:          decimal.Zero,
		TotalProfit:        decimal.Zero,
	}
	for _, e := range in.Expenses {
		if e.Period != "" && e.Period != report.Period {
			continue
		}
		report.TotalExpenses = report.TotalExpenses.Add(e.Amount)
		report.ExpensesByCategory[e.Category] = report.ExpensesByCategory[e.Category].Add(e.Amount)
	}

	// The divisor is the set of clients that carry the charge, so the
	// charges always add back up to the expenses.
	active := 0
	for _, c := range in.Clients {
		if c.Active {
			active++
		}
	}
	report.ActiveClientCount = active
	report.SharedChargePerClient = SharedCharge(report.TotalExpenses, active)

	members := make(map[string]domain.TeamMember, len(in.Team))
	for _, m := range in.Team {
		members[m.ID] = m
	}
	shares := flatShares(in.Clients, in.Team)

	byClient := map[string]*ClientCost{}
	clients := make([]domain.Client, len(in.Clients))
	copy(clients, in.Clients)
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	for _, c := range clients {
		cc := newClientCost(c)
		if s, ok := shares[c.ID]; ok {
			cc.CopywritingCost = s.copywriting
			cc.DesignerRetainerCost = s.designer
		}
		if c.Active {
			cc.SharedCharge = report.SharedChargePerClient
			report.TotalContracted = report.TotalContracted.Add(cc.Contract)
		}
		byClient[c.ID] = &cc
	}

	contributors := map[string]map[string]*Contributor{}
	for _, d := range in.Deliveries {
		cc, ok := byClient[d.ClientID]
		if !ok || !in.Period.Contains(d.DeliveredAt) {
			continue
		}
		count := max(d.Count, 0)
		switch d.Kind {
		case domain.DeliveryVideo:
			cc.VideoCount += count
		case domain.DeliveryDesign:
			cc.DesignCount += count
		default:
			continue
		}
		if contributors[d.ClientID] == nil {
			contributors[d.ClientID] = map[string]*Contributor{}
		}
		ct := contributors[d.ClientID][d.MemberID]
		if ct == nil {
			m := members[d.MemberID]
			ct = &Contributor{MemberID: d.MemberID, Name: m.Name, Role: m.Role, Earned: decimal.Zero}
			contributors[d.ClientID][d.MemberID] = ct
		}
		if d.Kind == domain.DeliveryVideo {
			ct.Videos += count
		} else {
			ct.Designs += count
		}
		ct.Earned = ct.Earned.Add(d.Amount)
	}

	for _, p := range in.Payments {
		cc, ok := byClient[p.ClientID]
		if !ok {
			continue
		}
		if !p.PaidAt.After(in.Now) || in.Now.IsZero() {
			cc.CollectedToDate = cc.CollectedToDate.Add(p.Amount)
		}
		if in.Period.Contains(p.PaidAt) {
			cc.TotalPaid = cc.TotalPaid.Add(p.Amount)
			report.TotalCollected = report.TotalCollected.Add(p.Amount)
		}
	}

	for _, c := range clients {
		cc := byClient[c.ID]
		cc.VideoCost = cc.VideoRate.Mul(decimal.NewFromInt(int64(cc.VideoCount)))
		cc.DesignCost = a.DesignUnitRate.Mul(decimal.NewFromInt(int64(cc.DesignCount)))
		cc.TotalCost = cc.VideoCost.Add(cc.DesignCost).Add(cc.CopywritingCost).Add(cc.DesignerRetainerCost)
		cc.Profit = cc.TotalPaid.Sub(cc.TotalCost).Sub(cc.SharedCharge)
		cc.Margin = Margin(cc.Profit, cc.TotalPaid)
		cc.Progress = Progress(cc.VideoCount, cc.VideosExpected)
		cc.Balance = decimal.Max(cc.Contract.Sub(cc.CollectedToDate), decimal.Zero)
		cc.Status = a.classify(*cc, c.ProjectEndDate, in.Now)
		cc.Contributors = sortedContributors(contributors[c.ID])

		report.TotalCost = report.TotalCost.Add(cc.TotalCost)
		report.TotalProfit = report.TotalProfit.Add(cc.Profit)
		report.Clients = append(report.Clients, *cc)
	}
	if report.Clients == nil {
		report.Clients = []ClientCost{}
	}
	return report
}

func newClientCost(c domain.Client) ClientCost {
	contract := c.ContractTotal
	if !contract.IsPositive() {
		contract = c.Package.MonthlyPrice
	}
	expected := make(map[domain.DesignType]int, len(domain.DesignTypes))
	for _, t := range domain.DesignTypes {
		expected[t] = c.Package.DesignsExpected[t]
	}
	return ClientCost{
		ClientID:             c.ID,
		Name:                 c.Name,
		Active:               c.Active,
		VideosExpected:       c.Package.VideosPerMonth,
		VideoRate:            c.Package.VideoRate,
		DesignsExpected:      expected,
		VideoCost:            decimal.Zero,
		DesignCost:           decimal.Zero,
		CopywritingCost:      decimal.Zero,
		DesignerRetainerCost: decimal.Zero,
		TotalPaid:            decimal.Zero,
		SharedCharge:         decimal.Zero,
		Contract:             contract,
		CollectedToDate:      decimal.Zero,
	}
}

type flatShare struct {
	copywriting decimal.Decimal
	designer    decimal.Decimal
}

// flatShares divides each flat-rate member's monthly rate evenly across the
// distinct active clients whose package currently names them.
func flatShares(clients []domain.Client, team []domain.TeamMember) map[string]flatShare {
	out := map[string]flatShare{}
	for _, m := range team {
		if m.PayModel != domain.PayFlat || !m.MonthlyRate.IsPositive() {
			continue
		}
		type slot struct {
			clientID   string
			copywriter bool
		}
		var slots []slot
		seen := map[string]bool{}
		for _, c := range clients {
			if !c.Active || seen[c.ID] {
				continue
			}
			switch {
			case is(c.Package.CopywriterID, m.ID):
				slots = append(slots, slot{clientID: c.ID, copywriter: true})
				seen[c.ID] = true
			case is(c.Package.DesignerID, m.ID):
				slots = append(slots, slot{clientID: c.ID})
				seen[c.ID] = true
			}
		}
		if len(slots) == 0 {
			continue
		}
		share := m.MonthlyRate.DivRound(decimal.NewFromInt(int64(len(slots))), 2)
		for _, s := range slots {
			fs := out[s.clientID]
			if s.copywriter {
				fs.copywriting = fs.copywriting.Add(share)
			} else {
				fs.designer = fs.designer.Add(share)
			}
			out[s.clientID] = fs
		}
	}
	return out
}

func is(ref *string, id string) bool {
	return ref != nil && *ref == id
}

func sortedContributors(in map[string]*Contributor) []Contributor {
	out := make([]Contributor, 0, len(in))
	for _, c := range in {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out
}

// classify is total: every client lands in exactly one status.
func (a Allocator) classify(cc ClientCost, endDate *time.Time, now time.Time) Status {
	if !cc.Contract.IsPositive() {
		return StatusOnTrack
	}
	ratio := cc.Balance.Div(cc.Contract).InexactFloat64()
	daysLeft := -1
	if endDate != nil {
		daysLeft = int(endDate.Sub(now).Hours() / 24)
	}
	near := func(limit int) bool {
		return endDate != nil && daysLeft <= limit
	}
	t := a.Thresholds
	switch {
	case ratio >= t.CriticalBalanceRatio && near(t.CriticalDaysLeft):
		return StatusCritical
	case ratio >= t.LateBalanceRatio && near(t.LateDaysLeft):
		return StatusLate
	default:
		return StatusOnTrack
	}
}
