package finance_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"reelline/internal/domain"
	"reelline/internal/finance"
)

var (
	now    = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	period = domain.PeriodOf(now)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strp(s string) *string { return &s }

func newAllocator() finance.Allocator {
	return finance.Allocator{DesignUnitRate: dec("25"), Thresholds: finance.DefaultThresholds()}
}

func activeClient(id string) domain.Client {
	return domain.Client{ID: id, Name: "Client " + id, Active: true}
}

func TestSharedChargeScenario(t *testing.T) {
	in := finance.Input{
		Period:   period,
		Now:      now,
		Clients:  []domain.Client{activeClient("a"), activeClient("b"), activeClient("c")},
		Expenses: []domain.Expense{{ID: "e1", Category: domain.ExpenseFixed, Amount: dec("9000"), Period: period.Key()}},
	}
	r := newAllocator().Allocate(in)
	if !r.SharedChargePerClient.Equal(dec("3000")) {
		t.Fatalf("expected 3000 per client, got %s", r.SharedChargePerClient)
	}
	sum := decimal.Zero
	for _, c := range r.Clients {
		sum = sum.Add(c.SharedCharge)
	}
	if !sum.Equal(dec("9000")) {
		t.Fatalf("expected shared charges to sum to 9000, got %s", sum)
	}
}

func TestSharedChargeSumWithinRounding(t *testing.T) {
	totals := []string{"0", "0.01", "100", "1000", "9999.99", "12345.67"}
	for _, total := range totals {
		for n := 1; n <= 9; n++ {
			share := finance.SharedCharge(dec(total), n)
			diff := share.Mul(decimal.NewFromInt(int64(n))).Sub(dec(total)).Abs()
			tolerance := dec("0.01").Mul(decimal.NewFromInt(int64(n)))
			if diff.GreaterThan(tolerance) {
				t.Fatalf("total %s over %d clients drifts by %s", total, n, diff)
			}
		}
	}
}

func TestSharedChargeSkipsInactiveClients(t *testing.T) {
	in := finance.Input{
		Period:   period,
		Now:      now,
		Clients:  []domain.Client{activeClient("a"), activeClient("b"), {ID: "gone", Active: false}},
		Expenses: []domain.Expense{{Category: domain.ExpenseFixed, Amount: dec("9000"), Period: period.Key()}},
	}
	r := newAllocator().Allocate(in)
	if r.ActiveClientCount != 2 || !r.SharedChargePerClient.Equal(dec("4500")) {
		t.Fatalf("unexpected split %d / %s", r.ActiveClientCount, r.SharedChargePerClient)
	}
	sum := decimal.Zero
	for _, c := range r.Clients {
		sum = sum.Add(c.SharedCharge)
	}
	if !sum.Equal(r.TotalExpenses) {
		t.Fatalf("shared charges sum to %s, expenses are %s", sum, r.TotalExpenses)
	}
}

func TestZeroActiveClients(t *testing.T) {
	if !finance.SharedCharge(dec("5000"), 0).IsZero() {
		t.Fatalf("expected zero charge without active clients")
	}
	in := finance.Input{
		Period:   period,
		Now:      now,
		Clients:  []domain.Client{{ID: "dormant", Active: false}},
		Expenses: []domain.Expense{{Category: domain.ExpenseDaily, Amount: dec("700"), Period: period.Key()}},
	}
	r := newAllocator().Allocate(in)
	if r.ActiveClientCount != 0 || !r.SharedChargePerClient.IsZero() {
		t.Fatalf("unexpected report %+v", r)
	}
	if !r.Clients[0].SharedCharge.IsZero() {
		t.Fatalf("inactive client should carry no shared charge")
	}
}

func TestProfitAndMarginScenario(t *testing.T) {
	client := activeClient("acme")
	client.Package = domain.ClientPackage{ClientID: "acme", VideosPerMonth: 2, VideoRate: dec("8000")}
	in := finance.Input{
		Period:     period,
		Now:        now,
		Clients:    []domain.Client{client},
		Deliveries: []domain.Delivery{{ID: "d1", Kind: domain.DeliveryVideo, MemberID: "ed-1", ClientID: "acme", Count: 1, Amount: dec("8000"), DeliveredAt: now.Add(-time.Hour)}},
		Expenses:   []domain.Expense{{Category: domain.ExpenseAdvertising, Amount: dec("1000"), Period: period.Key()}},
		Payments:   []domain.Payment{{ID: "p1", ClientID: "acme", Amount: dec("20000"), PaidAt: now.Add(-24 * time.Hour)}},
	}
	r := newAllocator().Allocate(in)
	c, ok := r.Client("acme")
	if !ok {
		t.Fatalf("client missing from report")
	}
	if !c.TotalCost.Equal(dec("8000")) || !c.SharedCharge.Equal(dec("1000")) {
		t.Fatalf("unexpected cost %s / shared %s", c.TotalCost, c.SharedCharge)
	}
	if !c.Profit.Equal(dec("11000")) {
		t.Fatalf("expected profit 11000, got %s", c.Profit)
	}
	if c.Margin != 55 {
		t.Fatalf("expected margin 55, got %d", c.Margin)
	}
	if c.Progress != 50 {
		t.Fatalf("expected progress 50, got %d", c.Progress)
	}
	if len(c.Contributors) != 1 || c.Contributors[0].Videos != 1 || !c.Contributors[0].Earned.Equal(dec("8000")) {
		t.Fatalf("unexpected contributors %+v", c.Contributors)
	}
}

func TestMarginZeroWithoutPayments(t *testing.T) {
	if finance.Margin(dec("-500"), decimal.Zero) != 0 {
		t.Fatalf("expected margin 0 when nothing paid")
	}
	if finance.Margin(dec("1"), dec("3")) != 33 {
		t.Fatalf("expected rounded margin 33")
	}
	if finance.Margin(dec("-1"), dec("2")) != -50 {
		t.Fatalf("expected negative margin -50")
	}
	if finance.Margin(dec("-11"), dec("200")) != -6 || finance.Margin(dec("11"), dec("200")) != 6 {
		t.Fatalf("expected halves to round away from zero")
	}
}

func TestDesignCostIgnoresType(t *testing.T) {
	client := activeClient("a")
	in := finance.Input{
		Period:  period,
		Now:     now,
		Clients: []domain.Client{client},
		Deliveries: []domain.Delivery{
			{Kind: domain.DeliveryDesign, DesignType: domain.DesignLogo, MemberID: "ds", ClientID: "a", Count: 2, DeliveredAt: now},
			{Kind: domain.DeliveryDesign, DesignType: domain.DesignThumbnail, MemberID: "ds", ClientID: "a", Count: 3, DeliveredAt: now},
			{Kind: domain.DeliveryDesign, DesignType: domain.DesignPost, MemberID: "ds", ClientID: "a", Count: 9, DeliveredAt: now.AddDate(0, -1, 0)},
		},
	}
	c, _ := newAllocator().Allocate(in).Client("a")
	if c.DesignCount != 5 || !c.DesignCost.Equal(dec("125")) {
		t.Fatalf("expected 5 designs costing 125, got %d / %s", c.DesignCount, c.DesignCost)
	}
	if len(c.DesignsExpected) != len(domain.DesignTypes) {
		t.Fatalf("expected every design type zero-filled, got %v", c.DesignsExpected)
	}
	if c.Progress != 100 {
		t.Fatalf("expected progress 100 with no videos expected, got %d", c.Progress)
	}
}

func TestFlatRateSplitAcrossAssignedClients(t *testing.T) {
	a, b, c := activeClient("a"), activeClient("b"), activeClient("c")
	a.Package.CopywriterID = strp("cw")
	b.Package.CopywriterID = strp("cw")
	b.Package.DesignerID = strp("ds")
	c.Package.DesignerID = strp("ds")
	in := finance.Input{
		Period:  period,
		Now:     now,
		Clients: []domain.Client{a, b, c},
		Team: []domain.TeamMember{
			{ID: "cw", Role: domain.RoleCopywriter, PayModel: domain.PayFlat, MonthlyRate: dec("1000")},
			{ID: "ds", Role: domain.RoleDesigner, PayModel: domain.PayFlat, MonthlyRate: dec("900")},
			{ID: "ed", Role: domain.RoleEditor, PayModel: domain.PayPerUnit, MonthlyRate: dec("5000")},
		},
	}
	r := newAllocator().Allocate(in)
	want := map[string][2]string{
		"a": {"500", "0"},
		"b": {"500", "450"},
		"c": {"0", "450"},
	}
	for id, w := range want {
		cc, _ := r.Client(id)
		if !cc.CopywritingCost.Equal(dec(w[0])) || !cc.DesignerRetainerCost.Equal(dec(w[1])) {
			t.Fatalf("client %s: copywriting %s retainer %s", id, cc.CopywritingCost, cc.DesignerRetainerCost)
		}
	}
}

func TestStatusIsTotal(t *testing.T) {
	end := func(days int) *time.Time {
		t := now.AddDate(0, 0, days)
		return &t
	}
	cases := []struct {
		name     string
		contract string
		paid     string
		endDate  *time.Time
		want     finance.Status
	}{
		{"zero contract", "0", "0", end(1), finance.StatusOnTrack},
		{"no end date", "10000", "0", nil, finance.StatusOnTrack},
		{"fully paid near end", "10000", "10000", end(2), finance.StatusOnTrack},
		{"half unpaid close to end", "10000", "4000", end(3), finance.StatusCritical},
		{"third unpaid within two weeks", "9000", "6000", end(10), finance.StatusLate},
		{"mostly unpaid but far out", "10000", "0", end(90), finance.StatusOnTrack},
		{"past end date", "10000", "0", end(-5), finance.StatusCritical},
	}
	for _, tc := range cases {
		client := activeClient("x")
		client.ContractTotal = dec(tc.contract)
		client.ProjectEndDate = tc.endDate
		in := finance.Input{Period: period, Now: now, Clients: []domain.Client{client}}
		if tc.paid != "0" {
			in.Payments = []domain.Payment{{ClientID: "x", Amount: dec(tc.paid), PaidAt: now.AddDate(0, -2, 0)}}
		}
		c, _ := newAllocator().Allocate(in).Client("x")
		if c.Status != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, c.Status)
		}
	}
}

func TestEmptyInput(t *testing.T) {
	r := newAllocator().Allocate(finance.Input{Period: period, Now: now})
	if r.Clients == nil || len(r.Clients) != 0 {
		t.Fatalf("expected empty client list, got %v", r.Clients)
	}
	if !r.TotalExpenses.IsZero() || !r.SharedChargePerClient.IsZero() {
		t.Fatalf("expected zero totals")
	}
}
