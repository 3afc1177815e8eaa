package app_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelline/internal/app"
	"reelline/internal/domain"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

const seedYAML = `
clients:
  - id: acme
    name: Acme
    contract_total: "9000"
    video_rate: "150"
    videos_per_month: 4
    designs: {thumbnail: 4, post: 2}
team:
  - {id: ed, name: Edie, role: editor}
  - {id: cw, name: Cole, role: copywriter, pay_model: flat, monthly_rate: "600"}
projects:
  - {id: p1, client_id: acme, title: Launch, requested_videos: 4}
videos:
  - {project_id: p1, title: Teaser, assignee_id: ed, status: in_progress, started_at: 2026-10-19T06:00:00Z, allowed_duration_minutes: 300}
expenses:
  - {category: fixed, amount: "900", period: "2026-10"}
payments:
  - {client_id: acme, amount: "3000", paid_at: 2026-10-02T09:00:00Z}
`

func TestSeedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := app.ReadSeed(path)
	if err != nil {
		t.Fatalf("read seed: %v", err)
	}
	d, err := f.Dataset(now)
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	if len(d.Clients) != 1 || d.Clients[0].Package.VideoRate.String() != "150" || !d.Clients[0].Active {
		t.Fatalf("unexpected clients %+v", d.Clients)
	}
	if d.Clients[0].Package.DesignsExpected[domain.DesignThumbnail] != 4 {
		t.Fatalf("designs not parsed: %+v", d.Clients[0].Package)
	}
	if d.Team[0].PayModel != domain.PayPerUnit || d.Team[1].MonthlyRate.String() != "600" {
		t.Fatalf("unexpected team %+v", d.Team)
	}
	if len(d.Videos) != 1 || d.Videos[0].ID == "" || d.Videos[0].StartedAt == nil || d.Videos[0].AssigneeID == nil {
		t.Fatalf("unexpected videos %+v", d.Videos)
	}
	if d.Expenses[0].Period != "2026-10" || d.Payments[0].ID == "" {
		t.Fatalf("unexpected ledger %+v / %+v", d.Expenses, d.Payments)
	}
}

func TestSeedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.toml")
	doc := `
[[clients]]
id = "acme"
name = "Acme"
video_rate = "120.50"

[[videos]]
id = "v1"
project_id = "p1"
title = "Teaser"
status = "review_admin"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := app.ReadSeed(path)
	if err != nil {
		t.Fatalf("read seed: %v", err)
	}
	d, err := f.Dataset(now)
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	if d.Clients[0].Package.VideoRate.String() != "120.5" || d.Videos[0].Status != "review_admin" {
		t.Fatalf("unexpected dataset %+v", d)
	}
}

func TestSeedRejectsBadRecords(t *testing.T) {
	cases := map[string]app.SeedFile{
		"amount":   {Payments: []app.SeedPayment{{ClientID: "c", Amount: "lots"}}},
		"status":   {Videos: []app.SeedVideo{{ProjectID: "p", Status: "sleeping"}}},
		"role":     {Team: []app.SeedMember{{ID: "x", Role: "intern"}}},
		"design":   {Deliveries: []app.SeedDelivery{{Kind: "design", DesignType: "poster"}}},
		"category": {Expenses: []app.SeedExpense{{Category: "misc", Amount: "1"}}},
		"period":   {Expenses: []app.SeedExpense{{Category: "fixed", Amount: "1", Period: "Oct"}}},
	}
	for name, f := range cases {
		if _, err := f.Dataset(now); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestOpenAndImport(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	a, err := app.Open(ctx, app.Options{Workspace: dir, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if a.Config.Engine.NominalCapacity != 5 {
		t.Fatalf("expected default config, got %+v", a.Config.Engine)
	}
	path := filepath.Join(dir, "seed.yml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := app.ReadSeed(path)
	if err != nil {
		t.Fatal(err)
	}
	d, err := f.Dataset(now)
	if err != nil {
		t.Fatal(err)
	}
	counts, err := a.Engine.Import(ctx, d, "tester")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if counts["videos"] != 1 || counts["clients"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	_, res := a.Engine.Snapshot(ctx)
	if res.Global.Videos != 1 || len(res.Finance.Clients) != 1 {
		t.Fatalf("imported data not visible: %+v", res.Global)
	}
	if _, err := app.Open(ctx, app.Options{Workspace: dir, ConfigPath: filepath.Join(dir, "missing.yml")}); err == nil || !strings.Contains(err.Error(), "missing.yml") {
		t.Fatalf("expected missing config error, got %v", err)
	}
}
