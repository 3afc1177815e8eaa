package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"reelline/internal/config"
	"reelline/internal/db"
	"reelline/internal/domain"
	"reelline/internal/engine"
	"reelline/internal/migrate"
	"reelline/internal/notify"
)

const testSecret = "test-secret"

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), notify.Noop{}, nil)
	e.Now = func() time.Time { return now }
	e.Events.Now = e.Now
	seedAgency(t, e)

	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret, DevLogin: true}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func seedAgency(t *testing.T, e engine.Engine) {
	t.Helper()
	ctx := context.Background()
	r := e.Repo
	started := now.Add(-301 * time.Minute)
	end := now.AddDate(0, 3, 0)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(r.UpsertClient(ctx, nil, domain.Client{ID: "c1", Name: "Acme", Active: true, ContractTotal: decimal.NewFromInt(9000), ProjectEndDate: &end,
		Package: domain.ClientPackage{VideosPerMonth: 4, VideoRate: decimal.NewFromInt(100)}}))
	must(r.UpsertTeamMember(ctx, nil, domain.TeamMember{ID: "ed", Name: "Edie", Role: domain.RoleEditor, PayModel: domain.PayPerUnit}))
	must(r.InsertProject(ctx, nil, domain.Project{ID: "p1", ClientID: "c1", Title: "Launch", RequestedVideos: 2, CreatedAt: now, UpdatedAt: now}))
	ed := "ed"
	must(r.InsertVideo(ctx, nil, domain.Video{ID: "v1", ProjectID: "p1", Title: "Teaser", AssigneeID: &ed, Status: "active", StartedAt: &started, AllowedDurationMinutes: 300, CreatedAt: now, UpdatedAt: now}))
	must(r.InsertVideo(ctx, nil, domain.Video{ID: "v2", ProjectID: "p1", Title: "Cut", Status: "new", CreatedAt: now, UpdatedAt: now}))
	must(r.InsertDelivery(ctx, nil, domain.Delivery{ID: "d1", Kind: domain.DeliveryVideo, MemberID: "ed", ClientID: "c1", Count: 1, Amount: decimal.NewFromInt(100), DeliveredAt: now}))
}

func token(t *testing.T, actor string, roles, perms []string) map[string]string {
	t.Helper()
	tok, err := SignToken(testSecret, actor, roles, perms, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + tok}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, body := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, body)
	}
	res, body = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/dashboard", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, body)
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code != "unauthorized" {
		t.Fatalf("unexpected error envelope %s", body)
	}
	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/dashboard", nil, map[string]string{"Authorization": "Bearer junk"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
}

func TestDashboard(t *testing.T) {
	srv := newTestServer(t)
	res, body := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/dashboard", nil, token(t, "boss", []string{RoleAdmin}, nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status %d: %s", res.StatusCode, body)
	}
	var dash DashboardResponse
	if err := json.Unmarshal(body, &dash); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if dash.Period != "2026-10" || dash.Global.Videos != 2 || dash.LateCount != 1 || dash.Late[0].VideoID != "v1" {
		t.Fatalf("unexpected dashboard %+v", dash)
	}
	if dash.Finance == nil || dash.Finance.TotalContracted != "9000.00" {
		t.Fatalf("admin should see finance summary: %+v", dash.Finance)
	}

	_, body = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/dashboard", nil, token(t, "ed", []string{RoleEditor}, nil))
	dash = DashboardResponse{}
	_ = json.Unmarshal(body, &dash)
	if dash.Finance != nil {
		t.Fatalf("editor must not see finance")
	}
}

func TestFinanceRequiresPermission(t *testing.T) {
	srv := newTestServer(t)
	res, body := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/finance", nil, token(t, "ed", []string{RoleEditor}, nil))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, body)
	}
	res, body = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/finance", nil, token(t, "acct", nil, []string{PermFinanceRead}))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("finance status %d: %s", res.StatusCode, body)
	}
	var rep FinanceResponse
	if err := json.Unmarshal(body, &rep); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rep.Clients) != 1 || rep.Clients[0].VideoCost != "100.00" || rep.Clients[0].Contract != "9000.00" {
		t.Fatalf("unexpected report %+v", rep)
	}

	res, body = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/finance/clients/c1?period=2026-09", nil, token(t, "boss", []string{RoleAdmin}, nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("client status %d: %s", res.StatusCode, body)
	}
	var cc ClientCostResponse
	_ = json.Unmarshal(body, &cc)
	if cc.VideoCount != 0 || cc.VideoCost != "0.00" {
		t.Fatalf("september should have no deliveries: %+v", cc)
	}
	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/finance?period=2026-13", nil, token(t, "boss", []string{RoleAdmin}, nil))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad period, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/finance/clients/nope", nil, token(t, "boss", []string{RoleAdmin}, nil))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestVideoTransition(t *testing.T) {
	srv := newTestServer(t)
	editor := token(t, "ed", []string{RoleEditor}, nil)
	url := srv.URL + "/v0/videos/v1/transition"

	res, body := doJSON(t, srv.client, http.MethodPost, url, map[string]any{"status": "completed"}, editor)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, body)
	}
	res, body = doJSON(t, srv.client, http.MethodPost, url, map[string]any{"status": "review_admin"}, editor)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("transition status %d: %s", res.StatusCode, body)
	}
	var state engine.VideoState
	if err := json.Unmarshal(body, &state); err != nil || state.Video.Status != "review_admin" {
		t.Fatalf("unexpected state %s", body)
	}

	res, _ = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/videos/v2/transition", map[string]any{"status": "active"}, editor)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("editor must not move unassigned video, got %d", res.StatusCode)
	}
	admin := token(t, "boss", []string{RoleAdmin}, nil)
	res, _ = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/videos/v2/transition", map[string]any{"status": "active"}, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin transition status %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/videos/missing/transition", map[string]any{"status": "active"}, admin)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestLatenessSweepAndEvents(t *testing.T) {
	srv := newTestServer(t)
	admin := token(t, "boss", []string{RoleAdmin}, nil)
	res, body := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/lateness/sweep", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sweep status %d: %s", res.StatusCode, body)
	}
	var report engine.LateReport
	_ = json.Unmarshal(body, &report)
	if report.Marked != 1 || report.Notified != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	_, body = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/lateness/sweep", nil, admin)
	report = engine.LateReport{}
	_ = json.Unmarshal(body, &report)
	if report.Marked != 0 || report.Notified != 0 {
		t.Fatalf("second sweep should be a no-op: %+v", report)
	}

	res, body = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/events?limit=1", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, body)
	}
	var page paginatedEvents
	_ = json.Unmarshal(body, &page)
	if len(page.Items) != 1 || page.NextCursor == "" {
		t.Fatalf("expected one event and a cursor: %+v", page)
	}
	_, body = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/events?type=video.late", nil, admin)
	page = paginatedEvents{}
	_ = json.Unmarshal(body, &page)
	if len(page.Items) != 1 || page.Items[0].EntityID != "v1" || page.Items[0].Payload["key"] == nil {
		t.Fatalf("unexpected late events %+v", page)
	}

	res, _ = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/lateness/sweep", nil, token(t, "ed", []string{RoleEditor}, nil))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("editor must not trigger sweeps, got %d", res.StatusCode)
	}
}

func TestDevLogin(t *testing.T) {
	srv := newTestServer(t)
	res, body := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": "ed", "roles": []string{RoleEditor}}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, body)
	}
	var login DevLoginResponse
	_ = json.Unmarshal(body, &login)
	res, body = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/performance", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("performance status %d: %s", res.StatusCode, body)
	}
	var perf PerformanceResponse
	_ = json.Unmarshal(body, &perf)
	if len(perf.Items) != 1 || perf.Items[0].EditorID != "ed" {
		t.Fatalf("editor should see own performance only: %+v", perf.Items)
	}
}
