package reellinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Reelline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no token is set; servers only honor
	// it with dev auth enabled.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Meta is common to every computed view.
type Meta struct {
	Period      string    `json:"period"`
	GeneratedAt time.Time `json:"generated_at"`
	Partial     bool      `json:"partial"`
	Unavailable []string  `json:"unavailable"`
}

type Global struct {
	Editors             int            `json:"editors"`
	Projects            int            `json:"projects"`
	Videos              int            `json:"videos"`
	AvgOnTimeRate       int            `json:"avg_on_time_rate"`
	AtRiskEditors       int            `json:"at_risk_editors"`
	WarningEditors      int            `json:"warning_editors"`
	Counts              map[string]int `json:"counts"`
	UnansweredQuestions int            `json:"unanswered_questions"`
	TotalContracted     string         `json:"total_contracted"`
	TotalCollected      string         `json:"total_collected"`
	TotalProfit         string         `json:"total_profit"`
}

type LateVideo struct {
	VideoID string    `json:"video_id"`
	DueAt   time.Time `json:"due_at"`
}

type Dashboard struct {
	Meta
	Global    Global      `json:"global"`
	LateCount int         `json:"late_count"`
	Late      []LateVideo `json:"late"`
	Finance   *struct {
		TotalContracted string `json:"total_contracted"`
		TotalCollected  string `json:"total_collected"`
		TotalCost       string `json:"total_cost"`
		TotalProfit     string `json:"total_profit"`
	} `json:"finance,omitempty"`
}

// ClientCost is one client's monthly cost line. Money fields are decimal
// strings with two places.
type ClientCost struct {
	ClientID        string `json:"client_id"`
	Name            string `json:"name"`
	Active          bool   `json:"active"`
	VideoCount      int    `json:"video_count"`
	DesignCount     int    `json:"design_count"`
	TotalCost       string `json:"total_cost"`
	TotalPaid       string `json:"total_paid"`
	SharedCharge    string `json:"shared_charge"`
	Profit          string `json:"profit"`
	Margin          int    `json:"margin"`
	Contract        string `json:"contract"`
	CollectedToDate string `json:"collected_to_date"`
	Balance         string `json:"balance"`
	Progress        int    `json:"progress"`
	Status          string `json:"status"`
}

type Finance struct {
	Meta
	ActiveClientCount int          `json:"active_client_count"`
	TotalExpenses     string       `json:"total_expenses"`
	TotalCost         string       `json:"total_cost"`
	TotalProfit       string       `json:"total_profit"`
	Clients           []ClientCost `json:"clients"`
}

type Video struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	RevisionCount int    `json:"revision_count"`
	Validated     bool   `json:"validated"`
}

type VideoState struct {
	Video      Video `json:"video"`
	Evaluation struct {
		Status    string    `json:"status"`
		IsLate    bool      `json:"is_late"`
		DueAt     time.Time `json:"due_at"`
		NewlyLate bool      `json:"newly_late"`
	} `json:"evaluation"`
}

type LateReport struct {
	Detected int      `json:"detected"`
	Marked   int      `json:"marked"`
	Notified int      `json:"notified"`
	Failed   int      `json:"failed"`
	Keys     []string `json:"keys"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Dashboard returns the current month's dashboard.
func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "v0/dashboard", nil, &resp)
	return resp, err
}

// Finance returns the finance view for a "YYYY-MM" period; empty means the
// current month.
func (c *Client) Finance(ctx context.Context, period string) (Finance, error) {
	endpoint := "v0/finance"
	if period != "" {
		endpoint += "?period=" + url.QueryEscape(period)
	}
	var resp Finance
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ClientFinance returns one client's cost line.
func (c *Client) ClientFinance(ctx context.Context, clientID, period string) (ClientCost, error) {
	endpoint := "v0/finance/clients/" + url.PathEscape(clientID)
	if period != "" {
		endpoint += "?period=" + url.QueryEscape(period)
	}
	var resp ClientCost
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Video returns a video with its derived status.
func (c *Client) Video(ctx context.Context, id string) (VideoState, error) {
	var resp VideoState
	err := c.do(ctx, http.MethodGet, "v0/videos/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Transition moves a video to status.
func (c *Client) Transition(ctx context.Context, id, status string, force, validate bool) (VideoState, error) {
	body := map[string]any{"status": status}
	if force {
		body["force"] = true
	}
	if validate {
		body["validate"] = true
	}
	var resp VideoState
	err := c.do(ctx, http.MethodPost, "v0/videos/"+url.PathEscape(id)+"/transition", body, &resp)
	return resp, err
}

// NotifyChange asks the server to recompute after an external write.
func (c *Client) NotifyChange(ctx context.Context, collection string) (bool, error) {
	var resp struct {
		Accepted bool `json:"accepted"`
	}
	err := c.do(ctx, http.MethodPost, "v0/changes", map[string]any{"collection": collection}, &resp)
	return resp.Accepted, err
}

// SweepLateness runs a lateness sweep on the server.
func (c *Client) SweepLateness(ctx context.Context) (LateReport, error) {
	var resp LateReport
	err := c.do(ctx, http.MethodPost, "v0/lateness/sweep", nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
