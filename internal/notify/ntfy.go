package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Ntfy publishes a plain-text message to an ntfy topic URL.
type Ntfy struct {
	Endpoint string
	Client   *http.Client
}

func (n *Ntfy) NotifyLate(ctx context.Context, alert LateAlert) error {
	if n == nil || n.Client == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, strings.NewReader(lateMessage(alert)))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", "Reelline - Video Late")
	req.Header.Set("Tags", "reelline,video,late")
	req.Header.Set("Priority", "high")
	req.Header.Set("X-Idempotency-Key", alert.Key)

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func lateMessage(a LateAlert) string {
	assignee := a.AssigneeName
	if assignee == "" {
		assignee = "unassigned"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Video late: %s\n", a.VideoTitle)
	fmt.Fprintf(&b, "Project: %s", a.ProjectName)
	if a.ClientName != "" {
		fmt.Fprintf(&b, " (%s)", a.ClientName)
	}
	fmt.Fprintf(&b, "\nAssignee: %s", assignee)
	if !a.DueAt.IsZero() {
		fmt.Fprintf(&b, "\nDue: %s", a.DueAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return b.String()
}
