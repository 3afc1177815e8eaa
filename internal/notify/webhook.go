package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const EventVideoLate = "video.late"

// Webhook posts the alert as JSON. Each attempt gets a fresh delivery id; the
// idempotency key stays the same across retries.
type Webhook struct {
	URL    string
	Secret string
	Client *http.Client
}

type webhookBody struct {
	Event string    `json:"event"`
	Alert LateAlert `json:"alert"`
}

func (w *Webhook) NotifyLate(ctx context.Context, alert LateAlert) error {
	data, err := json.Marshal(webhookBody{Event: EventVideoLate, Alert: alert})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Reelline-Event", EventVideoLate)
	req.Header.Set("X-Reelline-Delivery", uuid.NewString())
	req.Header.Set("Idempotency-Key", alert.Key)
	if strings.TrimSpace(w.Secret) != "" {
		req.Header.Set("X-Reelline-Secret", w.Secret)
	}
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook to %s: %w", w.URL, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("webhook %s status %d: %s", w.URL, res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
