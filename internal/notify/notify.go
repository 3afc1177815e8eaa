// Package notify delivers late-video alerts. Workflow code depends only on
// the Notifier interface; New picks ntfy, webhooks, both, or nothing from
// configuration.
package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"reelline/internal/config"
)

const userAgent = "Reelline/1.0"

type Recipient struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

// LateAlert is sent once per detected late transition. Key is stable for the
// transition so receivers can drop duplicates.
type LateAlert struct {
	Key          string      `json:"key"`
	VideoID      string      `json:"video_id"`
	VideoTitle   string      `json:"video_title"`
	ProjectID    string      `json:"project_id"`
	ProjectName  string      `json:"project_name"`
	ClientName   string      `json:"client_name"`
	AssigneeID   string      `json:"assignee_id,omitempty"`
	AssigneeName string      `json:"assignee_name"`
	DueAt        time.Time   `json:"due_at"`
	DetectedAt   time.Time   `json:"detected_at"`
	Recipients   []Recipient `json:"recipients"`
}

type Notifier interface {
	NotifyLate(ctx context.Context, alert LateAlert) error
}

// New builds the notifier described by cfg.Notifications.
func New(cfg *config.Config) Notifier {
	if cfg == nil {
		return Noop{}
	}
	client := &http.Client{Timeout: cfg.NotifyTimeout()}
	var targets Fanout
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		targets = append(targets, &Ntfy{Endpoint: topic, Client: client})
	}
	for _, hook := range cfg.Notifications.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		targets = append(targets, &Webhook{URL: hook.URL, Secret: hook.Secret, Client: client})
	}
	switch len(targets) {
	case 0:
		return Noop{}
	case 1:
		return targets[0]
	}
	return targets
}

type Noop struct{}

func (Noop) NotifyLate(context.Context, LateAlert) error { return nil }

// Fanout sends to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) NotifyLate(ctx context.Context, alert LateAlert) error {
	var errs []error
	for _, n := range f {
		if err := n.NotifyLate(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, alert LateAlert) error

func (f Func) NotifyLate(ctx context.Context, alert LateAlert) error { return f(ctx, alert) }
