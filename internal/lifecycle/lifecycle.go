// Package lifecycle normalizes raw video status labels and derives lateness.
//
// Everything here is pure: persisting a detected late transition is the
// engine's job, keyed by the DueAt reported in an Evaluation.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"reelline/internal/domain"
)

type Status string

const (
	StatusNew               Status = "new"
	StatusActive            Status = "active"
	StatusLate              Status = "late"
	StatusRevisionRequested Status = "revision_requested"
	StatusReviewAdmin       Status = "review_admin"
	StatusReviewClient      Status = "review_client"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
)

// Statuses lists the canonical set in lifecycle order.
var Statuses = []Status{
	StatusNew, StatusActive, StatusLate, StatusRevisionRequested,
	StatusReviewAdmin, StatusReviewClient, StatusCompleted, StatusCancelled,
}

var labels = map[string]Status{
	"new":                StatusNew,
	"active":             StatusActive,
	"late":               StatusLate,
	"revision_requested": StatusRevisionRequested,
	"review_admin":       StatusReviewAdmin,
	"review_client":      StatusReviewClient,
	"completed":          StatusCompleted,
	"cancelled":          StatusCancelled,
	// legacy
	"in_progress": StatusActive,
	"in_review":   StatusReviewAdmin,
	"canceled":    StatusCancelled,
}

// Normalize maps a stored label to the canonical set. Unknown labels are new.
func Normalize(raw string) Status {
	if s, ok := labels[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusNew
}

// Valid reports whether raw is already a canonical or legacy label.
func Valid(raw string) bool {
	_, ok := labels[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Open reports whether a video in this state still occupies its assignee.
func (s Status) Open() bool {
	return !s.Terminal()
}

// Evaluation is the derived view of one video at a point in time.
type Evaluation struct {
	VideoID string    `json:"video_id"`
	Status  Status    `json:"status"`
	IsLate  bool      `json:"is_late"`
	DueAt   time.Time `json:"due_at,omitempty" format:"date-time"`
	// NewlyLate is set when the stored label is not yet late but the video is.
	NewlyLate bool `json:"newly_late"`
}

// Evaluator derives status and lateness. DefaultAllowedMinutes applies to
// videos stored without a positive allowed duration; zero disables it.
type Evaluator struct {
	DefaultAllowedMinutes int
}

func (e Evaluator) allowed(v domain.Video) time.Duration {
	minutes := v.AllowedDurationMinutes
	if minutes <= 0 {
		minutes = e.DefaultAllowedMinutes
	}
	if minutes <= 0 {
		return 0
	}
	return time.Duration(minutes) * time.Minute
}

// DueAt returns started_at plus the allowed duration, if both are known.
func (e Evaluator) DueAt(v domain.Video) (time.Time, bool) {
	if v.StartedAt == nil {
		return time.Time{}, false
	}
	budget := e.allowed(v)
	if budget == 0 {
		return time.Time{}, false
	}
	return v.StartedAt.Add(budget), true
}

func (e Evaluator) Evaluate(v domain.Video, now time.Time) Evaluation {
	stored := Normalize(v.Status)
	ev := Evaluation{VideoID: v.ID, Status: stored}
	if stored.Terminal() {
		return ev
	}
	if v.Validated {
		// approved work is done; a stale late label must not count as late
		if stored == StatusLate {
			ev.Status = StatusCompleted
		}
		return ev
	}
	due, ok := e.DueAt(v)
	if ok {
		ev.DueAt = due
	}
	switch stored {
	case StatusActive:
		if ok && now.After(due) {
			ev.Status = StatusLate
			ev.IsLate = true
			ev.NewlyLate = true
		}
	case StatusLate:
		if ok && now.After(due) {
			ev.IsLate = true
		} else {
			ev.Status = StatusActive
		}
	}
	return ev
}

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid video status transition %s -> %s", e.From, e.To)
}

var transitions = map[Status][]Status{
	StatusNew:               {StatusActive},
	StatusActive:            {StatusLate, StatusRevisionRequested, StatusReviewAdmin},
	StatusLate:              {StatusReviewAdmin, StatusRevisionRequested},
	StatusRevisionRequested: {StatusActive, StatusReviewAdmin},
	StatusReviewAdmin:       {StatusReviewClient, StatusRevisionRequested},
	StatusReviewClient:      {StatusRevisionRequested, StatusCompleted},
}

// CheckTransition validates a manual status change. force skips the check.
func CheckTransition(from, to Status, force bool) error {
	if force || from == to {
		return nil
	}
	if to == StatusCancelled && !from.Terminal() {
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return TransitionError{From: from, To: to}
}
