package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reelline/internal/domain"
	"reelline/internal/events"
	"reelline/internal/lifecycle"
	"reelline/internal/repo"
)

var ErrUnknownStatus = errors.New("unknown video status")

type TransitionOptions struct {
	VideoID string
	Status  string
	ActorID string
	Force   bool
	// Validate marks a completed video as accepted by the client.
	Validate bool
}

// TransitionVideo applies a manual status change. Entering active stamps
// started_at, so a video coming back from revision gets a fresh time budget.
func (e Engine) TransitionVideo(ctx context.Context, opts TransitionOptions) (domain.Video, error) {
	if !lifecycle.Valid(opts.Status) {
		return domain.Video{}, fmt.Errorf("%w: %q", ErrUnknownStatus, opts.Status)
	}
	to := lifecycle.Normalize(opts.Status)
	now := e.now()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Video{}, err
	}
	defer tx.Rollback()

	v, err := e.Repo.GetVideoTx(ctx, tx, opts.VideoID)
	if err != nil {
		return domain.Video{}, err
	}
	from := lifecycle.Normalize(v.Status)
	if err := lifecycle.CheckTransition(from, to, opts.Force); err != nil {
		return domain.Video{}, err
	}

	switch to {
	case lifecycle.StatusActive:
		if from != lifecycle.StatusActive {
			started := now
			v.StartedAt = &started
		}
	case lifecycle.StatusRevisionRequested:
		if from != lifecycle.StatusRevisionRequested {
			v.RevisionCount++
		}
	case lifecycle.StatusCompleted:
		if v.CompletedAt == nil {
			done := now
			v.CompletedAt = &done
		}
		if opts.Validate {
			v.Validated = true
		}
	}
	if !to.Terminal() {
		v.CompletedAt = nil
		v.Validated = false
	}
	v.Status = string(to)
	v.UpdatedAt = now
	if err := e.Repo.UpdateVideo(ctx, tx, v); err != nil {
		return domain.Video{}, err
	}

	actor := strings.TrimSpace(opts.ActorID)
	if actor == "" {
		actor = SystemActor
	}
	payload := events.Payload{"from": string(from), "to": string(to)}
	if opts.Force {
		payload["force"] = true
	}
	if _, err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.TypeVideoUpdated,
		ProjectID:  v.ProjectID,
		EntityKind: events.Videos,
		EntityID:   v.ID,
		ActorID:    actor,
		Payload:    payload,
	}); err != nil {
		return domain.Video{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Video{}, err
	}
	return v, nil
}

// VideoState is the stored record of a video next to its derived evaluation.
type VideoState struct {
	Video      domain.Video         `json:"video"`
	Evaluation lifecycle.Evaluation `json:"evaluation"`
}

func (e Engine) VideoState(ctx context.Context, id string) (VideoState, error) {
	v, err := e.Repo.GetVideo(ctx, id)
	if err != nil {
		return VideoState{}, err
	}
	return VideoState{Video: v, Evaluation: e.Evaluator().Evaluate(v, e.now())}, nil
}

// IsNotFound reports whether err means a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
