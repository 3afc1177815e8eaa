package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reelline/internal/config"
	"reelline/internal/domain"
	"reelline/internal/events"
	"reelline/internal/notify"
)

// pendingBatch bounds how many unsent notices one sweep retries.
const pendingBatch = 100

// claimLease is how long a delivery claim blocks other sweeps before it is
// considered abandoned.
const claimLease = 5 * time.Minute

// NoticeKey identifies one late transition of a video.
func NoticeKey(videoID string, dueAt time.Time) string {
	return videoID + ":" + dueAt.UTC().Format(time.RFC3339)
}

type LateReport struct {
	Detected int      `json:"detected"`
	Marked   int      `json:"marked"`
	Notified int      `json:"notified"`
	Failed   int      `json:"failed"`
	Keys     []string `json:"keys"`
}

// ApplyLateTransitions persists every newly late video in r and then delivers
// outstanding notices, including ones a previous sweep failed to send. The
// status write, the notice row and the event commit together, so a notice
// exists for a transition exactly when its status change does.
func (e Engine) ApplyLateTransitions(ctx context.Context, s Snapshot, r Result) (LateReport, error) {
	var report LateReport
	var errs []error
	now := e.now()
	videos := indexVideos(s.Videos)

	for _, ev := range r.Evaluations {
		if !ev.NewlyLate {
			continue
		}
		report.Detected++
		v := videos[ev.VideoID]
		marked, err := e.markLate(ctx, v, ev.DueAt, now)
		if err != nil {
			e.log().Error("late write-back failed", "video_id", ev.VideoID, "error", err)
			errs = append(errs, fmt.Errorf("mark %s late: %w", ev.VideoID, err))
			continue
		}
		if marked {
			report.Marked++
			e.log().Info("video marked late", "video_id", ev.VideoID, "due_at", ev.DueAt)
		}
	}

	if err := e.deliverPending(ctx, s, &report); err != nil {
		errs = append(errs, err)
	}
	return report, errors.Join(errs...)
}

func (e Engine) markLate(ctx context.Context, v domain.Video, dueAt, now time.Time) (bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	changed, err := e.Repo.MarkVideoLate(ctx, tx, v.ID, now)
	if err != nil || !changed {
		return false, err
	}
	key := NoticeKey(v.ID, dueAt)
	if _, err := e.Repo.InsertLateNotice(ctx, tx, domain.LateNotice{Key: key, VideoID: v.ID, DueAt: dueAt, DetectedAt: now}); err != nil {
		return false, err
	}
	if _, err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.TypeVideoLate,
		ProjectID:  v.ProjectID,
		EntityKind: events.Videos,
		EntityID:   v.ID,
		ActorID:    SystemActor,
		Payload:    events.Payload{"from": v.Status, "due_at": dueAt.UTC().Format(time.RFC3339), "key": key},
	}); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (e Engine) deliverPending(ctx context.Context, s Snapshot, report *LateReport) error {
	pending, err := e.Repo.PendingLateNotices(ctx, pendingBatch)
	if err != nil {
		return fmt.Errorf("list pending notices: %w", err)
	}
	lease := max(claimLease, 2*e.cfg().NotifyTimeout())
	lookup := newAlertLookup(s, e.cfg().Notifications.Admins)
	var errs []error
	for _, n := range pending {
		claimed, err := e.Repo.ClaimLateNotice(ctx, n.Key, e.now(), e.now().Add(-lease))
		if err != nil {
			errs = append(errs, fmt.Errorf("claim notice %s: %w", n.Key, err))
			continue
		}
		if !claimed {
			continue
		}
		if _, ok := lookup.videos[n.VideoID]; !ok {
			if v, err := e.Repo.GetVideo(ctx, n.VideoID); err == nil {
				lookup.videos[v.ID] = v
			}
		}
		alert := lookup.alert(n)
		report.Keys = append(report.Keys, n.Key)
		if err := e.Notifier.NotifyLate(ctx, alert); err != nil {
			report.Failed++
			e.log().Warn("late notification failed", "key", n.Key, "error", err)
			if markErr := e.Repo.MarkNoticeFailed(ctx, n.Key, err); markErr != nil {
				errs = append(errs, markErr)
			}
			errs = append(errs, fmt.Errorf("notify %s: %w", n.Key, err))
			continue
		}
		report.Notified++
		if err := e.Repo.MarkNoticeSent(ctx, n.Key, e.now()); err != nil {
			errs = append(errs, fmt.Errorf("record notice %s: %w", n.Key, err))
			continue
		}
		if err := e.recordNotified(ctx, alert); err != nil {
			e.log().Warn("record notification event", "key", n.Key, "error", err)
		}
	}
	return errors.Join(errs...)
}

func (e Engine) recordNotified(ctx context.Context, alert notify.LateAlert) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	recipients := make([]string, 0, len(alert.Recipients))
	for _, r := range alert.Recipients {
		recipients = append(recipients, r.ID)
	}
	if _, err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.TypeLateNotified,
		ProjectID:  alert.ProjectID,
		EntityKind: "late_notices",
		EntityID:   alert.Key,
		ActorID:    SystemActor,
		Payload:    events.Payload{"video_id": alert.VideoID, "recipients": recipients},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

type alertLookup struct {
	videos   map[string]domain.Video
	projects map[string]domain.Project
	clients  map[string]domain.Client
	team     map[string]domain.TeamMember
	admins   []notify.Recipient
}

func indexVideos(videos []domain.Video) map[string]domain.Video {
	m := make(map[string]domain.Video, len(videos))
	for _, v := range videos {
		m[v.ID] = v
	}
	return m
}

func newAlertLookup(s Snapshot, admins []config.Admin) alertLookup {
	l := alertLookup{
		videos:   indexVideos(s.Videos),
		projects: map[string]domain.Project{},
		clients:  map[string]domain.Client{},
		team:     map[string]domain.TeamMember{},
	}
	for _, p := range s.Projects {
		l.projects[p.ID] = p
	}
	for _, c := range s.Clients {
		l.clients[c.ID] = c
	}
	for _, m := range s.Team {
		l.team[m.ID] = m
	}
	for _, a := range admins {
		l.admins = append(l.admins, notify.Recipient{ID: a.ID, Name: a.Name, Email: a.Email, Role: "admin"})
	}
	return l
}

func (l alertLookup) alert(n domain.LateNotice) notify.LateAlert {
	a := notify.LateAlert{Key: n.Key, VideoID: n.VideoID, DueAt: n.DueAt, DetectedAt: n.DetectedAt}
	v, ok := l.videos[n.VideoID]
	if !ok {
		a.Recipients = append(a.Recipients, l.admins...)
		return a
	}
	a.VideoTitle = v.Title
	a.ProjectID = v.ProjectID
	if p, ok := l.projects[v.ProjectID]; ok {
		a.ProjectName = p.Title
		if c, ok := l.clients[p.ClientID]; ok {
			a.ClientName = c.Name
		}
	}
	if id := v.Assignee(); id != "" {
		a.AssigneeID = id
		name := id
		if m, ok := l.team[id]; ok && m.Name != "" {
			name = m.Name
		}
		a.AssigneeName = name
		a.Recipients = append(a.Recipients, notify.Recipient{ID: id, Name: name, Role: "assignee"})
	}
	seen := map[string]bool{a.AssigneeID: a.AssigneeID != ""}
	for _, r := range l.admins {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		a.Recipients = append(a.Recipients, r)
	}
	return a
}
