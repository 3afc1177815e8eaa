package engine

import (
	"context"
	"time"

	"reelline/internal/events"
)

const (
	defaultWatchInterval = 2 * time.Second
	defaultWatchBatch    = 100
)

// Watcher turns rows appended to the event log into change events, so writes
// made by other processes sharing the database still trigger recomputation.
type Watcher struct {
	Engine   Engine
	Target   *Dispatcher
	Interval time.Duration
	// Ignore lists event types that never need a recompute.
	Ignore map[string]bool

	cursor int64
	primed bool
}

func NewWatcher(e Engine, d *Dispatcher) *Watcher {
	return &Watcher{
		Engine:   e,
		Target:   d,
		Interval: defaultWatchInterval,
		Ignore:   map[string]bool{events.TypeVideoLate: true, events.TypeLateNotified: true},
	}
}

func (w *Watcher) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		w.Poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll forwards events appended since the last call and reports how many
// change events it sent. The first call only positions the cursor.
func (w *Watcher) Poll(ctx context.Context) int {
	log := w.Engine.log()
	if !w.primed {
		cur, err := w.Engine.Repo.LatestEventID(ctx)
		if err != nil {
			log.Warn("watch: init cursor failed", "error", err)
			return 0
		}
		w.cursor = cur
		w.primed = true
		return 0
	}
	rows, err := w.Engine.Repo.EventsAfter(ctx, defaultWatchBatch, w.cursor)
	if err != nil {
		log.Warn("watch: fetch events failed", "error", err)
		return 0
	}
	sent := 0
	seen := map[string]bool{}
	for _, evt := range rows {
		w.cursor = evt.ID
		if w.Ignore[evt.Type] || !events.KnownCollection(evt.EntityKind) || seen[evt.EntityKind] {
			continue
		}
		seen[evt.EntityKind] = true
		if w.Target.Notify(ChangeEvent{Collection: evt.EntityKind, Source: "events"}) {
			sent++
		}
	}
	return sent
}
