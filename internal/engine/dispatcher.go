package engine

import (
	"context"
	"sync"
	"time"

	"reelline/internal/events"
)

// ChangeEvent says a collection changed. Collection may be empty when the
// source does not know which one did.
type ChangeEvent struct {
	Collection string `json:"collection"`
	Source     string `json:"source,omitempty"`
}

// Dispatcher recomputes on change events and on a fixed interval, publishing
// each result to subscribers. Bursts of events within Coalesce trigger one
// recomputation.
type Dispatcher struct {
	Engine   Engine
	Interval time.Duration
	Coalesce time.Duration

	changes chan ChangeEvent

	// sweepMu serializes lateness write-backs within the process.
	sweepMu sync.Mutex

	mu      sync.RWMutex
	latest  *Result
	subs    map[int]chan Result
	nextSub int
}

func NewDispatcher(e Engine) *Dispatcher {
	cfg := e.cfg()
	return &Dispatcher{
		Engine:   e,
		Interval: cfg.LatenessInterval(),
		Coalesce: cfg.Coalesce(),
		changes:  make(chan ChangeEvent, 64),
		subs:     map[int]chan Result{},
	}
}

// Notify queues ev without blocking. A full queue already guarantees a
// pending recomputation, so dropping is safe.
func (d *Dispatcher) Notify(ev ChangeEvent) bool {
	select {
	case d.changes <- ev:
		return true
	default:
		return false
	}
}

// Subscribe returns a channel holding at most the newest unread result.
func (d *Dispatcher) Subscribe() (<-chan Result, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSub
	d.nextSub++
	ch := make(chan Result, 1)
	d.subs[id] = ch
	return ch, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if c, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(c)
		}
	}
}

func (d *Dispatcher) Latest() (Result, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.latest == nil {
		return Result{}, false
	}
	return *d.latest, true
}

// Recompute loads, computes and publishes. With applyLate set it also
// persists late transitions; the result is published even when that fails.
func (d *Dispatcher) Recompute(ctx context.Context, applyLate bool) (Result, error) {
	if applyLate {
		_, res, err := d.Sweep(ctx)
		return res, err
	}
	_, res := d.Engine.Snapshot(ctx)
	d.publish(res)
	return res, nil
}

// Sweep loads a fresh snapshot, applies late transitions and publishes the
// result. Concurrent callers run one at a time.
func (d *Dispatcher) Sweep(ctx context.Context) (LateReport, Result, error) {
	d.sweepMu.Lock()
	defer d.sweepMu.Unlock()
	snap, res := d.Engine.Snapshot(ctx)
	var report LateReport
	var err error
	if _, missing := snap.Unavailable[events.Videos]; !missing {
		report, err = d.Engine.ApplyLateTransitions(ctx, snap, res)
		if report.Detected > 0 || report.Failed > 0 {
			d.Engine.log().Info("lateness sweep", "detected", report.Detected, "marked", report.Marked,
				"notified", report.Notified, "failed", report.Failed)
		}
	}
	d.publish(res)
	return report, res, err
}

func (d *Dispatcher) publish(res Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latest = &res
	for _, ch := range d.subs {
		select {
		case <-ch:
		default:
		}
		ch <- res
	}
}

// Run recomputes once, then serves change events and the interval timer
// until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	log := d.Engine.log()
	if _, err := d.Recompute(ctx, true); err != nil {
		log.Warn("initial recompute", "error", err)
	}
	interval := d.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending <-chan time.Time
	dirty := map[string]bool{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.changes:
			dirty[ev.Collection] = true
			if pending == nil {
				pending = time.After(d.Coalesce)
			}
		case <-pending:
			pending = nil
			log.Debug("recompute on change", "collections", len(dirty))
			dirty = map[string]bool{}
			if _, err := d.Recompute(ctx, true); err != nil {
				log.Warn("recompute", "error", err)
			}
		case <-ticker.C:
			if _, err := d.Recompute(ctx, true); err != nil {
				log.Warn("scheduled recompute", "error", err)
			}
		}
	}
}
