// Package events appends rows to the store's change log. Appends share the
// caller's transaction so a change and its event commit together.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeVideoLate       = "video.late"
	TypeVideoUpdated    = "video.updated"
	TypeRecordsImported = "records.imported"
	TypeLateNotified    = "video.late_notified"
)

// Collection names double as event entity kinds.
const (
	Projects    = "projects"
	Videos      = "videos"
	EditorStats = "editor_stats"
	Clients     = "clients"
	Team        = "team"
	Deliveries  = "deliveries"
	Expenses    = "expenses"
	Payments    = "payments"
	Questions   = "questions"
)

// Collections lists every record collection the engine reads.
var Collections = []string{Projects, Videos, EditorStats, Clients, Team, Deliveries, Expenses, Payments, Questions}

func KnownCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

type Entry struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) (int64, error) {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if e.Payload == nil {
		e.Payload = Payload{}
	}
	if e.ActorID == "" {
		e.ActorID = "system"
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), e.Type, nullable(e.ProjectID), e.EntityKind, nullable(e.EntityID), e.ActorID, string(data))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
