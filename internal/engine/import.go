package engine

import (
	"context"
	"sort"

	"reelline/internal/events"
	"reelline/internal/repo"
)

// Import writes d in one transaction and logs one records.imported event per
// touched collection.
func (e Engine) Import(ctx context.Context, d repo.Dataset, actorID string) (map[string]int, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	counts, err := e.Repo.ImportTx(ctx, tx, d)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := e.Events.Append(ctx, tx, events.Entry{
			Type:       events.TypeRecordsImported,
			EntityKind: name,
			ActorID:    actorID,
			Payload:    events.Payload{"count": counts[name]},
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.log().Info("records imported", "collections", len(names), "actor_id", actorID)
	return counts, nil
}
