package migrate_test

import (
	"context"
	"testing"

	"reelline/internal/db"
	"reelline/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	if v, err := migrate.Version(ctx, conn); err != nil || v != 0 {
		t.Fatalf("expected fresh version 0, got %d / %v", v, err)
	}
	applied, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(applied) == 0 {
		t.Fatalf("expected migrations to run")
	}
	again, err := migrate.MigrateContext(ctx, conn)
	if err != nil || len(again) != 0 {
		t.Fatalf("second run should be a no-op, got %v / %v", again, err)
	}
	for _, table := range []string{"videos", "clients", "late_notices", "events"} {
		var n int
		if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil || n != 1 {
			t.Fatalf("table %s missing", table)
		}
	}
}
