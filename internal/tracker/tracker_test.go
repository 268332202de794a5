package tracker_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"launchpath/internal/config"
	"launchpath/internal/db"
	"launchpath/internal/domain"
	"launchpath/internal/migrate"
	"launchpath/internal/repo"
	"launchpath/internal/taskgen"
	"launchpath/internal/tracker"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func seedTasks(t *testing.T, conn *sql.DB) []domain.RegistrationTask {
	t.Helper()
	gen := taskgen.New(config.Default(), 0)
	tasks, err := gen.Generate(context.Background(), "local", "idea-1", "EcoBox")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	r := repo.Repo{DB: conn}
	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := r.ReplaceTaskBatch(context.Background(), tx, "local", tasks); err != nil {
		t.Fatalf("store batch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return tasks
}

func TestToggleAndProgress(t *testing.T) {
	conn := newTestDB(t)
	tasks := seedTasks(t, conn)
	trk := tracker.New(conn)
	ctx := context.Background()

	stored, err := trk.Repo.ListTasks(ctx, "local")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := tracker.Progress(stored); got != 0 {
		t.Fatalf("fresh batch progress %d, want 0", got)
	}

	if _, err := trk.Toggle(ctx, "local", tasks[0].ID, true); err != nil {
		t.Fatalf("toggle first: %v", err)
	}
	stored, _ = trk.Repo.ListTasks(ctx, "local")
	if got := tracker.Progress(stored); got != 17 {
		t.Fatalf("1/6 progress %d, want 17", got)
	}

	if _, err := trk.Toggle(ctx, "local", tasks[1].ID, true); err != nil {
		t.Fatalf("toggle second: %v", err)
	}
	stored, _ = trk.Repo.ListTasks(ctx, "local")
	if got := tracker.Progress(stored); got != 33 {
		t.Fatalf("2/6 progress %d, want 33", got)
	}

	// untoggle goes back down
	if _, err := trk.Toggle(ctx, "local", tasks[1].ID, false); err != nil {
		t.Fatalf("untoggle: %v", err)
	}
	stored, _ = trk.Repo.ListTasks(ctx, "local")
	if got := tracker.Progress(stored); got != 17 {
		t.Fatalf("after untoggle progress %d, want 17", got)
	}
}

func TestToggleUnknownTask(t *testing.T) {
	conn := newTestDB(t)
	seedTasks(t, conn)
	trk := tracker.New(conn)

	_, err := trk.Toggle(context.Background(), "local", "no-such-task", true)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestToggleSameValueIsNoOp(t *testing.T) {
	conn := newTestDB(t)
	tasks := seedTasks(t, conn)
	trk := tracker.New(conn)
	ctx := context.Background()

	if _, err := trk.Toggle(ctx, "local", tasks[0].ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	before, err := trk.Repo.LatestEvents(ctx, 50, "local", "task.toggled")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if _, err := trk.Toggle(ctx, "local", tasks[0].ID, true); err != nil {
		t.Fatalf("repeat toggle: %v", err)
	}
	after, err := trk.Repo.LatestEvents(ctx, 50, "local", "task.toggled")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("no-op toggle appended an event: %d -> %d", len(before), len(after))
	}
}

func TestProgressEmpty(t *testing.T) {
	if got := tracker.Progress(nil); got != 0 {
		t.Fatalf("empty progress %d, want 0", got)
	}
}
