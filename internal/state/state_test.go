package state

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/TheGojiOG/serverhost/internal/database"
)

func openDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(slog.New(slog.NewTextHandler(io.Discard, nil)), filepath.Join(t.TempDir(), "state.db"), database.Options{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func intPtr(v int) *int { return &v }

func TestSQLiteRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(openDB(t).DB)

	if _, err := repo.Get(ctx, "alpha"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.Create(ctx, ServerState{ID: "alpha", Status: StatusStopped}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, ServerState{ID: "alpha", Status: StatusStopped}); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}

	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	err := repo.Update(ctx, ServerState{
		ID:                 "alpha",
		Status:             StatusRunning,
		PID:                intPtr(4242),
		StartedAt:          &started,
		CrashCountInWindow: 2,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := repo.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusRunning || got.PID == nil || *got.PID != 4242 {
		t.Fatalf("unexpected state: %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Fatalf("unexpected started_at: %v", got.StartedAt)
	}
	if got.StoppedAt != nil {
		t.Fatalf("expected nil stopped_at, got %v", got.StoppedAt)
	}
	if got.CrashCountInWindow != 2 {
		t.Fatalf("expected crash count 2, got %d", got.CrashCountInWindow)
	}

	// Update upserts unknown servers.
	if err := repo.Update(ctx, ServerState{ID: "beta", Status: StatusCrashed}); err != nil {
		t.Fatalf("Update beta: %v", err)
	}

	states, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(states) != 2 || states[0].ID != "alpha" || states[1].ID != "beta" {
		t.Fatalf("unexpected list: %+v", states)
	}

	if err := repo.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, "alpha"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSQLiteRepositoryRejectsInvalidStatus(t *testing.T) {
	repo := NewSQLiteRepository(openDB(t).DB)
	if err := repo.Update(context.Background(), ServerState{ID: "alpha", Status: "online"}); err == nil {
		t.Fatalf("expected invalid status to be rejected")
	}
}

func TestStatusActive(t *testing.T) {
	active := map[Status]bool{
		StatusUnknown:  false,
		StatusStopped:  false,
		StatusStopping: true,
		StatusStarting: true,
		StatusRunning:  true,
		StatusCrashed:  false,
	}
	for status, want := range active {
		if status.Active() != want {
			t.Errorf("%s.Active() = %v, want %v", status, !want, want)
		}
	}
}

func TestEventLog(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog(openDB(t).DB)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{ServerID: "alpha", Type: EventStart, PID: intPtr(10), CreatedAt: base},
		{ServerID: "alpha", Type: EventCrash, PID: intPtr(10), ExitCode: intPtr(1), Message: "Unhandled exception", CreatedAt: base.Add(time.Second)},
		{ServerID: "beta", Type: EventStart, CreatedAt: base},
	}
	for _, e := range events {
		if err := log.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	recent, err := log.Recent(ctx, "alpha", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 events, got %d", len(recent))
	}
	crash := recent[0]
	if crash.Type != EventCrash || crash.ExitCode == nil || *crash.ExitCode != 1 || crash.Message != "Unhandled exception" {
		t.Fatalf("unexpected newest event: %+v", crash)
	}
	if recent[1].ExitCode != nil {
		t.Fatalf("expected nil exit code on start event")
	}

	limited, err := log.Recent(ctx, "alpha", 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}
