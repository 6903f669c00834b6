package console

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/TheGojiOG/serverhost/internal/database"
)

func newHistory(t *testing.T) *CommandHistory {
	t.Helper()
	db, err := database.NewDB(slog.New(slog.NewTextHandler(io.Discard, nil)), filepath.Join(t.TempDir(), "history.db"), database.Options{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewCommandHistory(db.DB)
}

func TestCommandHistory(t *testing.T) {
	ctx := context.Background()
	history := newHistory(t)

	for _, cmd := range []string{"say hi", "save-all", "say 50%"} {
		if err := history.Record(ctx, "srv-1", cmd, nil); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := history.Record(ctx, "srv-1", "say broken", errors.New("not running")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := history.Record(ctx, "srv-2", "say other", nil); err != nil {
		t.Fatalf("Record: %v", err)
	}

	recent, err := history.Recent(ctx, "srv-1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 4 {
		t.Fatalf("got %d records", len(recent))
	}
	if recent[0].Command != "say broken" || recent[0].Success || recent[0].Error != "not running" {
		t.Fatalf("newest record = %+v", recent[0])
	}

	suggestions, err := history.Autocomplete(ctx, "srv-1", "say", 10)
	if err != nil {
		t.Fatalf("Autocomplete: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("suggestions = %v", suggestions)
	}

	literal, err := history.Autocomplete(ctx, "srv-1", "say 50%", 10)
	if err != nil {
		t.Fatalf("Autocomplete: %v", err)
	}
	if len(literal) != 1 || literal[0] != "say 50%" {
		t.Fatalf("literal suggestions = %v", literal)
	}
}
