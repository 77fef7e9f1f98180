package state_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ojclient/internal/cli/state"
	"ojclient/internal/session"
	"ojclient/pkg/errors"
)

func TestFileStoreKeepsSessionsApart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := state.NewFileStore(path)

	if err := store.Save(ctx, "a", session.Credentials{Access: "a1", Refresh: "r1"}); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := store.Save(ctx, "b", session.Credentials{Access: "b1", Refresh: "r2"}); err != nil {
		t.Fatalf("save b: %v", err)
	}

	reopened := state.NewFileStore(path)
	got, err := reopened.Load(ctx, "a")
	if err != nil || got.Access != "a1" {
		t.Fatalf("unexpected session a: %+v err=%v", got, err)
	}

	if err := reopened.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := reopened.Load(ctx, "a"); !errors.Is(err, errors.SessionNotFound) {
		t.Fatalf("expected a to be gone, got %v", err)
	}
	if got, _ := reopened.Load(ctx, "b"); got.Access != "b1" {
		t.Fatalf("expected b to survive, got %+v", got)
	}

	if err := reopened.Delete(ctx, "b"); err != nil {
		t.Fatalf("delete b: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected state file to be removed with the last session")
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := state.NewFileStore(path).Load(context.Background(), "a"); err == nil {
		t.Fatalf("expected parse error")
	}
}
