package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSQLiteStoreSaveAndLoad(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	store, err := NewSQLiteStore(DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	got, err := store.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("load unknown user: %v", err)
	}
	if string(got) != "[]" {
		t.Fatalf("unknown user data=%s, want []", got)
	}

	if err := store.Save(ctx, "alice", []byte(`[ {"id": "c1", "title": "First"} ]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "alice", []byte(`[{"id":"c2","title":"Second"}]`)); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err = store.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `[{"id":"c2","title":"Second"}]` {
		t.Fatalf("data=%s, want the latest save", got)
	}

	other, err := store.Load(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if string(other) != "[]" {
		t.Fatalf("bob data=%s, want []", other)
	}

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestSQLiteStoreRejectsNonArray(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "c.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	err = store.Save(context.Background(), "alice", []byte(`{"id":"c1"}`))
	if !errors.Is(err, ErrInvalidConversations) {
		t.Fatalf("err=%v, want ErrInvalidConversations", err)
	}
}

func TestSQLiteStoreCustomPath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "custom", "conversations.db")

	store, err := NewSQLiteStore(Config{Driver: DriverSQLite, Path: dbPath})
	if err != nil {
		t.Fatalf("failed to create sqlite store with custom path: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected database file at %q: %v", dbPath, err)
	}
}

func TestSQLiteStoreReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "conversations.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(Config{Path: dbPath})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, "u", []byte(`[1]`)); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(Config{Path: dbPath})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Load(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "[1]" {
		t.Fatalf("data=%s after reopen", got)
	}
}
