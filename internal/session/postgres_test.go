package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

func TestPostgresStoreLoad(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStoreWithQuerier(mock)

	mock.ExpectQuery("SELECT data").
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(`[{"id":"c1"}]`))

	got, err := store.Load(context.Background(), "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `[{"id":"c1"}]` {
		t.Fatalf("data=%s", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreLoadUnknownUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStoreWithQuerier(mock)

	mock.ExpectQuery("SELECT data").
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)

	got, err := store.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != "[]" {
		t.Fatalf("data=%s, want []", got)
	}
}

func TestPostgresStoreSave(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStoreWithQuerier(mock)

	mock.ExpectExec("INSERT INTO conversations").
		WithArgs("alice", `[{"id":"c1"}]`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.Save(context.Background(), "alice", []byte(` [ {"id": "c1"} ] `)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreSavePropagatesError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStoreWithQuerier(mock)

	mock.ExpectExec("INSERT INTO conversations").
		WithArgs("alice", `[]`).
		WillReturnError(fmt.Errorf("connection refused"))

	if err := store.Save(context.Background(), "alice", []byte(`[]`)); err == nil {
		t.Fatal("expected error from Save")
	}
}

func TestPostgresStoreSaveRejectsInvalidPayload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStoreWithQuerier(mock)

	// No expectations set: pgxmock fails if any statement runs.
	if err := store.Save(context.Background(), "alice", []byte(`"nope"`)); !errors.Is(err, ErrInvalidConversations) {
		t.Fatalf("err=%v, want ErrInvalidConversations", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS conversations").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	if err := NewPostgresStoreWithQuerier(mock).Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
