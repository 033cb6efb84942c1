package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier abstracts the pgx methods PostgresStore needs. *pgxpool.Pool and
// pgxmock pools both satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    user_id TEXT PRIMARY KEY,
    data JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore implements Store on PostgreSQL, one JSONB row per user.
type PostgresStore struct {
	db    Querier
	close func()
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres store requires a DSN")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := &PostgresStore{db: pool, close: pool.Close}
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithQuerier wraps an existing connection.
func NewPostgresStoreWithQuerier(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the conversations table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create conversations table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, userID string) (json.RawMessage, error) {
	var data string
	err := s.db.QueryRow(ctx, `SELECT data::text FROM conversations WHERE user_id = $1`, userID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return emptyArray, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	return json.RawMessage(data), nil
}

func (s *PostgresStore) Save(ctx context.Context, userID string, conversations json.RawMessage) error {
	data, err := validateConversations(conversations)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO conversations (user_id, data, updated_at) VALUES ($1, $2::jsonb, now())
		ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		userID, string(data))
	if err != nil {
		return fmt.Errorf("save conversations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
