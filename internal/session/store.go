// Package session persists each user's conversation collection as an
// opaque JSON document.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists conversation collections keyed by user id.
type Store interface {
	// Load returns the user's conversations as a JSON array; an unknown
	// user yields an empty array.
	Load(ctx context.Context, userID string) (json.RawMessage, error)
	// Save replaces the user's conversations.
	Save(ctx context.Context, userID string, conversations json.RawMessage) error
	Ping(ctx context.Context) error
	Close() error
}

// ErrInvalidConversations is returned when a payload is not a JSON array.
var ErrInvalidConversations = errors.New("conversations must be a JSON array")

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config selects and configures the store backend.
type Config struct {
	Driver string
	// Path is the SQLite database file. Empty uses the XDG data directory.
	Path string
	// DSN is the Postgres connection string.
	DSN string
}

// DefaultConfig returns a SQLite configuration at the default location.
func DefaultConfig() Config {
	return Config{Driver: DriverSQLite}
}

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return NewSQLiteStore(cfg)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN)
	case DriverMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// GetDBPath returns the default SQLite path,
// $XDG_DATA_HOME/llm-gateway/conversations.db.
func GetDBPath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "llm-gateway", "conversations.db"), nil
}

var emptyArray = json.RawMessage("[]")

// validateConversations checks that data is a JSON array and returns it
// compacted.
func validateConversations(data json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' || !json.Valid(trimmed) {
		return nil, ErrInvalidConversations
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, ErrInvalidConversations
	}
	return buf.Bytes(), nil
}
