package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/teemow/inboxagent/internal/state"
)

// Backend types.
const (
	TypeFile   = "file"
	TypeSQLite = "sqlite"
	TypeValkey = "valkey"
)

// Store loads and saves snapshots.
type Store interface {
	// Load returns the saved snapshot. found is false when nothing was
	// saved yet, which is not an error.
	Load(ctx context.Context) (snap state.Snapshot, found bool, err error)
	Save(ctx context.Context, snap state.Snapshot) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Type is file, sqlite or valkey (default file).
	Type string `yaml:"type"`
	// Path is the snapshot file or SQLite database path.
	Path   string       `yaml:"path"`
	Valkey ValkeyConfig `yaml:"valkey"`
}

// Open creates the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", TypeFile:
		return NewFileStore(cfg.Path)
	case TypeSQLite:
		return NewSQLiteStore(ctx, cfg.Path)
	case TypeValkey:
		return NewValkeyStore(cfg.Valkey)
	default:
		return nil, fmt.Errorf("unknown persistence type %q (want %s, %s or %s)", cfg.Type, TypeFile, TypeSQLite, TypeValkey)
	}
}

// LoadState loads the saved snapshot into a Context Store, or returns an
// empty store when nothing was saved. A snapshot that breaks an invariant
// is an error, never silently dropped.
func LoadState(ctx context.Context, s Store) (*state.Store, error) {
	snap, found, err := s.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load context: %w", err)
	}
	if !found {
		return state.New(), nil
	}
	st, err := state.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("saved context is invalid: %w", err)
	}
	return st, nil
}

func encode(snap state.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

func decode(data []byte) (state.Snapshot, error) {
	var snap state.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return state.Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}
