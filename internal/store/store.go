// Package store is the durable document layer. Each named document is a
// whole JSON value, read and rewritten in full on every mutation; there is
// no incremental append. Concurrent external edits are not synchronized
// (last writer wins).
package store

import (
	"context"
	"errors"
	"strings"

	"pmbot/pkg/logx"
)

// Config configures the document store.
//
// Driver values:
//   - "file": one JSON file per document under Path (atomic rewrite)
//   - "sqlite": single SQLite database file at Path
//
// An empty driver means "file".
type Config struct {
	Driver string
	Path   string
}

// Store is the minimal persistence API used by the state services.
type Store interface {
	// Load decodes document name into v. found is false when the document
	// has never been saved; v is left untouched then.
	Load(ctx context.Context, name string, v any) (found bool, err error)

	// Save rewrites document name in full. Durability is guaranteed before
	// Save returns.
	Save(ctx context.Context, name string, v any) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
