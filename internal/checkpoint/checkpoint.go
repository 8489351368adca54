// Package checkpoint persists per-dataset resume state.
//
// A checkpoint records the name of the last source file whose records were
// fully written and committed to the dataset's part-file, together with the
// cumulative row count and the committed part-file length. On resume every
// source file whose name sorts at or before LastFile is skipped.
//
// The state is created/updated after each fully drained source file and
// cleared only after the dataset's artifact has been finalized.
package checkpoint

import (
	"context"
	"fmt"
	"path/filepath"
)

// State is the persisted resume point of one dataset.
type State struct {
	// LastFile is the base name of the last fully completed source file.
	LastFile string
	// Rows is the cumulative number of records written to the part-file.
	Rows int64
	// Offset is the committed byte length of the part-file, 0 if unknown.
	Offset int64
}

// Skip reports whether a source file named name was completed before the
// checkpoint was taken.
func (s State) Skip(name string) bool {
	return s.LastFile != "" && name <= s.LastFile
}

// Store loads, saves and clears dataset checkpoints.
type Store interface {
	// Load returns the saved state; ok is false when none exists.
	Load(ctx context.Context, dataset string) (st State, ok bool, err error)
	// Save overwrites the state of dataset.
	Save(ctx context.Context, dataset string, st State) error
	// Clear removes the state of dataset. Clearing a missing state is not an
	// error.
	Clear(ctx context.Context, dataset string) error
	// Close releases resources held by the store.
	Close() error
}

// Config selects a Store implementation.
type Config struct {
	// Kind is "file" or "sqlite".
	Kind string
	// Dir holds file checkpoints (<Dir>/<dataset>.ckpt).
	Dir string
	// DSN is the SQLite DSN; defaults to <Dir>/checkpoints.db.
	DSN string
}

// Open builds the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Kind {
	case "", "file":
		return NewFileStore(cfg.Dir), nil
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = filepath.Join(cfg.Dir, "checkpoints.db")
		}
		return OpenSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("checkpoint: unknown store kind %q", cfg.Kind)
	}
}
