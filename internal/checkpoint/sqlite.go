package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	dataset     TEXT PRIMARY KEY,
	last_file   TEXT NOT NULL,
	rows        INTEGER NOT NULL,
	part_offset INTEGER NOT NULL DEFAULT 0,
	updated_at  TEXT NOT NULL
)`

// SQLiteStore keeps all dataset checkpoints in one SQLite table. It is useful
// when many datasets share an output directory and operators want a single
// place to inspect resume state.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the checkpoint database at dsn,
// e.g. "out/checkpoints.db" or "file:ckpt.db?_pragma=busy_timeout(5000)".
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("checkpoint: sqlite DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: sqlite open: %w", err)
	}
	// One writer, one process; avoid SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: sqlite ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, dataset string) (State, bool, error) {
	var st State
	err := s.db.QueryRowContext(ctx,
		`SELECT last_file, rows, part_offset FROM checkpoints WHERE dataset = ?`, dataset,
	).Scan(&st.LastFile, &st.Rows, &st.Offset)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("checkpoint: sqlite load %s: %w", dataset, err)
	}
	return st, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, dataset string, st State) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO checkpoints (dataset, last_file, rows, part_offset, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(dataset) DO UPDATE SET
	last_file = excluded.last_file,
	rows = excluded.rows,
	part_offset = excluded.part_offset,
	updated_at = excluded.updated_at`,
		dataset, st.LastFile, st.Rows, st.Offset, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("checkpoint: sqlite save %s: %w", dataset, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, dataset string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE dataset = ?`, dataset); err != nil {
		return fmt.Errorf("checkpoint: sqlite clear %s: %w", dataset, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
