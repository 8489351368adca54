// Package runlog opens the per-run, append-only log file.
package runlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Flags are the log.Logger flags used for run logs.
const Flags = log.LstdFlags | log.Lmicroseconds

// Log is an open run log.
type Log struct {
	*log.Logger
	path  string
	start time.Time
	f     *os.File
}

// FileName returns the log file name for a run started at t.
func FileName(t time.Time) string {
	return "consolidate_" + t.Format("20060102_150405") + ".log"
}

// Open creates dir if needed and opens <dir>/consolidate_<ts>.log in append
// mode. When mirror is non-nil every line is also written to it.
func Open(dir string, start time.Time, mirror io.Writer) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runlog: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(start))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runlog: open: %w", err)
	}
	var w io.Writer = f
	if mirror != nil {
		w = io.MultiWriter(f, mirror)
	}
	return &Log{Logger: log.New(w, "", Flags), path: path, start: start, f: f}, nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Start returns the run start time the file is named after.
func (l *Log) Start() time.Time { return l.start }

// Close syncs and closes the log file.
func (l *Log) Close() error {
	if err := l.f.Sync(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger { return log.New(io.Discard, "", 0) }
