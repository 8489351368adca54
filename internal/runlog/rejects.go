package runlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

// maxRawBytes bounds the raw input kept per rejected record.
const maxRawBytes = 512

// Reason labels for rejected records.
const (
	ReasonMalformedJSON = "malformed_json"
	ReasonKeyCollision  = "key_collision"
)

// Rejects is a CSV side file listing every skipped record of a run with its
// reason, so operators can inspect or replay them. A nil *Rejects discards.
type Rejects struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	w       *csv.Writer
	reasons map[string]int
}

// RejectsFileName returns the reject file name for a run started at t.
func RejectsFileName(t time.Time) string {
	return "consolidate_" + t.Format("20060102_150405") + "_rejects.csv"
}

// OpenRejects opens <dir>/consolidate_<ts>_rejects.csv in append mode,
// writing the header row when the file is new.
func OpenRejects(dir string, start time.Time) (*Rejects, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runlog: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, RejectsFileName(start))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runlog: open rejects: %w", err)
	}
	w := csv.NewWriter(f)
	if st, err := f.Stat(); err == nil && st.Size() == 0 {
		_ = w.Write([]string{"dataset", "file", "line", "reason", "raw"})
	}
	return &Rejects{path: path, f: f, w: w, reasons: make(map[string]int)}, nil
}

// Add appends one rejected record. line is 0 when unknown.
func (r *Rejects) Add(dataset, file string, line int, reason string, raw []byte) {
	if r == nil {
		return
	}
	if len(raw) > maxRawBytes {
		raw = raw[:maxRawBytes]
	}
	ln := ""
	if line > 0 {
		ln = strconv.Itoa(line)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons[reason]++
	_ = r.w.Write([]string{dataset, file, ln, reason, string(raw)})
}

// Counts returns "reason=n" pairs sorted by reason.
func (r *Rejects) Counts() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.reasons))
	for k, n := range r.reasons {
		out = append(out, fmt.Sprintf("%s=%d", k, n))
	}
	sort.Strings(out)
	return out
}

// Path returns the reject file path.
func (r *Rejects) Path() string { return r.path }

// Close flushes and closes the file.
func (r *Rejects) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		r.f.Close()
		return fmt.Errorf("runlog: flush rejects: %w", err)
	}
	return r.f.Close()
}
