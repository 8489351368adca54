package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingDataset is reported when a dataset folder does not exist.
var ErrMissingDataset = errors.New("dataset folder not found")

// Phase names the processor state a dataset reached or failed in.
type Phase string

const (
	PhaseInit       Phase = "init"
	PhaseReading    Phase = "reading"
	PhaseWriting    Phase = "writing"
	PhaseFinalizing Phase = "finalizing"
	PhaseDone       Phase = "done"
)

// Stats accumulates the diagnostics of one dataset run.
type Stats struct {
	// Rows is the cumulative number of records in the artifact, including
	// rows carried over from a checkpoint.
	Rows int64
	// ResumedRows is the part of Rows that came from a checkpoint.
	ResumedRows int64
	// Malformed counts skipped records (unparseable JSON lines and, under
	// the reject policy, key collisions).
	Malformed int64
	// DupSeen is set on the first duplicate and never reset.
	DupSeen bool
	// Duplicates counts every record whose digest was already seen.
	Duplicates int64
	// Columns are the distinct canonical column names, in first-seen order.
	Columns []string
	// Fingerprint is the xxh3 hash of the sorted column set.
	Fingerprint uint64

	FilesProcessed   int
	FilesSkipped     int
	FilesUnsupported int
}

// Result is the outcome of processing one dataset. Err is nil on success.
type Result struct {
	Dataset  string
	Phase    Phase
	Err      error
	Stats    Stats
	Duration time.Duration

	// Artifact is the final output path, set once finalized.
	Artifact string
	// Skipped is set when skip_existing left a finished dataset untouched.
	Skipped bool
}

// OK reports whether the dataset completed (or was skipped) without error.
func (r Result) OK() bool { return r.Err == nil }

// DatasetError carries the context of a failed dataset.
type DatasetError struct {
	Dataset string
	Phase   Phase
	File    string // source file being processed, if any
	Err     error
}

func (e *DatasetError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("dataset %s: %s %s: %v", e.Dataset, e.Phase, e.File, e.Err)
	}
	return fmt.Sprintf("dataset %s: %s: %v", e.Dataset, e.Phase, e.Err)
}

func (e *DatasetError) Unwrap() error { return e.Err }
