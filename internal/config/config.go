// Package config defines the JSON-serializable run configuration for the
// consolidate binary. A run names a list of datasets under one input root and
// consolidates each of them into <output_dir>/<dataset>.json.gz.
//
// Example (trimmed):
//
//	{
//	  "job":        "music",
//	  "input_root": "raw",
//	  "output_dir": "out",
//	  "log_dir":    "logs",
//	  "datasets":   ["tracks", "artists"],
//	  "reader":     { "batch_size": 50000, "comma": ",", "encoding": "utf-8" },
//	  "normalize":  { "namespace_separator": ".", "collision_policy": "last-wins" },
//	  "checkpoint": { "kind": "file" },
//	  "output":     { "gzip_level": -1 }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Defaults applied by Run.ApplyDefaults.
const (
	DefaultBatchSize          = 50_000
	DefaultNamespaceSeparator = "."
	DefaultCollisionPolicy    = "last-wins"
	DefaultCheckpointKind     = "file"
	DefaultMaxLoggedMalformed = 400
	DefaultLogDir             = "logs"
)

// Run is the top-level object decoded from a run config file.
type Run struct {
	// Job labels metrics and the log file name.
	Job string `json:"job"`

	// InputRoot holds one folder per dataset.
	InputRoot string `json:"input_root"`

	// OutputDir receives artifacts, part-files and file checkpoints.
	OutputDir string `json:"output_dir"`

	// LogDir receives one timestamp-named log file per run.
	LogDir string `json:"log_dir"`

	// Datasets are processed strictly in this order.
	Datasets []string `json:"datasets"`

	// SkipExisting skips datasets whose final artifact already exists and
	// that have no checkpoint.
	SkipExisting bool `json:"skip_existing"`

	// RebuildOnResume re-reads already completed files on resume to seed the
	// duplicate digests and the column set before continuing.
	RebuildOnResume bool `json:"rebuild_on_resume"`

	// MaxLoggedMalformed caps per-dataset malformed-record log lines. The
	// malformed count itself is never capped.
	MaxLoggedMalformed int `json:"max_logged_malformed"`

	Reader     Reader     `json:"reader"`
	Normalize  Normalize  `json:"normalize"`
	Checkpoint Checkpoint `json:"checkpoint"`
	Output     Output     `json:"output"`
}

// Reader carries record reader options. Options is a free-form bag; for the
// delimited reader typical keys are:
//
//	comma (string), lazy_quotes (bool), trim_space (bool), encoding (string)
type Reader struct {
	BatchSize int     `json:"batch_size"`
	Options   Options `json:"options"`
}

// Normalize configures column-name canonicalization.
type Normalize struct {
	// NamespaceSeparator: everything up to and including its last occurrence
	// is stripped from each key.
	NamespaceSeparator string `json:"namespace_separator"`

	// CollisionPolicy decides what happens when two keys of one record
	// normalize to the same name: "last-wins", "first-wins" or "reject".
	CollisionPolicy string `json:"collision_policy"`
}

// Checkpoint selects the checkpoint store.
type Checkpoint struct {
	// Kind is "file" (two-line text files next to the output) or "sqlite".
	Kind string `json:"kind"`

	// DSN is the SQLite database path/DSN when Kind is "sqlite". Defaults to
	// <output_dir>/checkpoints.db.
	DSN string `json:"dsn"`
}

// Output configures the artifact writer.
type Output struct {
	// GzipLevel is a compress/gzip level; 0 means "use the default".
	GzipLevel int `json:"gzip_level"`
}

// Load decodes a Run from the JSON file at path.
func Load(path string) (Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return Run{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a Run from r. Unknown fields are rejected so that typos in a
// config file surface instead of silently falling back to defaults.
func Decode(r io.Reader) (Run, error) {
	var run Run
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&run); err != nil {
		return Run{}, fmt.Errorf("decode config: %w", err)
	}
	return run, nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (r *Run) ApplyDefaults() {
	if r.Job == "" {
		r.Job = "consolidate"
	}
	if r.LogDir == "" {
		r.LogDir = DefaultLogDir
	}
	if r.MaxLoggedMalformed == 0 {
		r.MaxLoggedMalformed = DefaultMaxLoggedMalformed
	}
	if r.Reader.BatchSize <= 0 {
		r.Reader.BatchSize = DefaultBatchSize
	}
	if r.Reader.Options == nil {
		r.Reader.Options = Options{}
	}
	if r.Normalize.NamespaceSeparator == "" {
		r.Normalize.NamespaceSeparator = DefaultNamespaceSeparator
	}
	if r.Normalize.CollisionPolicy == "" {
		r.Normalize.CollisionPolicy = DefaultCollisionPolicy
	}
	if r.Checkpoint.Kind == "" {
		r.Checkpoint.Kind = DefaultCheckpointKind
	}
}

// Options is a small helper to fetch typed values from arbitrary JSON maps.
// It performs only minimal type coercion and returns the provided default
// when a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64,
// which is accepted and truncated.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def when the key
// is missing or empty. Used for single-character settings such as a CSV
// delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// UnmarshalJSON makes a missing or null "options" object decode to a non-nil,
// empty Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
