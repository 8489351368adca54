// Package parser selects a record source for a source file by its extension.
//
// Both implementations yield a lazy, finite, single-pass sequence of records:
// re-reading a file means opening it again from the start.
package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	csvparser "consolidate/internal/parser/csv"
	jsonparser "consolidate/internal/parser/json"
	"consolidate/internal/record"
)

// Source is a record source. Next returns io.EOF once the source is
// exhausted; any other error is unrecoverable for the file.
type Source interface {
	Next() (*record.Record, error)
	Close() error
}

// Format is the inferred layout of a source file.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatJSONLines
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSONLines:
		return "jsonl"
	default:
		return "unknown"
	}
}

// ErrUnsupportedFormat is returned by Open for extensions no reader handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrMalformed marks a skipped line-JSON record.
var ErrMalformed = jsonparser.ErrMalformed

// DetectFormat infers the format from the file extension (case-insensitive).
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV
	case ".json", ".jsonl", ".ndjson":
		return FormatJSONLines
	default:
		return FormatUnknown
	}
}

// Options configures Open.
type Options struct {
	CSV csvparser.Options

	// OnMalformed receives skipped line-JSON records.
	OnMalformed jsonparser.MalformedFunc
}

// Open opens path and returns the matching Source.
func Open(path string, opt Options) (Source, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		r, err := csvparser.NewReader(f, opt.CSV)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return jsonparser.NewReader(f, opt.OnMalformed), nil
	}
}
