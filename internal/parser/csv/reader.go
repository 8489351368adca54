// Package csv implements the delimited-table record source. The header row
// defines the column names; every following row becomes one record mapping
// column name to cell text.
//
// Rows are pulled from encoding/csv in fixed-size batches so that at most one
// batch is resident at a time, independent of the file size. Unlike the
// line-JSON reader, a row-level parse failure is not recoverable: quoting
// errors and rows whose width differs from the header fail the whole file.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"consolidate/internal/config"
	"consolidate/internal/record"
)

// DefaultBatchSize is the number of rows buffered per batch.
const DefaultBatchSize = 50_000

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// Options configures the reader. Zero values select strict RFC 4180 UTF-8
// input with ',' as delimiter.
type Options struct {
	// BatchSize bounds the number of rows held in memory.
	BatchSize int

	// Comma is the field delimiter. When zero, ',' is used.
	Comma rune

	// LazyQuotes tolerates bare quotes inside unquoted fields.
	LazyQuotes bool

	// TrimSpace trims leading/trailing white space from header names and
	// cell values.
	TrimSpace bool

	// Encoding names the input character set (WHATWG labels such as
	// "windows-1250" or "iso-8859-2"). Empty means UTF-8.
	Encoding string
}

// FromConfigOptions builds Options from the generic reader options bag.
func FromConfigOptions(o config.Options, batchSize int) Options {
	return Options{
		BatchSize:  batchSize,
		Comma:      o.Rune("comma", ','),
		LazyQuotes: o.Bool("lazy_quotes", false),
		TrimSpace:  o.Bool("trim_space", false),
		Encoding:   o.String("encoding", ""),
	}
}

// Reader yields one record per data row. It is single-pass: once drained it
// keeps returning io.EOF.
type Reader struct {
	src    io.Closer
	cr     *csv.Reader
	opt    Options
	header []string

	batch [][]string
	pos   int
	eof   bool
	err   error
}

// NewReader reads the header from rc and returns a Reader positioned at the
// first data row. An empty input yields a Reader with no records. The Reader
// owns rc: it is closed by Close, or before NewReader returns an error.
func NewReader(rc io.ReadCloser, opt Options) (*Reader, error) {
	if opt.BatchSize <= 0 {
		opt.BatchSize = DefaultBatchSize
	}

	var in io.Reader = rc
	if opt.Encoding != "" {
		enc, err := htmlindex.Get(opt.Encoding)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("csv: encoding %q: %w", opt.Encoding, err)
		}
		if name, _ := htmlindex.Name(enc); name != "utf-8" {
			in = transform.NewReader(rc, enc.NewDecoder())
		}
	}

	cr := csv.NewReader(in)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	// FieldsPerRecord stays 0: the header width is enforced on every row.

	r := &Reader{src: rc, cr: cr, opt: opt}

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		r.eof = true
		return r, nil
	}
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	r.header = normalizeHeader(hdr, opt.TrimSpace)
	r.batch = make([][]string, 0, min(opt.BatchSize, 1024))
	return r, nil
}

// Header returns the column names in file order.
func (r *Reader) Header() []string { return r.header }

// Next returns the next record, io.EOF when the file is exhausted, or the
// first parse/I/O error, after which the Reader is unusable.
func (r *Reader) Next() (*record.Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.pos >= len(r.batch) {
		if r.eof {
			return nil, io.EOF
		}
		if err := r.fill(); err != nil {
			r.err = err
			return nil, err
		}
		if len(r.batch) == 0 {
			return nil, io.EOF
		}
	}

	row := r.batch[r.pos]
	r.batch[r.pos] = nil
	r.pos++

	rec := record.New(len(r.header))
	for i, cell := range row {
		if r.opt.TrimSpace {
			cell = strings.TrimSpace(cell)
		}
		rec.Set(r.header[i], emptyToNull(cell))
	}
	return rec, nil
}

// fill replaces the current batch with up to BatchSize rows.
func (r *Reader) fill() error {
	r.batch = r.batch[:0]
	r.pos = 0
	for len(r.batch) < r.opt.BatchSize {
		row, err := r.cr.Read()
		if errors.Is(err, io.EOF) {
			r.eof = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("csv: %w", err)
		}
		r.batch = append(r.batch, row)
	}
	return nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	r.batch = nil
	return r.src.Close()
}

// normalizeHeader strips a UTF-8 BOM from the first cell and names empty
// header cells "col_N" so that every column has a key.
func normalizeHeader(h []string, trim bool) []string {
	out := make([]string, len(h))
	for i, col := range h {
		if i == 0 {
			col = strings.TrimPrefix(col, utf8BOM)
		}
		if trim {
			col = strings.TrimSpace(col)
		}
		if col == "" {
			col = fmt.Sprintf("col_%d", i)
		}
		out[i] = col
	}
	return out
}

// emptyToNull maps an empty cell to null; all other cells are strings. No
// type inference is attempted.
func emptyToNull(s string) record.Value {
	if s == "" {
		return record.Null()
	}
	return record.String(s)
}
