// Package gzfile writes a dataset's consolidated NDJSON artifact.
//
// Records are streamed into a part-file (<artifact>.part) as gzip-compressed
// lines. Each Commit ends the current gzip member and fsyncs, so the
// part-file is always a valid multi-member gzip stream up to the last
// committed offset. Finalize renames the part-file onto the artifact name;
// until then the artifact is never observable in a partial state.
package gzfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/klauspost/compress/gzip"

	"consolidate/internal/record"
)

// PartSuffix is appended to the artifact path while writing.
const PartSuffix = ".part"

// Options configures a Writer.
type Options struct {
	// Resume appends to an existing part-file instead of truncating it.
	Resume bool

	// Offset is the committed length of the part-file. When resuming with
	// Offset > 0, bytes past it (an interrupted file's rows) are cut off.
	Offset int64

	// Level is a gzip compression level; 0 selects gzip.DefaultCompression.
	Level int
}

// Writer streams records into a part-file.
type Writer struct {
	path   string
	f      *os.File
	bw     *bufio.Writer
	gz     *gzip.Writer
	buf    []byte
	offset int64
	rows   int64 // rows written since Open
	closed bool
}

// Open opens the part-file at partPath according to opt.
func Open(partPath string, opt Options) (*Writer, error) {
	level := opt.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}

	flags := os.O_CREATE | os.O_WRONLY
	if !opt.Resume {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("writer: open part-file: %w", err)
	}

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("writer: seek: %w", err)
	}
	if opt.Resume && offset < opt.Offset {
		f.Close()
		return nil, fmt.Errorf("writer: part-file is %d bytes, shorter than committed offset %d", offset, opt.Offset)
	}
	if opt.Resume && opt.Offset > 0 && offset > opt.Offset {
		if err := f.Truncate(opt.Offset); err != nil {
			f.Close()
			return nil, fmt.Errorf("writer: truncate to committed offset %d: %w", opt.Offset, err)
		}
		if offset, err = f.Seek(opt.Offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("writer: seek: %w", err)
		}
	}

	bw := bufio.NewWriterSize(f, 256*1024)
	gz, err := gzip.NewWriterLevel(bw, level)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("writer: gzip: %w", err)
	}
	return &Writer{path: partPath, f: f, bw: bw, gz: gz, offset: offset}, nil
}

// Path returns the part-file path.
func (w *Writer) Path() string { return w.path }

// Rows returns the number of records written since Open.
func (w *Writer) Rows() int64 { return w.rows }

// Write appends rec as one compact JSON line.
func (w *Writer) Write(rec *record.Record) error {
	if w.closed {
		return errors.New("writer: write after close")
	}
	w.buf = rec.AppendJSON(w.buf[:0])
	w.buf = append(w.buf, '\n')
	if _, err := w.gz.Write(w.buf); err != nil {
		return fmt.Errorf("writer: write: %w", err)
	}
	w.rows++
	return nil
}

// Commit ends the current gzip member, flushes and fsyncs the part-file, and
// returns the committed length. Records written before Commit survive a crash.
func (w *Writer) Commit() (int64, error) {
	if w.closed {
		return 0, errors.New("writer: commit after close")
	}
	if err := w.gz.Close(); err != nil {
		return 0, fmt.Errorf("writer: end gzip member: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return 0, fmt.Errorf("writer: flush: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return 0, fmt.Errorf("writer: fsync: %w", err)
	}
	off, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("writer: seek: %w", err)
	}
	w.offset = off
	w.gz.Reset(w.bw)
	return off, nil
}

// Finalize commits outstanding records, closes the part-file and renames it
// to finalPath.
func (w *Writer) Finalize(finalPath string) error {
	if _, err := w.Commit(); err != nil {
		return err
	}
	w.closed = true
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("writer: close: %w", err)
	}
	if err := os.Rename(w.path, finalPath); err != nil {
		return fmt.Errorf("writer: rename %s: %w", finalPath, err)
	}
	return nil
}

// Close flushes whatever is buffered and closes the part-file without
// renaming it. It is the failure path and never deletes the part-file. Close
// after Finalize is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := errors.Join(w.gz.Close(), w.bw.Flush())
	if cerr := w.f.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		return fmt.Errorf("writer: close: %w", err)
	}
	return nil
}

// PartExists reports whether a part-file exists at partPath.
func PartExists(partPath string) (bool, error) {
	_, err := os.Stat(partPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
