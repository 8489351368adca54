// Package json implements the line-delimited JSON record source.
//
// Every non-blank line must hold exactly one JSON object:
//
//	{"id":1,"name":"a"}
//	{"id":2,"name":"b"}
//
// Lines are parsed independently, so one bad line never affects its
// neighbours: it is reported through the malformed callback, skipped, and
// reading continues with the next line. Only I/O errors abort the file.
package json

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"consolidate/internal/record"
)

// ErrMalformed marks a line that is not a single well-formed JSON object.
var ErrMalformed = errors.New("malformed record")

// MalformedFunc receives the 1-based line number, the trimmed raw bytes and
// the parse error of each skipped line. raw is only valid during the call.
type MalformedFunc func(line int, raw []byte, err error)

// Reader yields one record per well-formed line. Memory is bounded by the
// longest line in the file.
type Reader struct {
	src         io.Closer
	br          *bufio.Reader
	onMalformed MalformedFunc

	line      int
	malformed int
	eof       bool
}

// NewReader returns a Reader over rc. onMalformed may be nil. The Reader owns
// rc and closes it in Close.
func NewReader(rc io.ReadCloser, onMalformed MalformedFunc) *Reader {
	return &Reader{
		src:         rc,
		br:          bufio.NewReaderSize(rc, 64*1024),
		onMalformed: onMalformed,
	}
}

// Malformed returns the number of lines skipped so far.
func (r *Reader) Malformed() int { return r.malformed }

// Next returns the next well-formed record or io.EOF.
func (r *Reader) Next() (*record.Record, error) {
	for !r.eof {
		b, err := r.br.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			r.eof = true
		} else if err != nil {
			return nil, fmt.Errorf("json: read line %d: %w", r.line+1, err)
		}
		if len(b) == 0 {
			continue
		}
		r.line++
		if r.line == 1 {
			b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
		}
		b = bytes.TrimSpace(b)
		if len(b) == 0 {
			continue
		}

		rec, perr := ParseObject(b)
		if perr != nil {
			r.malformed++
			if r.onMalformed != nil {
				r.onMalformed(r.line, b, perr)
			}
			continue
		}
		return rec, nil
	}
	return nil, io.EOF
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.src.Close() }

// ParseObject decodes one JSON object into a Record, keeping key order.
// Duplicate keys keep their first position and the last value. Any error
// wraps ErrMalformed.
func ParseObject(b []byte) (*record.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: top-level value is %v, want object", ErrMalformed, describe(tok))
	}

	rec := record.New(8)
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		key, _ := kt.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrMalformed, key, err)
		}
		v, err := valueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrMalformed, key, err)
		}
		rec.Set(key, v)
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformed)
	}
	return rec, nil
}

// valueOf maps one decoded JSON value onto the record value union.
func valueOf(raw json.RawMessage) (record.Value, error) {
	if len(raw) == 0 {
		return record.Null(), fmt.Errorf("empty value")
	}
	switch raw[0] {
	case 'n':
		return record.Null(), nil
	case 't':
		return record.Bool(true), nil
	case 'f':
		return record.Bool(false), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return record.Null(), err
		}
		return record.String(s), nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return record.Null(), err
		}
		return record.Raw(buf.String()), nil
	default:
		return record.Number(string(raw)), nil
	}
}

func describe(tok json.Token) string {
	switch t := tok.(type) {
	case json.Delim:
		return fmt.Sprintf("%q", t.String())
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", t)
	}
}
