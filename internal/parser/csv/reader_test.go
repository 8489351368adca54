package csv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

/*
fakeRC is a small helper implementing io.ReadCloser over a byte slice.
It lets tests verify that Close() is forwarded to the source.
*/
type fakeRC struct {
	*bytes.Reader
	closed bool
}

func newFakeRC(b []byte) *fakeRC { return &fakeRC{Reader: bytes.NewReader(b)} }
func (f *fakeRC) Close() error   { f.closed = true; return nil }

/*
makeCSV builds a CSV document in-memory with the given header and rows,
using encoding/csv so that quoting and escaping are correct.
*/
func makeCSV(delim rune, header []string, rows [][]string) []byte {
	var b bytes.Buffer
	w := csv.NewWriter(&b)
	w.Comma = delim
	if header != nil {
		_ = w.Write(header)
	}
	for _, r := range rows {
		_ = w.Write(r)
	}
	w.Flush()
	return b.Bytes()
}

// drain reads every record and returns their JSON encodings.
func drain(t *testing.T, r *Reader) ([]string, error) {
	t.Helper()
	var out []string
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, string(rec.AppendJSON(nil)))
	}
}

func TestReader_HeaderAndRows(t *testing.T) {
	data := makeCSV(',', []string{"\uFEFFid", "name", "artist.name"}, [][]string{
		{"1", "Intro", "A"},
		{"2", "", "B, the band"},
	})
	src := newFakeRC(data)
	r, err := NewReader(src, Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if diff := cmp.Diff([]string{"id", "name", "artist.name"}, r.Header()); diff != "" {
		t.Fatalf("header (-want +got):\n%s", diff)
	}

	got, err := drain(t, r)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	want := []string{
		`{"id":"1","name":"Intro","artist.name":"A"}`,
		`{"id":"2","name":null,"artist.name":"B, the band"}`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records (-want +got):\n%s", diff)
	}

	if err := r.Close(); err != nil || !src.closed {
		t.Fatalf("Close: err=%v closed=%v", err, src.closed)
	}
}

func TestReader_BatchBoundaries(t *testing.T) {
	var rows [][]string
	for i := 0; i < 7; i++ {
		rows = append(rows, []string{strconv.Itoa(i)})
	}
	r, err := NewReader(newFakeRC(makeCSV(',', []string{"n"}, rows)), Options{BatchSize: 3})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := drain(t, r)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("got %d records across batches, want 7", len(got))
	}
	if got[6] != `{"n":"6"}` {
		t.Fatalf("last record = %s", got[6])
	}
	// Drained readers keep reporting EOF.
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("Next after EOF = %v", err)
	}
	if cap(r.batch) > 3 {
		t.Fatalf("batch capacity %d exceeds BatchSize", cap(r.batch))
	}
}

func TestReader_FieldCountMismatchFailsFile(t *testing.T) {
	data := []byte("a,b\n1,2\n3\n4,5\n")
	r, err := NewReader(newFakeRC(data), Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	_, err = drain(t, r)
	if !errors.Is(err, csv.ErrFieldCount) {
		t.Fatalf("expected ErrFieldCount, got %v", err)
	}
	if _, again := r.Next(); again == nil || errors.Is(again, io.EOF) {
		t.Fatalf("reader must stay failed, got %v", again)
	}
}

func TestReader_BareQuoteFailsUnlessLazy(t *testing.T) {
	data := []byte("a,b\nx\"y,2\n")

	r, err := NewReader(newFakeRC(data), Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := drain(t, r); !errors.Is(err, csv.ErrBareQuote) {
		t.Fatalf("strict: expected ErrBareQuote, got %v", err)
	}

	r, err = NewReader(newFakeRC(data), Options{LazyQuotes: true})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := drain(t, r)
	if err != nil || len(got) != 1 {
		t.Fatalf("lazy: got %v err=%v", got, err)
	}
}

func TestReader_EmptyInput(t *testing.T) {
	r, err := NewReader(newFakeRC(nil), Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("Next on empty input = %v, want EOF", err)
	}
}

func TestReader_SemicolonTrimAndEmptyHeader(t *testing.T) {
	data := []byte(" a ; ;c\n 1 ;2; \n")
	r, err := NewReader(newFakeRC(data), Options{Comma: ';', TrimSpace: true})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := drain(t, r)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if diff := cmp.Diff([]string{`{"a":"1","col_1":"2","c":null}`}, got); diff != "" {
		t.Fatalf("records (-want +got):\n%s", diff)
	}
}

func TestReader_Windows1250(t *testing.T) {
	// "Žluť" in windows-1250: Ž=0x8E l u ť=0x9D
	data := append([]byte("jmeno\n"), 0x8E, 'l', 'u', 0x9D, '\n')
	r, err := NewReader(newFakeRC(data), Options{Encoding: "windows-1250"})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := drain(t, r)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(got) != 1 || !strings.Contains(got[0], "Žluť") {
		t.Fatalf("decoded = %v", got)
	}
}

func TestNewReader_UnknownEncodingClosesSource(t *testing.T) {
	src := newFakeRC([]byte("a\n1\n"))
	if _, err := NewReader(src, Options{Encoding: "no-such-charset"}); err == nil {
		t.Fatal("expected error")
	}
	if !src.closed {
		t.Fatal("source must be closed on error")
	}
}
