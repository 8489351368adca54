package gzfile

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"

	"consolidate/internal/record"
)

func row(id string) *record.Record {
	r := record.New(1)
	r.Set("id", record.Number(id))
	return r
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	var out []string
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestWriter_FinalizeRenamesPart(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "tracks.jsonl.gz")
	part := final + PartSuffix

	w, err := Open(part, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, id := range []string{"1", "2"} {
		if err := w.Write(row(id)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if _, err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := w.Write(row("3")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Finalize(final); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close after Finalize: %v", err)
	}

	if ok, _ := PartExists(part); ok {
		t.Fatal("part-file still present after Finalize")
	}
	want := []string{`{"id":1}`, `{"id":2}`, `{"id":3}`}
	if diff := cmp.Diff(want, readLines(t, final)); diff != "" {
		t.Fatalf("artifact (-want +got):\n%s", diff)
	}
}

/*
A crash between two commits leaves uncommitted bytes after the last committed
offset. Resuming with that offset must drop them so the interrupted file's
rows are written exactly once.
*/
func TestWriter_ResumeTruncatesToCommittedOffset(t *testing.T) {
	dir := t.TempDir()
	part := filepath.Join(dir, "ds.jsonl.gz.part")

	w, err := Open(part, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = w.Write(row("1"))
	off, err := w.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if off <= 0 {
		t.Fatalf("committed offset = %d, want > 0", off)
	}
	_ = w.Write(row("99"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st, _ := os.Stat(part); st.Size() <= off {
		t.Fatalf("expected uncommitted bytes past %d, size %d", off, st.Size())
	}

	w, err = Open(part, Options{Resume: true, Offset: off})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = w.Write(row("2"))
	final := filepath.Join(dir, "ds.jsonl.gz")
	if err := w.Finalize(final); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	want := []string{`{"id":1}`, `{"id":2}`}
	if diff := cmp.Diff(want, readLines(t, final)); diff != "" {
		t.Fatalf("artifact (-want +got):\n%s", diff)
	}
}

func TestWriter_FreshOpenTruncates(t *testing.T) {
	dir := t.TempDir()
	part := filepath.Join(dir, "x.part")
	if err := os.WriteFile(part, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := Open(part, Options{Level: 9})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = w.Write(row("7"))
	final := filepath.Join(dir, "x")
	if err := w.Finalize(final); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if diff := cmp.Diff([]string{`{"id":7}`}, readLines(t, final)); diff != "" {
		t.Fatalf("artifact (-want +got):\n%s", diff)
	}
	if w.Rows() != 1 {
		t.Fatalf("Rows = %d, want 1", w.Rows())
	}
}

func TestWriter_WriteAfterClose(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "p"), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = w.Close()
	if err := w.Write(row("1")); err == nil {
		t.Fatal("expected error writing after Close")
	}
}

func TestWriter_ResumeRejectsShortPartFile(t *testing.T) {
	part := filepath.Join(t.TempDir(), "p")
	if err := os.WriteFile(part, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(part, Options{Resume: true, Offset: 100}); err == nil {
		t.Fatal("expected error when the part-file is shorter than the committed offset")
	}
}
