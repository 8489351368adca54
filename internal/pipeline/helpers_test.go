package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"consolidate/internal/checkpoint"
	jsonparser "consolidate/internal/parser/json"
	"consolidate/internal/storage/gzfile"
)

// env is one input root / output dir pair with a file checkpoint store.
type env struct {
	t     *testing.T
	in    string
	out   string
	store *checkpoint.FileStore
	logs  bytes.Buffer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{t: t, in: t.TempDir(), out: t.TempDir()}
	e.store = checkpoint.NewFileStore(e.out)
	return e
}

func (e *env) options() Options {
	return Options{InputRoot: e.in, OutputDir: e.out}
}

func (e *env) processor(mutate func(*Options)) *Processor {
	opt := e.options()
	if mutate != nil {
		mutate(&opt)
	}
	return NewProcessor(opt, e.store, log.New(&e.logs, "", 0))
}

// write creates <in>/<dataset>/<name> with the given lines.
func (e *env) write(dataset, name string, lines ...string) {
	e.t.Helper()
	dir := filepath.Join(e.in, dataset)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.t.Fatal(err)
	}
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		e.t.Fatal(err)
	}
}

// artifact returns the decompressed lines of a finalized dataset.
func (e *env) artifact(dataset string) []string {
	e.t.Helper()
	return gunzipLines(e.t, ArtifactPath(e.out, dataset))
}

func (e *env) exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (e *env) checkpoint(dataset string) (checkpoint.State, bool) {
	e.t.Helper()
	st, ok, err := e.store.Load(context.Background(), dataset)
	if err != nil {
		e.t.Fatalf("load checkpoint: %v", err)
	}
	return st, ok
}

// resumeFrom fakes an earlier interrupted run: a part-file holding lines as
// committed records and a checkpoint naming lastFile.
func (e *env) resumeFrom(dataset, lastFile string, lines ...string) {
	e.t.Helper()
	w, err := gzfile.Open(PartPath(e.out, dataset), gzfile.Options{})
	if err != nil {
		e.t.Fatal(err)
	}
	for _, l := range lines {
		rec, err := jsonparser.ParseObject([]byte(l))
		if err != nil {
			e.t.Fatal(err)
		}
		if err := w.Write(rec); err != nil {
			e.t.Fatal(err)
		}
	}
	off, err := w.Commit()
	if err != nil {
		e.t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		e.t.Fatal(err)
	}
	st := checkpoint.State{LastFile: lastFile, Rows: int64(len(lines)), Offset: off}
	if err := e.store.Save(context.Background(), dataset, st); err != nil {
		e.t.Fatal(err)
	}
}

func gunzipLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	var out []string
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	return out
}

// cancelOn cancels a context as soon as a log line containing needle is
// written.
type cancelOn struct {
	buf    bytes.Buffer
	needle string
	cancel context.CancelFunc
}

func (c *cancelOn) Write(p []byte) (int, error) {
	c.buf.Write(p)
	if bytes.Contains(p, []byte(c.needle)) {
		c.cancel()
	}
	return len(p), nil
}
