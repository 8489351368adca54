package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadRun_FlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "run.json")
	mustWrite(t, cfgPath, `{"job":"music","input_root":"raw","output_dir":"out","datasets":["tracks"]}`)
	listPath := filepath.Join(dir, "more.txt")
	mustWrite(t, listPath, "# extra\nalbums\n")

	f, err := parseFlags([]string{"-config", cfgPath, "-output", "elsewhere", "-datasets", "artists, tracks", "-datasets-file", listPath}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	r, err := loadRun(f)
	if err != nil {
		t.Fatalf("loadRun: %v", err)
	}
	if r.Job != "music" || r.InputRoot != "raw" || r.OutputDir != "elsewhere" {
		t.Fatalf("run = %+v", r)
	}
	if diff := cmp.Diff([]string{"artists", "tracks", "albums"}, r.Datasets); diff != "" {
		t.Fatalf("datasets (-want +got):\n%s", diff)
	}
	if r.Reader.BatchSize != 50_000 || r.LogDir != "logs" {
		t.Fatalf("defaults not applied: %+v", r)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	root := t.TempDir()
	in, out, logs := filepath.Join(root, "raw"), filepath.Join(root, "out"), filepath.Join(root, "logs")
	mustWrite(t, filepath.Join(in, "tracks", "tracks_0.csv"), "id,track.title\n1,a\n2,b\n")
	mustWrite(t, filepath.Join(in, "tracks", "tracks_1.json"), "{\"id\":3}\nbroken\n")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-input", in, "-output", out, "-logs", logs,
		"-datasets", "tracks,ghost", "-metrics-backend", "none",
	}, &stdout, &stderr)

	if code != 1 {
		t.Fatalf("exit code = %d, want 1 (ghost is missing); stderr=%s", code, stderr.String())
	}
	if _, err := os.Stat(filepath.Join(out, "tracks.json.gz")); err != nil {
		t.Fatalf("tracks artifact: %v", err)
	}
	summary := stdout.String()
	for _, want := range []string{"tracks", "ghost", "FAILED (init)", "log: " + logs} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}

	entries, err := os.ReadDir(logs)
	if err != nil || len(entries) != 2 {
		t.Fatalf("log dir entries = %v, %v; want log and rejects file", entries, err)
	}
	var rejects string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_rejects.csv") {
			rejects = filepath.Join(logs, e.Name())
		}
	}
	b, err := os.ReadFile(rejects)
	if err != nil {
		t.Fatalf("rejects file: %v", err)
	}
	if !strings.Contains(string(b), "tracks,tracks_1.json,2,malformed_json,broken") {
		t.Fatalf("rejects file:\n%s", b)
	}
}

func TestRun_Validate(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-validate", "-input", "raw", "-output", "out", "-datasets", "a"}, &stdout, &stderr)
	if code != 0 || !strings.Contains(stdout.String(), "configuration is valid") {
		t.Fatalf("code=%d stdout=%q stderr=%q", code, stdout.String(), stderr.String())
	}

	stdout.Reset()
	stderr.Reset()
	code = run(context.Background(), []string{"-validate", "-output", "out"}, &stdout, &stderr)
	if code != 1 || !strings.Contains(stderr.String(), "configuration is invalid") {
		t.Fatalf("code=%d stderr=%q", code, stderr.String())
	}
}
