package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDataset_FilesSortedRegularOnly(t *testing.T) {
	root := t.TempDir()
	ds := NewDataset(root, "tracks")
	if err := os.MkdirAll(filepath.Join(ds.Dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"tracks_1.json", "tracks_0.csv", "notes.txt", ".DS_Store", "Z.csv"} {
		if err := os.WriteFile(ds.Path(name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ds.Files(context.Background())
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	want := []string{"Z.csv", "notes.txt", "tracks_0.csv", "tracks_1.json"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Files (-want +got):\n%s", diff)
	}
}

func TestDataset_Exists(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "present"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "plainfile"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := map[string]bool{"present": true, "absent": false, "plainfile": false}
	for name, want := range tests {
		got, err := NewDataset(root, name).Exists()
		if err != nil {
			t.Fatalf("Exists(%s): %v", name, err)
		}
		if got != want {
			t.Errorf("Exists(%s) = %v, want %v", name, got, want)
		}
	}
}

func TestDataset_FilesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDataset(t.TempDir(), "x").Files(ctx); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFreeSpace(t *testing.T) {
	n, err := FreeSpace(t.TempDir())
	if err != nil {
		t.Fatalf("FreeSpace: %v", err)
	}
	if n == 0 {
		t.Log("filesystem reports 0 bytes free")
	}
	if _, err := FreeSpace(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing path")
	}
}
