package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Dataset is one named folder of source files under an input root.
type Dataset struct {
	Name string
	Dir  string
}

// NewDataset binds name to <root>/<name>.
func NewDataset(root, name string) Dataset {
	return Dataset{Name: name, Dir: filepath.Join(root, name)}
}

// Exists reports whether the dataset folder exists and is a directory.
func (d Dataset) Exists() (bool, error) {
	st, err := os.Stat(d.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", d.Dir, err)
	}
	return st.IsDir(), nil
}

// Files returns the base names of the regular files in the dataset folder,
// sorted lexicographically. Subdirectories and hidden files are ignored.
// Extensions are not filtered here; unsupported files are skipped by the
// reader layer so they can be logged.
func (d Dataset) Files(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Path returns the full path of a source file of the dataset.
func (d Dataset) Path(name string) string { return filepath.Join(d.Dir, name) }
