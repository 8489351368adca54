package checkpoint

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileStore keeps one plain-text checkpoint per dataset in Dir:
//
//	<last completed file name>
//	<cumulative row count>
//	<committed part-file offset>   (optional)
//
// Missing or blank lines default to none/0, so two-line records written by
// older runs still load.
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore { return &FileStore{Dir: dir} }

// Path returns the checkpoint path for dataset.
func (s *FileStore) Path(dataset string) string {
	return filepath.Join(s.Dir, dataset+".ckpt")
}

func (s *FileStore) Load(_ context.Context, dataset string) (State, bool, error) {
	f, err := os.Open(s.Path(dataset))
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("checkpoint: open: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() && len(lines) < 3 {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return State{}, false, fmt.Errorf("checkpoint: read %s: %w", s.Path(dataset), err)
	}

	var st State
	if len(lines) > 0 {
		st.LastFile = lines[0]
	}
	if st.Rows, err = parseCount(lines, 1); err != nil {
		return State{}, false, fmt.Errorf("checkpoint: %s: row count: %w", s.Path(dataset), err)
	}
	if st.Offset, err = parseCount(lines, 2); err != nil {
		return State{}, false, fmt.Errorf("checkpoint: %s: offset: %w", s.Path(dataset), err)
	}
	return st, true, nil
}

func parseCount(lines []string, i int) (int64, error) {
	if i >= len(lines) || lines[i] == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(lines[i], 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}

// Save writes the record to a temp file and renames it over the previous
// checkpoint; the last write wins.
func (s *FileStore) Save(_ context.Context, dataset string, st State) error {
	if strings.ContainsAny(st.LastFile, "\r\n") {
		return fmt.Errorf("checkpoint: file name %q contains a line break", st.LastFile)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: mkdir: %w", err)
	}
	body := fmt.Sprintf("%s\n%d\n%d\n", st.LastFile, st.Rows, st.Offset)

	tmp := s.Path(dataset) + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return fmt.Errorf("checkpoint: write: %w", err)
	}
	if err := os.Rename(tmp, s.Path(dataset)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("checkpoint: rename: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context, dataset string) error {
	err := os.Remove(s.Path(dataset))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checkpoint: remove: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
