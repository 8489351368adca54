package file

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// FreeSpace returns the bytes available to unprivileged users on the
// filesystem holding path.
func FreeSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// DescribeFreeSpace formats FreeSpace for logs, e.g. "12 GB free on out".
func DescribeFreeSpace(path string) string {
	n, err := FreeSpace(path)
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("%s free on %s", humanize.Bytes(n), path)
}
