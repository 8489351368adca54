// Package file enumerates datasets and their source files on the local disk.
package file

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// ReadList reads a dataset list file and returns its names in file order.
//
// Lines that are empty or start with '#' (after trimming surrounding
// whitespace) are skipped, so list files can carry comments and blank
// separators. A name listed twice is kept once, at its first position.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseList(f)
}

func parseList(r io.Reader) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SplitNames splits a comma-separated dataset list as given on the command
// line, with the same trimming and de-duplication as ReadList.
func SplitNames(s string) []string {
	out, _ := parseList(strings.NewReader(strings.ReplaceAll(s, ",", "\n")))
	return out
}
