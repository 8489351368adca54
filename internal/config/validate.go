package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Run.
//
// Path is a dotted path into the config (e.g. "reader.options.comma").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var collisionPolicies = map[string]struct{}{
	"last-wins":  {},
	"first-wins": {},
	"reject":     {},
}

// ValidateRun performs static validation of a Run. It does not mutate r and
// expects ApplyDefaults to have been called.
func ValidateRun(r Run) []Issue {
	var issues []Issue

	if strings.TrimSpace(r.InputRoot) == "" {
		issues = append(issues, Issue{SeverityError, "input_root", "input_root must not be empty"})
	}
	if strings.TrimSpace(r.OutputDir) == "" {
		issues = append(issues, Issue{SeverityError, "output_dir", "output_dir must not be empty"})
	}
	issues = append(issues, validateDatasets(r.Datasets)...)
	issues = append(issues, validateReader(r.Reader)...)
	issues = append(issues, validateNormalize(r.Normalize)...)
	issues = append(issues, validateCheckpoint(r.Checkpoint)...)

	if r.Output.GzipLevel < -2 || r.Output.GzipLevel > 9 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output.gzip_level",
			Message:  fmt.Sprintf("gzip_level %d out of range [-2,9]", r.Output.GzipLevel),
		})
	}
	if r.MaxLoggedMalformed < 0 {
		issues = append(issues, Issue{SeverityWarning, "max_logged_malformed", "negative value logs every malformed record"})
	}
	return issues
}

func validateDatasets(names []string) []Issue {
	var issues []Issue
	if len(names) == 0 {
		return append(issues, Issue{SeverityError, "datasets", "at least one dataset is required"})
	}
	seen := make(map[string]int, len(names))
	for i, n := range names {
		path := fmt.Sprintf("datasets[%d]", i)
		switch {
		case strings.TrimSpace(n) == "":
			issues = append(issues, Issue{SeverityError, path, "dataset name must not be empty"})
		case n != filepath.Base(n) || n == "." || n == "..":
			issues = append(issues, Issue{SeverityError, path, fmt.Sprintf("dataset name %q must be a plain folder name", n)})
		}
		if j, dup := seen[n]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  fmt.Sprintf("dataset %q already listed at datasets[%d]; both runs would share one artifact", n, j),
			})
			continue
		}
		seen[n] = i
	}
	return issues
}

func validateReader(r Reader) []Issue {
	var issues []Issue
	if r.BatchSize < 1 {
		issues = append(issues, Issue{SeverityError, "reader.batch_size", "batch_size must be positive"})
	}
	if c := r.Options.String("comma", ","); len([]rune(c)) != 1 || c == "\"" || c == "\n" || c == "\r" {
		issues = append(issues, Issue{SeverityError, "reader.options.comma", fmt.Sprintf("invalid delimiter %q", c)})
	}
	if enc := r.Options.String("encoding", ""); enc != "" {
		if _, err := htmlindex.Get(enc); err != nil {
			issues = append(issues, Issue{SeverityError, "reader.options.encoding", fmt.Sprintf("unknown encoding %q", enc)})
		}
	}
	if r.Options.Bool("lazy_quotes", false) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "reader.options.lazy_quotes",
			Message:  "lazy_quotes accepts malformed quoting that would otherwise fail the file",
		})
	}
	return issues
}

func validateNormalize(n Normalize) []Issue {
	var issues []Issue
	if n.NamespaceSeparator == "" {
		issues = append(issues, Issue{SeverityError, "normalize.namespace_separator", "separator must not be empty"})
	}
	if _, ok := collisionPolicies[n.CollisionPolicy]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "normalize.collision_policy",
			Message:  fmt.Sprintf("unknown policy %q (want last-wins, first-wins or reject)", n.CollisionPolicy),
		})
	}
	return issues
}

func validateCheckpoint(c Checkpoint) []Issue {
	switch c.Kind {
	case "file":
		if c.DSN != "" {
			return []Issue{{SeverityWarning, "checkpoint.dsn", "dsn is ignored by the file checkpoint store"}}
		}
	case "sqlite":
	default:
		return []Issue{{SeverityError, "checkpoint.kind", fmt.Sprintf("unknown checkpoint kind %q (want file or sqlite)", c.Kind)}}
	}
	return nil
}
