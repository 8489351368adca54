// Package schema tracks the evolving column set of a dataset run.
package schema

import (
	"sort"

	"github.com/zeebo/xxh3"

	"consolidate/internal/record"
)

// NewColumnFunc is called once per column the first time it is observed.
type NewColumnFunc func(column string)

// DriftTracker holds the canonical column names seen so far in one dataset
// run. The set only grows; it starts empty for every run, including resumed
// ones, unless the caller seeds it.
type DriftTracker struct {
	seen     map[string]struct{}
	order    []string
	onNew    NewColumnFunc
	reporter bool
}

// NewDriftTracker returns an empty tracker. onNew may be nil.
func NewDriftTracker(onNew NewColumnFunc) *DriftTracker {
	return &DriftTracker{seen: make(map[string]struct{}), onNew: onNew, reporter: true}
}

// Observe inserts the keys of rec, reporting each unseen one. It returns the
// number of new columns.
func (t *DriftTracker) Observe(rec *record.Record) int {
	n := 0
	for _, k := range rec.Keys() {
		if _, ok := t.seen[k]; ok {
			continue
		}
		t.seen[k] = struct{}{}
		t.order = append(t.order, k)
		n++
		if t.reporter && t.onNew != nil {
			t.onNew(k)
		}
	}
	return n
}

// Silence stops or resumes new-column callbacks. It is used while seeding the
// set from files that were already reported by an earlier run.
func (t *DriftTracker) Silence(quiet bool) { t.reporter = !quiet }

// Len returns the number of distinct columns.
func (t *DriftTracker) Len() int { return len(t.seen) }

// Columns returns the columns in first-seen order.
func (t *DriftTracker) Columns() []string {
	return append([]string(nil), t.order...)
}

// Fingerprint returns an xxh3 hash of the sorted column set. Equal column
// sets have equal fingerprints regardless of discovery order.
func (t *DriftTracker) Fingerprint() uint64 {
	cols := t.Columns()
	sort.Strings(cols)
	h := xxh3.New()
	for _, c := range cols {
		_, _ = h.WriteString(c)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
