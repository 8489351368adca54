package builtin

import (
	"github.com/zeebo/blake3"

	"consolidate/internal/record"
)

// DigestSize is the width in bytes of a content digest.
const DigestSize = 32

// Digest is the BLAKE3-256 hash of a record's canonical form.
type Digest [DigestSize]byte

// DupDetector flags records whose content was already seen in the current
// dataset run. It never removes anything: the caller writes every record.
//
// The digest set lives in memory only; it is scoped to one run of one
// dataset and costs DigestSize bytes (plus map overhead) per distinct record.
type DupDetector struct {
	seen    map[Digest]struct{}
	hasher  *blake3.Hasher
	buf     []byte
	dupSeen bool
	count   int64
}

// NewDupDetector returns an empty detector.
func NewDupDetector() *DupDetector {
	return &DupDetector{
		seen:   make(map[Digest]struct{}),
		hasher: blake3.New(),
	}
}

// Sum returns the content digest of rec: the BLAKE3 hash of its keys and
// values serialized as compact JSON with keys in sorted order.
func (d *DupDetector) Sum(rec *record.Record) Digest {
	d.buf = rec.AppendCanonical(d.buf[:0])
	d.hasher.Reset()
	_, _ = d.hasher.Write(d.buf)

	var out Digest
	_, _ = d.hasher.Digest().Read(out[:])
	return out
}

// Observe records rec and reports whether it duplicates an earlier record
// and whether this is the first duplicate of the run.
func (d *DupDetector) Observe(rec *record.Record) (dup, first bool) {
	sum := d.Sum(rec)
	if _, ok := d.seen[sum]; !ok {
		d.seen[sum] = struct{}{}
		return false, false
	}
	d.count++
	first = !d.dupSeen
	d.dupSeen = true
	return true, first
}

// DupSeen reports whether any duplicate was observed. Once true it stays
// true.
func (d *DupDetector) DupSeen() bool { return d.dupSeen }

// Count returns the number of duplicate observations.
func (d *DupDetector) Count() int64 { return d.count }

// Size returns the number of distinct digests held.
func (d *DupDetector) Size() int { return len(d.seen) }
