// Package builtin contains the per-record transformers of the consolidation
// pipeline: key normalization and duplicate detection.
package builtin

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"consolidate/internal/record"
)

// ErrKeyCollision is returned under the "reject" policy when two keys of one
// record normalize to the same canonical name.
var ErrKeyCollision = errors.New("normalized key collision")

// CollisionPolicy decides which value survives when stripped keys collide.
type CollisionPolicy int

const (
	// LastWins keeps the later value at the position of the first key.
	LastWins CollisionPolicy = iota
	// FirstWins keeps the first value and drops later ones.
	FirstWins
	// Reject fails the record with ErrKeyCollision.
	Reject
)

// ParseCollisionPolicy maps a config string onto a CollisionPolicy.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last-wins":
		return LastWins, nil
	case "first-wins":
		return FirstWins, nil
	case "reject":
		return Reject, nil
	}
	return LastWins, fmt.Errorf("unknown collision policy %q", s)
}

func (p CollisionPolicy) String() string {
	switch p {
	case FirstWins:
		return "first-wins"
	case Reject:
		return "reject"
	default:
		return "last-wins"
	}
}

// Normalize canonicalizes record keys: everything up to and including the
// last Separator is stripped ("artist.name" → "name", "a.b.c" → "c") and the
// result is put in Unicode NFC form.
type Normalize struct {
	Separator string
	Policy    CollisionPolicy

	// cache maps raw keys to canonical keys. Schemas are narrow compared to
	// row counts, so this stays small.
	cache map[string]string
}

// NewNormalize returns a Normalize for sep (default ".") and policy.
func NewNormalize(sep string, policy CollisionPolicy) *Normalize {
	if sep == "" {
		sep = "."
	}
	return &Normalize{Separator: sep, Policy: policy, cache: make(map[string]string)}
}

// Key returns the canonical form of one key.
func (n *Normalize) Key(k string) string {
	if c, ok := n.cache[k]; ok {
		return c
	}
	c := k
	if i := strings.LastIndex(c, n.Separator); i >= 0 {
		c = c[i+len(n.Separator):]
	}
	if !norm.NFC.IsNormalString(c) {
		c = norm.NFC.String(c)
	}
	if n.cache == nil {
		n.cache = make(map[string]string)
	}
	n.cache[k] = c
	return c
}

// Apply returns a record with canonical keys. in is left unchanged unless no
// key needed rewriting, in which case in itself is returned.
func (n *Normalize) Apply(in *record.Record) (*record.Record, error) {
	changed := false
	for _, k := range in.Keys() {
		if n.Key(k) != k {
			changed = true
			break
		}
	}
	if !changed {
		return in, nil
	}

	out := record.New(in.Len())
	for i := 0; i < in.Len(); i++ {
		k, v := in.At(i)
		c := n.Key(k)
		if out.Has(c) {
			switch n.Policy {
			case FirstWins:
				continue
			case Reject:
				return nil, fmt.Errorf("%w: %q and an earlier key both normalize to %q", ErrKeyCollision, k, c)
			}
		}
		out.Set(c, v)
	}
	return out, nil
}
