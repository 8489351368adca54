// Package record defines the schema-free record model shared by the readers,
// transformers and the output writer.
//
// A Record is an ordered mapping from string keys to scalar Values. Order is
// the order in which keys were first set, which for readers is the column
// order of the source (CSV header or JSON object key order). Records are
// ephemeral: readers build one per row/line and the pipeline discards it after
// it has been hashed and written.
package record

import (
	"encoding/json"
	"sort"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	// KindRaw holds a nested JSON object or array copied verbatim from a
	// line-JSON input. It is never interpreted.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindRaw:
		return "raw"
	}
	return "unknown"
}

// Value is a tagged scalar. The zero Value is null.
//
// Numbers keep their source text so that values such as 12345678901234567890
// or 1.10 round-trip without float conversion.
type Value struct {
	kind Kind
	s    string
	b    bool
}

// Null returns the null Value.
func Null() Value { return Value{} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number returns a number Value carrying the literal JSON number text.
func Number(text string) Value { return Value{kind: KindNumber, s: text} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Raw returns a Value holding compact JSON text for a nested object/array.
func Raw(text string) Value { return Value{kind: KindRaw, s: text} }

// Kind reports the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text returns the string, number text or raw JSON text of v. It returns ""
// for null and booleans.
func (v Value) Text() string { return v.s }

// Truth returns the boolean held by v (false for non-bool kinds).
func (v Value) Truth() bool { return v.b }

// Equal reports whether v and o hold the same variant and payload.
func (v Value) Equal(o Value) bool { return v == o }

// AppendJSON appends the compact JSON encoding of v to dst.
func (v Value) AppendJSON(dst []byte) []byte {
	switch v.kind {
	case KindString:
		return appendString(dst, v.s)
	case KindNumber, KindRaw:
		return append(dst, v.s...)
	case KindBool:
		if v.b {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	default:
		return append(dst, "null"...)
	}
}

// Record is an ordered key → Value mapping.
type Record struct {
	keys []string
	vals []Value
	idx  map[string]int
}

// New returns an empty Record with room for n keys.
func New(n int) *Record {
	return &Record{
		keys: make([]string, 0, n),
		vals: make([]Value, 0, n),
		idx:  make(map[string]int, n),
	}
}

// Len returns the number of keys in r.
func (r *Record) Len() int { return len(r.keys) }

// At returns the i-th key and value in insertion order.
func (r *Record) At(i int) (string, Value) { return r.keys[i], r.vals[i] }

// Keys returns the keys in insertion order. The slice must not be modified.
func (r *Record) Keys() []string { return r.keys }

// Get returns the value stored under key.
func (r *Record) Get(key string) (Value, bool) {
	i, ok := r.idx[key]
	if !ok {
		return Value{}, false
	}
	return r.vals[i], true
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.idx[key]
	return ok
}

// Set stores v under key. An existing key keeps its position and has its
// value replaced.
func (r *Record) Set(key string, v Value) {
	if r.idx == nil {
		r.idx = make(map[string]int)
	}
	if i, ok := r.idx[key]; ok {
		r.vals[i] = v
		return
	}
	r.idx[key] = len(r.keys)
	r.keys = append(r.keys, key)
	r.vals = append(r.vals, v)
}

// Reset empties r while keeping its allocated storage.
func (r *Record) Reset() {
	r.keys = r.keys[:0]
	r.vals = r.vals[:0]
	clear(r.idx)
}

// AppendJSON appends r as a compact single-line JSON object, keys in
// insertion order.
func (r *Record) AppendJSON(dst []byte) []byte {
	dst = append(dst, '{')
	for i, k := range r.keys {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendString(dst, k)
		dst = append(dst, ':')
		dst = r.vals[i].AppendJSON(dst)
	}
	return append(dst, '}')
}

// AppendCanonical appends the canonical form of r: a compact JSON object with
// keys in sorted lexicographic order. Two records with equal canonical forms
// are considered duplicates regardless of their key order.
func (r *Record) AppendCanonical(dst []byte) []byte {
	order := make([]int, len(r.keys))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return r.keys[order[a]] < r.keys[order[b]] })

	dst = append(dst, '{')
	for n, i := range order {
		if n > 0 {
			dst = append(dst, ',')
		}
		dst = appendString(dst, r.keys[i])
		dst = append(dst, ':')
		dst = r.vals[i].AppendJSON(dst)
	}
	return append(dst, '}')
}

// MarshalJSON implements json.Marshaler.
func (r *Record) MarshalJSON() ([]byte, error) {
	return r.AppendJSON(nil), nil
}

// appendString appends s as a JSON string literal. encoding/json never fails
// on a string, so the error is ignored.
func appendString(dst []byte, s string) []byte {
	b, _ := json.Marshal(s)
	return append(dst, b...)
}
