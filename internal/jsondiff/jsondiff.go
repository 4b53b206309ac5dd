// Package jsondiff performs semantic comparison of two JSON byte slices. The
// text-edit path uses it to tell whitespace-only document edits (skip the
// downstream rebuild) apart from semantic ones.
package jsondiff

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"
)

// Result is the outcome of one comparison.
type Result struct {
	// Equivalent is true when both inputs decode to the same JSON value,
	// regardless of whitespace, key order or number formatting.
	Equivalent bool
	// Diff is a human-readable structural diff, empty when equivalent.
	Diff string
	// IsJSON is true when at least one input parsed as JSON.
	IsJSON bool
}

// Compare decodes both inputs and compares the resulting values.
func Compare(a, b []byte) (*Result, error) {
	// Identical bytes are always equivalent, JSON or not.
	if bytes.Equal(a, b) {
		return &Result{Equivalent: true, IsJSON: json.Valid(a) && len(a) > 0}, nil
	}

	var valA, valB interface{}
	decA := json.NewDecoder(bytes.NewReader(a))
	decA.UseNumber()
	errA := decA.Decode(&valA)

	decB := json.NewDecoder(bytes.NewReader(b))
	decB.UseNumber()
	errB := decB.Decode(&valB)

	if errA != nil || errB != nil {
		return &Result{
			Equivalent: false,
			Diff: fmt.Sprintf("content differs and is not comparable as JSON (a: %v, b: %v)",
				errA == nil, errB == nil),
			IsJSON: errA == nil || errB == nil,
		}, nil
	}

	diff := cmp.Diff(normalize(valA), normalize(valB))
	return &Result{Equivalent: diff == "", Diff: diff, IsJSON: true}, nil
}

// Equivalent is the boolean shorthand most callers want.
func Equivalent(a, b []byte) bool {
	res, err := Compare(a, b)
	return err == nil && res.Equivalent
}

// normalize canonicalizes number representations so "1e3" and "1000.0"
// compare equal, mirroring how a round-trip through the document model would
// render them.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return t
	}
}
