// Package normalization maps user-typed enum spellings onto canonical values.
package normalization

import (
	"fmt"
	"slices"
	"strings"
)

// Normalizer resolves case-insensitive names and aliases to enum values.
type Normalizer[T ~string] struct {
	values map[string]T
	names  []string
}

// New builds a normalizer from each value's accepted spellings. The value's
// own name is always accepted.
func New[T ~string](aliases map[T][]string) *Normalizer[T] {
	n := &Normalizer[T]{values: make(map[string]T)}
	for v, alts := range aliases {
		n.values[clean(string(v))] = v
		n.names = append(n.names, string(v))
		for _, a := range alts {
			n.values[clean(a)] = v
		}
	}
	slices.Sort(n.names)
	return n
}

// Normalize returns the value raw names, or the zero value when unknown.
func (n *Normalizer[T]) Normalize(raw string) T {
	return n.values[clean(raw)]
}

// Parse is Normalize with an error listing the canonical names.
func (n *Normalizer[T]) Parse(raw string) (T, error) {
	if v, ok := n.values[clean(raw)]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid value %q, valid options: %s", raw, strings.Join(n.names, ", "))
}

// Names lists the canonical names, sorted.
func (n *Normalizer[T]) Names() []string {
	return slices.Clone(n.names)
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
