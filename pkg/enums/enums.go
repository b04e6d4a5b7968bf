// Package enums holds the closed string sets stored in Postgres text columns
// and exchanged over the API.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

type closedSet[T ~string] struct {
	kind   string
	values []T
}

func newClosedSet[T ~string](kind string, values ...T) closedSet[T] {
	return closedSet[T]{kind: kind, values: values}
}

func (s closedSet[T]) has(v T) bool {
	return slices.Contains(s.values, v)
}

// parse is case sensitive: stored values are canonical and case drift is a bug.
func (s closedSet[T]) parse(raw string) (T, error) {
	v := T(strings.TrimSpace(raw))
	if !s.has(v) {
		return "", fmt.Errorf("invalid %s %q", s.kind, raw)
	}
	return v, nil
}
