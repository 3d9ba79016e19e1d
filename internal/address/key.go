// Package address normalizes street addresses into cache keys and parses
// free-text query addresses into house number, street name and zip.
package address

import (
	"strings"

	"golang.org/x/text/cases"
)

// Key is the canonical identity of a street address: the case-folded,
// whitespace-collapsed street, city, state and zip joined by '|'. Two records
// with the same Key share one geocode attempt.
type Key string

// NewKey builds the Key for an address.
func NewKey(street, city, state, zip string) Key {
	var b strings.Builder
	b.Grow(len(street) + len(city) + len(state) + len(zip) + 3)
	b.WriteString(fold(street))
	b.WriteByte('|')
	b.WriteString(fold(city))
	b.WriteByte('|')
	b.WriteString(fold(state))
	b.WriteByte('|')
	b.WriteString(strings.TrimSpace(zip))
	return Key(b.String())
}

// IsZero reports whether the key carries no address at all.
func (k Key) IsZero() bool {
	return strings.Trim(string(k), "|") == ""
}

func (k Key) String() string { return string(k) }

// fold lowercases with Unicode case folding and collapses runs of whitespace.
// A Caser is stateful, so each call gets its own.
func fold(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}
