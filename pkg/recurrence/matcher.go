package recurrence

import (
	"strconv"
	"strings"
)

// Matcher tests one calendar field. A nil Matcher is a wildcard.
//
// The set of matchers is closed: Value, Text, Range and Union.
type Matcher interface {
	match(v int) bool
	valid(lo, hi int) bool
	// ceiling is the largest value the matcher can accept, if bounded.
	ceiling() (int, bool)
}

// Value matches exactly one integer.
type Value int

func (m Value) match(v int) bool { return int(m) == v }

func (m Value) valid(lo, hi int) bool { return int(m) >= lo && int(m) <= hi }

func (m Value) ceiling() (int, bool) { return int(m), true }

// Text matches the integer spelled by a numeric string, e.g. "15".
// A string that does not parse as an integer makes the rule invalid.
type Text string

func (m Text) parse() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(m)))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (m Text) match(v int) bool {
	n, ok := m.parse()
	return ok && n == v
}

func (m Text) valid(lo, hi int) bool {
	n, ok := m.parse()
	return ok && n >= lo && n <= hi
}

func (m Text) ceiling() (int, bool) { return m.parse() }

// Union matches when any element matches. Elements are tried in order.
type Union []Matcher

// Any builds a Union from its arguments.
func Any(ms ...Matcher) Union { return Union(ms) }

// Values builds a Union of plain values.
func Values(vs ...int) Union {
	u := make(Union, 0, len(vs))
	for _, v := range vs {
		u = append(u, Value(v))
	}
	return u
}

func (m Union) match(v int) bool {
	for _, e := range m {
		if e != nil && e.match(v) {
			return true
		}
	}
	return false
}

func (m Union) valid(lo, hi int) bool {
	for _, e := range m {
		if e == nil {
			return false
		}
		if !e.valid(lo, hi) {
			return false
		}
	}
	return true
}

func (m Union) ceiling() (int, bool) {
	best, found := 0, false
	for _, e := range m {
		if e == nil {
			continue
		}
		c, ok := e.ceiling()
		if !ok {
			continue
		}
		if !found || c > best {
			best, found = c, true
		}
	}
	return best, found
}

// matches treats a nil matcher as a wildcard.
func matches(m Matcher, v int) bool {
	if m == nil {
		return true
	}
	return m.match(v)
}
