package recurrence

import (
	"math"
	"time"
)

// MaxLookaheadYears bounds the search when the rule does not bound the year.
const MaxLookaheadYears = 100

// Rule is a calendar pattern. Each nil field is a wildcard.
//
// Use NewRule: the zero Rule does not recur, and its nil Second matches every
// second rather than second 0.
type Rule struct {
	Recurs bool

	// Start and End optionally clamp the occurrences the rule produces.
	Start time.Time
	End   time.Time

	Year      Matcher
	Month     Matcher // 0-11
	Date      Matcher // 1-31
	DayOfWeek Matcher // 0-6, Sunday = 0
	Hour      Matcher
	Minute    Matcher
	Second    Matcher
}

// NewRule returns a recurring rule that matches second 0 of every minute.
func NewRule() *Rule {
	return &Rule{Recurs: true, Second: Value(0)}
}

// Valid reports whether every set field is within its calendar bounds.
func (r *Rule) Valid() bool {
	if r == nil {
		return false
	}
	fields := []struct {
		m      Matcher
		lo, hi int
	}{
		{r.Year, math.MinInt, math.MaxInt},
		{r.Month, 0, 11},
		{r.DayOfWeek, 0, 6},
		{r.Hour, 0, 23},
		{r.Minute, 0, 59},
		{r.Second, 0, 59},
	}
	for _, f := range fields {
		if f.m != nil && !f.m.valid(f.lo, f.hi) {
			return false
		}
	}
	if r.Date != nil {
		if !r.Date.valid(1, r.maxDate()) {
			return false
		}
	}
	return true
}

// maxDate is the largest day-of-month allowed by a fixed month.
func (r *Rule) maxDate() int {
	var month int
	switch m := r.Month.(type) {
	case Value:
		month = int(m)
	case Text:
		n, ok := m.parse()
		if !ok {
			return 31
		}
		month = n
	default:
		return 31
	}
	switch month {
	case 3, 5, 8, 10:
		return 30
	case 1:
		return 29
	default:
		return 31
	}
}

// satisfiable reports whether every finite field has at least one matching value.
func (r *Rule) satisfiable() bool {
	fields := []struct {
		m      Matcher
		lo, hi int
	}{
		{r.Month, 0, 11},
		{r.Date, 1, 31},
		{r.DayOfWeek, 0, 6},
		{r.Hour, 0, 23},
		{r.Minute, 0, 59},
		{r.Second, 0, 59},
	}
	for _, f := range fields {
		if f.m == nil {
			continue
		}
		ok := false
		for v := f.lo; v <= f.hi; v++ {
			if f.m.match(v) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Next returns the first instant after base that satisfies the rule, or the
// zero time when there is none. It satisfies cron.Schedule.
func (r *Rule) Next(base time.Time) time.Time {
	return r.NextAt(base, time.Now())
}

// NextAt is Next with an explicit notion of "now", used to expire rules whose
// fixed year has already passed.
func (r *Rule) NextAt(base, now time.Time) time.Time {
	if r == nil || !r.Recurs || !r.Valid() || !r.satisfiable() {
		return time.Time{}
	}
	if y, ok := r.Year.(Value); ok && int(y) < now.Year() {
		return time.Time{}
	}

	loc := base.Location()
	next := base.Truncate(time.Second).Add(time.Second)
	if !r.Start.IsZero() && next.Before(r.Start) {
		next = ceilSecond(r.Start.In(loc))
	}

	limit := next.Year() + MaxLookaheadYears
	if r.Year != nil {
		if c, ok := r.Year.ceiling(); ok {
			limit = c
		}
	}

	for {
		if next.Year() > limit {
			return time.Time{}
		}
		if !r.End.IsZero() && next.After(r.End) {
			return time.Time{}
		}

		y, mo, d := next.Date()
		h, mi, _ := next.Clock()

		if !matches(r.Year, y) {
			next = advance(next, time.Date(y+1, time.January, 1, 0, 0, 0, 0, loc))
			continue
		}
		if !matches(r.Month, int(mo)-1) {
			next = advance(next, time.Date(y, mo+1, 1, 0, 0, 0, 0, loc))
			continue
		}
		if !matches(r.Date, d) {
			next = advance(next, time.Date(y, mo, d+1, 0, 0, 0, 0, loc))
			continue
		}
		if !matches(r.DayOfWeek, int(next.Weekday())) {
			next = advance(next, time.Date(y, mo, d+1, 0, 0, 0, 0, loc))
			continue
		}
		if !matches(r.Hour, h) {
			next = advance(next, time.Date(y, mo, d, h+1, 0, 0, 0, loc))
			continue
		}
		if !matches(r.Minute, mi) {
			next = advance(next, time.Date(y, mo, d, h, mi+1, 0, 0, loc))
			continue
		}
		if !matches(r.Second, next.Second()) {
			next = next.Add(time.Second)
			continue
		}
		return next
	}
}

// advance guards against a wall-clock step that does not move forward
// (ambiguous local times around DST transitions).
func advance(prev, cand time.Time) time.Time {
	if !cand.After(prev) {
		return prev.Add(time.Second)
	}
	return cand
}

func ceilSecond(t time.Time) time.Time {
	tr := t.Truncate(time.Second)
	if tr.Before(t) {
		return tr.Add(time.Second)
	}
	return tr
}
