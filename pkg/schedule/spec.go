package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tickwork/pkg/recurrence"
)

// SpecKind tags the shape of a Spec.
type SpecKind int

const (
	KindInvalid SpecKind = iota
	KindAt
	KindRule
	KindCron
	KindEvery
)

func (k SpecKind) String() string {
	switch k {
	case KindAt:
		return "at"
	case KindRule:
		return "rule"
	case KindCron:
		return "cron"
	case KindEvery:
		return "every"
	default:
		return "invalid"
	}
}

// Spec says when a job fires. Build one with At, Epoch, Recurring, Cron,
// Every, Bounded or Parse.
//
// Start and End bound recurring kinds: the first occurrence is searched from
// Start (or now, whichever is later) and occurrences after End are dropped.
type Spec struct {
	Kind  SpecKind
	At    time.Time
	Rule  *recurrence.Rule
	Cron  string
	Every time.Duration

	Start time.Time
	End   time.Time

	// Source records how Parse read the string: "cron", "duration", "hhmm",
	// "epoch" or "date". Empty for specs built directly.
	Source string
}

// At fires once at t.
func At(t time.Time) Spec { return Spec{Kind: KindAt, At: t} }

// Epoch fires once at the given Unix time in milliseconds.
func Epoch(ms int64) Spec { return At(time.UnixMilli(ms)) }

// Recurring fires on every occurrence of r.
func Recurring(r *recurrence.Rule) Spec {
	if r == nil {
		return Spec{}
	}
	return Spec{Kind: KindRule, Rule: r}
}

// Cron fires on every occurrence of a cron expression. The expression is
// parsed when the job is scheduled.
func Cron(expr string) Spec { return Spec{Kind: KindCron, Cron: strings.TrimSpace(expr)} }

// Every fires at a fixed interval, rounded to whole seconds.
func Every(d time.Duration) Spec {
	if d <= 0 {
		return Spec{}
	}
	return Spec{Kind: KindEvery, Every: d}
}

// Bounded restricts a recurring spec to [start, end]. Zero bounds are open.
// A non-recurring inner spec yields an invalid Spec.
func Bounded(start, end time.Time, inner Spec) Spec {
	if !inner.Recurring() {
		return Spec{}
	}
	inner.Start, inner.End = start, end
	return inner
}

// Recurring reports whether s produces more than one occurrence.
func (s Spec) Recurring() bool {
	return s.Kind == KindRule || s.Kind == KindCron || s.Kind == KindEvery
}

// Valid reports whether s has a usable kind.
func (s Spec) Valid() bool { return s.Kind != KindInvalid }

func (s Spec) String() string {
	var b strings.Builder
	switch s.Kind {
	case KindAt:
		b.WriteString("at " + s.At.Format(time.RFC3339))
	case KindRule:
		b.WriteString("rule")
	case KindCron:
		b.WriteString("cron " + s.Cron)
	case KindEvery:
		b.WriteString("every " + s.Every.String())
	default:
		return "invalid"
	}
	if !s.Start.IsZero() {
		b.WriteString(" from " + s.Start.Format(time.RFC3339))
	}
	if !s.End.IsZero() {
		b.WriteString(" until " + s.End.Format(time.RFC3339))
	}
	return b.String()
}

var (
	reHHMM   = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
	reDigits = regexp.MustCompile(`^\d+$`)
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parse reads a schedule string.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "*/1 * * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//   - Instant: RFC3339, "2006-01-02 15:04:05", "2006-01-02", or epoch milliseconds
//
// Optional prefixes force a form: "cron:", "interval:" / "every:", "at:".
// Instants without a zone are read in loc (time.Local when nil).
func Parse(raw string, loc *time.Location) (Spec, error) {
	if loc == nil {
		loc = time.Local
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Spec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return Spec{Kind: KindCron, Cron: expr, Source: "cron"}, nil
	case strings.HasPrefix(low, "interval:"):
		return parseEvery(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseEvery(s[len("every:"):])
	case strings.HasPrefix(low, "at:"):
		return parseInstant(strings.TrimSpace(s[len("at:"):]), loc)
	}

	if reDigits.MatchString(s) {
		return parseInstant(s, loc)
	}
	if sp, err := parseInstant(s, loc); err == nil {
		return sp, nil
	}
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return Spec{Kind: KindCron, Cron: s, Source: "cron"}, nil
	}
	if reHHMM.MatchString(s) {
		return parseEvery(s)
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return Spec{}, fmt.Errorf("interval must be > 0")
		}
		return Spec{Kind: KindEvery, Every: d, Source: "duration"}, nil
	}

	return Spec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', duration like '55m', or a date)",
		raw,
	)
}

// MustParse is Parse in the local zone that panics on error.
func MustParse(raw string) Spec {
	s, err := Parse(raw, nil)
	if err != nil {
		panic(err)
	}
	return s
}

func parseEvery(v string) (Spec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Spec{}, fmt.Errorf("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Spec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return Spec{}, fmt.Errorf("interval must be > 0")
		}
		return Spec{Kind: KindEvery, Every: d, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
	}
	if d <= 0 {
		return Spec{}, fmt.Errorf("interval must be > 0")
	}
	return Spec{Kind: KindEvery, Every: d, Source: "duration"}, nil
}

func parseInstant(v string, loc *time.Location) (Spec, error) {
	if reDigits.MatchString(v) {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Spec{}, fmt.Errorf("invalid epoch %q: %w", v, err)
		}
		sp := Epoch(ms)
		sp.Source = "epoch"
		return sp, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			sp := At(t)
			sp.Source = "date"
			return sp, nil
		}
	}
	return Spec{}, fmt.Errorf("invalid date %q", v)
}
