package schedule

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	t.Parallel()
	utc := time.UTC
	tests := []struct {
		in     string
		kind   SpecKind
		source string
		every  time.Duration
		cron   string
		at     time.Time
	}{
		{in: "*/5 * * * *", kind: KindCron, source: "cron", cron: "*/5 * * * *"},
		{in: "@hourly", kind: KindCron, source: "cron", cron: "@hourly"},
		{in: "cron: 0 9 * * 1", kind: KindCron, source: "cron", cron: "0 9 * * 1"},
		{in: "55m", kind: KindEvery, source: "duration", every: 55 * time.Minute},
		{in: "02:30", kind: KindEvery, source: "hhmm", every: 2*time.Hour + 30*time.Minute},
		{in: "every: 00:50", kind: KindEvery, source: "hhmm", every: 50 * time.Minute},
		{in: "interval:2h30m", kind: KindEvery, source: "duration", every: 2*time.Hour + 30*time.Minute},
		{in: "2024-05-01T10:00:00Z", kind: KindAt, source: "date", at: time.Date(2024, 5, 1, 10, 0, 0, 0, utc)},
		{in: "2024-05-01 10:00:00", kind: KindAt, source: "date", at: time.Date(2024, 5, 1, 10, 0, 0, 0, utc)},
		{in: "2024-05-01", kind: KindAt, source: "date", at: time.Date(2024, 5, 1, 0, 0, 0, 0, utc)},
		{in: "at: 2024-05-01 10:00", kind: KindAt, source: "date", at: time.Date(2024, 5, 1, 10, 0, 0, 0, utc)},
		{in: "1505427200476", kind: KindAt, source: "epoch", at: time.UnixMilli(1505427200476)},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in, utc)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if got.Kind != tt.kind || got.Source != tt.source {
			t.Fatalf("Parse(%q) = kind %s source %q, want %s %q", tt.in, got.Kind, got.Source, tt.kind, tt.source)
		}
		if got.Every != tt.every || got.Cron != tt.cron || !got.At.Equal(tt.at) {
			t.Fatalf("Parse(%q) = %+v", tt.in, got)
		}
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "   ", "cron:", "every:", "interval: 0s", "00:00", "01:75", "-5m", "tomorrow", "at: soon"} {
		if _, err := Parse(in, time.UTC); err == nil {
			t.Fatalf("Parse(%q) = nil error", in)
		}
	}
}

func TestSpecConstructors(t *testing.T) {
	t.Parallel()
	if Every(0).Valid() {
		t.Fatal("Every(0) valid")
	}
	if Recurring(nil).Valid() {
		t.Fatal("Recurring(nil) valid")
	}
	if got := Epoch(1000).At; !got.Equal(time.Unix(1, 0)) {
		t.Fatalf("Epoch(1000) = %s", got)
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := Bounded(start, time.Time{}, Cron("@daily"))
	if b.Kind != KindCron || !b.Start.Equal(start) || !b.End.IsZero() {
		t.Fatalf("Bounded = %+v", b)
	}
	if b.String() != "cron @daily from 2024-01-01T00:00:00Z" {
		t.Fatalf("String() = %q", b.String())
	}
}
