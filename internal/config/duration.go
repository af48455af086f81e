package config

import (
	"fmt"
	"strings"
	"time"

	"tickwork/internal/timer"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// SchedulerSettings is SchedulerConfig with defaults applied.
type SchedulerSettings struct {
	MaxTimerChunk   time.Duration
	ShutdownTimeout time.Duration
	DefaultTimeout  time.Duration
	Location        *time.Location
}

// Settings resolves durations and the timezone.
func (c SchedulerConfig) Settings() (SchedulerSettings, error) {
	var (
		s   SchedulerSettings
		err error
	)
	if s.MaxTimerChunk, err = ParseDurationOrDefault("scheduler.max_timer_chunk", c.MaxTimerChunk, timer.DefaultMaxChunk); err != nil {
		return s, err
	}
	if s.ShutdownTimeout, err = ParseDurationOrDefault("scheduler.shutdown_timeout", c.ShutdownTimeout, 10*time.Second); err != nil {
		return s, err
	}
	if s.DefaultTimeout, err = ParseDurationField("scheduler.default_timeout", c.DefaultTimeout); err != nil {
		return s, err
	}
	s.Location = time.Local
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return s, fmt.Errorf("scheduler.timezone: %w", err)
		}
		s.Location = loc
	}
	return s, nil
}
