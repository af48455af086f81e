package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tickwork/internal/cronexpr"
	"tickwork/pkg/schedule"
)

// Spec resolves the job's schedule. Zone-less dates are read in loc.
func (j JobConfig) Spec(loc *time.Location) (schedule.Spec, error) {
	var (
		sp  schedule.Spec
		err error
	)
	hasSchedule := strings.TrimSpace(j.Schedule) != ""
	switch {
	case hasSchedule && j.Rule != nil:
		return sp, fmt.Errorf("set either schedule or rule, not both")
	case j.Rule != nil:
		r := j.Rule.Rule()
		if !r.Valid() {
			return sp, fmt.Errorf("rule: field out of range")
		}
		sp = schedule.Recurring(r)
	case hasSchedule:
		sp, err = schedule.Parse(j.Schedule, loc)
		if err != nil {
			return sp, fmt.Errorf("schedule: %w", err)
		}
	default:
		return sp, fmt.Errorf("schedule or rule required")
	}
	if sp.Kind == schedule.KindCron {
		if err := cronexpr.Validate(sp.Cron); err != nil {
			return sp, fmt.Errorf("schedule: %w", err)
		}
	}

	start, err := parseBound("start", j.Start, loc)
	if err != nil {
		return sp, err
	}
	end, err := parseBound("end", j.End, loc)
	if err != nil {
		return sp, err
	}
	if start.IsZero() && end.IsZero() {
		return sp, nil
	}
	if !sp.Recurring() {
		return sp, fmt.Errorf("start/end only apply to recurring schedules")
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return sp, fmt.Errorf("end: before start")
	}
	return schedule.Bounded(start, end, sp), nil
}

func parseBound(field, raw string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	sp, err := schedule.Parse("at:"+raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return sp.At, nil
}

// Validate checks the whole config and reports every problem found, each
// prefixed with its field path.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	var errs []error

	settings, err := cfg.Scheduler.Settings()
	if err != nil {
		errs = append(errs, err)
		settings.Location = time.Local
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if n := cfg.Notify; n != nil && n.Telegram != nil && n.Telegram.Enabled {
		if strings.TrimSpace(n.Telegram.Token) == "" {
			errs = append(errs, fmt.Errorf("notify.telegram.token: required when enabled"))
		}
		if n.Telegram.ChatID == 0 {
			errs = append(errs, fmt.Errorf("notify.telegram.chat_id: required when enabled"))
		}
	}

	seen := make(map[string]int, len(cfg.Jobs))
	for i, j := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		name := strings.TrimSpace(j.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name: required", path))
		} else if prev, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("%s.name: %q already used by jobs[%d]", path, name, prev))
		} else {
			seen[name] = i
		}
		if strings.TrimSpace(j.Command) == "" {
			errs = append(errs, fmt.Errorf("%s.command: required", path))
		}
		if _, err := ParseDurationField(path+".timeout", j.Timeout); err != nil {
			errs = append(errs, err)
		}
		if _, err := j.Spec(settings.Location); err != nil {
			errs = append(errs, fmt.Errorf("%s.%w", path, err))
		}
	}
	return errors.Join(errs...)
}
