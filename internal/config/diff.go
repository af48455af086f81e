package config

import (
	"reflect"
	"sort"
	"strings"

	logx "tickwork/pkg/logx"
)

// JobChanges lists job names by how a reload affects them.
type JobChanges struct {
	Added   []string
	Removed []string
	Changed []string
}

// Empty reports whether no job is affected.
func (c JobChanges) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// SummarizeJobChanges compares the enabled jobs of two configs by name.
// A job that becomes disabled counts as removed.
func SummarizeJobChanges(oldCfg, newCfg *Config) JobChanges {
	oldJobs := EnabledJobs(oldCfg)
	newJobs := EnabledJobs(newCfg)

	var out JobChanges
	for name, nj := range newJobs {
		oj, ok := oldJobs[name]
		switch {
		case !ok:
			out.Added = append(out.Added, name)
		case JobHash(oj) != JobHash(nj):
			out.Changed = append(out.Changed, name)
		}
	}
	for name := range oldJobs {
		if _, ok := newJobs[name]; !ok {
			out.Removed = append(out.Removed, name)
		}
	}
	sort.Strings(out.Added)
	sort.Strings(out.Removed)
	sort.Strings(out.Changed)
	return out
}

// EnabledJobs indexes the enabled jobs of cfg by trimmed name.
func EnabledJobs(cfg *Config) map[string]JobConfig {
	out := map[string]JobConfig{}
	if cfg == nil {
		return out
	}
	for _, j := range cfg.Jobs {
		if !j.IsEnabled() {
			continue
		}
		out[strings.TrimSpace(j.Name)] = j
	}
	return out
}

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.max_timer_chunk", newCfg.Scheduler.MaxTimerChunk),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		d := ""
		if newCfg.Storage != nil {
			d = newCfg.Storage.Driver
		}
		attrs = append(attrs, logx.String("storage.driver", d))
	}
	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
		enabled := newCfg.Notify != nil && newCfg.Notify.Telegram != nil && newCfg.Notify.Telegram.Enabled
		attrs = append(attrs, logx.Bool("notify.telegram_enabled", enabled))
	}
	jc := SummarizeJobChanges(oldCfg, newCfg)
	if !jc.Empty() {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Any("jobs.added", jc.Added),
			logx.Any("jobs.removed", jc.Removed),
			logx.Any("jobs.changed", jc.Changed),
		)
	}
	return changed, attrs
}
