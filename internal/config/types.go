package config

import (
	"strings"

	logx "tickwork/pkg/logx"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Notify    *NotifyConfig   `json:"notify,omitempty"`
	Jobs      []JobConfig     `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"` // "console" (default) or "json"
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Logx converts the section to the logging service's config.
func (c LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		Format:  strings.TrimSpace(c.Format),
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    strings.TrimSpace(c.File.Path),
		},
	}
}

// SchedulerConfig controls the scheduler.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - max_timer_chunk: "1h"
//   - shutdown_timeout: "10s"
//   - default_timeout: "0s" (disabled)
type SchedulerConfig struct {
	// MaxTimerChunk caps a single timer wait; longer waits re-check the clock.
	MaxTimerChunk   string `json:"max_timer_chunk,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
	DefaultTimeout  string `json:"default_timeout,omitempty"`

	// Timezone is used to read zone-less start/end/at dates in job specs.
	// Empty means the host's local zone.
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig controls the run history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./tickwork.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type NotifyConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

// TelegramConfig routes job failure alerts to a chat.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// RatePerMin caps alerts per minute. Default 10.
	RatePerMin int `json:"rate_per_min,omitempty"`
	// OnSuccess also reports successful runs.
	OnSuccess bool `json:"on_success,omitempty"`
}

// JobConfig declares one shell-command job.
//
// Exactly one of Schedule and Rule must be set. Start and End bound
// recurring schedules and accept the same date forms as "at:" schedules.
type JobConfig struct {
	Name     string            `json:"name"`
	Schedule string            `json:"schedule,omitempty"`
	Rule     *RuleConfig       `json:"rule,omitempty"`
	Start    string            `json:"start,omitempty"`
	End      string            `json:"end,omitempty"`
	Command  string            `json:"command"`
	WorkDir  string            `json:"workdir,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Timeout  string            `json:"timeout,omitempty"`
	Enabled  *bool             `json:"enabled,omitempty"`
}

// IsEnabled reports the enabled flag; omitted means enabled.
func (j JobConfig) IsEnabled() bool { return j.Enabled == nil || *j.Enabled }

// RuleConfig is a calendar rule. Omitted fields are wildcards, except
// second, which defaults to 0; use "*" for every second.
type RuleConfig struct {
	Year      *Matcher `json:"year,omitempty"`
	Month     *Matcher `json:"month,omitempty"`
	Date      *Matcher `json:"date,omitempty"`
	DayOfWeek *Matcher `json:"day_of_week,omitempty"`
	Hour      *Matcher `json:"hour,omitempty"`
	Minute    *Matcher `json:"minute,omitempty"`
	Second    *Matcher `json:"second,omitempty"`
}
