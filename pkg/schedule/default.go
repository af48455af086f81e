package schedule

import (
	"context"
	"sync"
)

var (
	defaultMu  sync.Mutex
	defaultSch *Scheduler
)

// Default returns the process-wide scheduler, creating it on first use.
func Default() *Scheduler {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSch == nil {
		defaultSch = New()
	}
	return defaultSch
}

// SetDefault replaces the process-wide scheduler and returns the previous
// one, which the caller owns.
func SetDefault(s *Scheduler) *Scheduler {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultSch
	defaultSch = s
	return prev
}

// ResetDefault closes the process-wide scheduler. The next Default call
// creates a fresh one.
func ResetDefault() {
	defaultMu.Lock()
	s := defaultSch
	defaultSch = nil
	defaultMu.Unlock()
	if s != nil {
		_ = s.Close()
	}
}

// ScheduleJob schedules a job on the Default scheduler.
func ScheduleJob(name string, spec Spec, work Work, callback func()) (*Job, error) {
	return Default().ScheduleJob(name, spec, work, callback)
}

// RescheduleJob reschedules a job on the Default scheduler.
func RescheduleJob(name string, spec Spec) (*Job, error) {
	return Default().RescheduleJob(name, spec)
}

// CancelJob cancels a job on the Default scheduler.
func CancelJob(name string) bool { return Default().CancelJob(name) }

// RunNow invokes a job registered on the Default scheduler.
func RunNow(ctx context.Context, name string) error { return Default().RunNow(ctx, name) }

// Lookup finds a job on the Default scheduler.
func Lookup(name string) (*Job, bool) { return Default().Lookup(name) }

// Jobs returns a copy of the Default scheduler's registry.
func Jobs() map[string]*Job { return Default().Jobs() }
