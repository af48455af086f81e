package schedule

import "errors"

var (
	// ErrDuplicateName is returned when a job name is already registered.
	ErrDuplicateName = errors.New("schedule: job name already scheduled")
	// ErrUnknownJob is returned for operations on an unregistered name.
	ErrUnknownJob = errors.New("schedule: no such job")
	// ErrNotScheduled means the spec produced no future firing.
	ErrNotScheduled = errors.New("schedule: nothing to schedule")
	// ErrClosed is returned after Scheduler.Close.
	ErrClosed = errors.New("schedule: scheduler closed")
)
