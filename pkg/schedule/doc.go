// Package schedule runs jobs at future instants inside one process.
//
// A Job is scheduled with a Spec: a fixed instant, a recurrence.Rule, a cron
// expression or a fixed interval, optionally bounded by start and end
// instants. Every pending firing of every job is held by a Scheduler in one
// ordered set, and only the earliest has a live timer.
//
// Timer expiry is delivered to a single dispatch goroutine per Scheduler.
// It pops the fired invocation, re-arms for the next earliest, schedules the
// job's following occurrence and only then runs the job's work. Work runs
// without the scheduler lock held, so it may schedule or cancel other jobs
// (or itself). Firings are serialised: a slow job delays the ones after it.
//
// Package-level functions operate on the process-wide Default scheduler.
package schedule
