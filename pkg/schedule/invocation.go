package schedule

import (
	"time"

	"github.com/jonboulle/clockwork"

	"tickwork/internal/timer"
	"tickwork/pkg/recurrence"
)

// Recurrence yields the occurrence after a given instant, or the zero time
// when there is none. cron.Schedule and *recurrence.Rule both satisfy it.
type Recurrence interface {
	Next(time.Time) time.Time
}

// invocation is one pending firing. All fields are guarded by Scheduler.mu.
type invocation struct {
	job      *Job
	fireDate time.Time
	endDate  time.Time
	recur    Recurrence

	handle *timer.Handle
	// token identifies the current arming; zero when unarmed.
	token uint64
}

func byFireDate(a, b *invocation) int { return a.fireDate.Compare(b.fireDate) }

// ruleSchedule expires rules against the scheduler's clock rather than the
// wall clock.
type ruleSchedule struct {
	rule  *recurrence.Rule
	clock clockwork.Clock
}

func (r ruleSchedule) Next(base time.Time) time.Time {
	return r.rule.NextAt(base, r.clock.Now())
}

type fire struct {
	inv   *invocation
	token uint64
}
