package daemon

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync/atomic"
	"time"

	"tickwork/internal/config"
	"tickwork/internal/notify"
	"tickwork/internal/runner"
	"tickwork/internal/storage"
	logx "tickwork/pkg/logx"
	"tickwork/pkg/schedule"
)

// jobRunner starts a job's command in the background so one slow command
// never delays other jobs. A run that is still active when the next one
// fires makes that firing a no-op.
type jobRunner struct {
	d       *Daemon
	name    string
	task    *runner.Task
	running atomic.Bool
	started atomic.Uint64
}

func (r *jobRunner) Execute(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		r.d.log.Warn("previous run still active; skipping", logx.String("job", r.name))
		return nil
	}
	trigger := "schedule"
	if t, ok := runner.TriggerFrom(ctx); ok {
		trigger = t
	}
	r.started.Add(1)
	r.d.runs.Add(1)
	go func() {
		defer r.d.runs.Done()
		defer r.running.Store(false)
		_ = r.task.Execute(runner.WithTrigger(r.d.runCtx, trigger))
	}()
	return nil
}

// RunNow starts a registered job outside its schedule.
func (d *Daemon) RunNow(ctx context.Context, name string) error {
	return d.sched.RunNow(runner.WithTrigger(ctx, "manual"), name)
}

func (d *Daemon) newJobRunner(jc config.JobConfig) (*jobRunner, error) {
	timeout, err := config.ParseDurationField("timeout", jc.Timeout)
	if err != nil {
		return nil, err
	}
	if timeout == 0 {
		timeout = d.settings.DefaultTimeout
	}
	r := &jobRunner{d: d, name: jc.Name}
	r.task = &runner.Task{
		Runner: d.runner,
		Command: runner.Command{
			JobName: jc.Name,
			Line:    jc.Command,
			WorkDir: jc.WorkDir,
			Env:     jc.Env,
			Timeout: timeout,
			Trigger: "schedule",
		},
		OnResult: d.record,
	}
	return r, nil
}

// record persists a finished run and raises an alert for it.
func (d *Daemon) record(res runner.Result) {
	fields := []logx.Field{
		logx.String("job", res.JobName),
		logx.String("trigger", res.Trigger),
		logx.Int("exit_code", res.ExitCode),
		logx.Duration("took", res.Duration),
	}
	if res.OK() {
		d.log.Info("job finished", fields...)
	} else {
		d.log.Warn("job failed", append(fields, logx.Err(res.Err))...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if d.store != nil {
		run := storage.Run{
			Job:       res.JobName,
			Trigger:   res.Trigger,
			StartedAt: res.Started,
			Duration:  res.Duration,
			ExitCode:  res.ExitCode,
			OK:        res.OK(),
			TimedOut:  res.TimedOut,
			Output:    res.Output,
		}
		if res.Err != nil {
			run.Error = res.Err.Error()
		}
		if _, err := d.store.AppendRun(ctx, run); err != nil {
			d.log.Warn("run not recorded", logx.String("job", res.JobName), logx.Err(err))
		}
	}
	if err := d.notif.ReportRun(ctx, res); err != nil && !errors.Is(err, notify.ErrDisabled) {
		d.log.Debug("alert not queued", logx.String("job", res.JobName), logx.Err(err))
	}
}

// reconcileLocked moves the scheduler from the jobs of old to those of cfg.
func (d *Daemon) reconcileLocked(old, cfg *config.Config) {
	changes := config.SummarizeJobChanges(old, cfg)
	oldJobs := config.EnabledJobs(old)
	newJobs := config.EnabledJobs(cfg)

	for _, name := range changes.Removed {
		d.sched.CancelJob(name)
		delete(d.workers, name)
		d.log.Info("job removed", logx.String("job", name))
	}
	for _, name := range changes.Changed {
		oj, nj := oldJobs[name], newJobs[name]
		if _, registered := d.sched.Lookup(name); registered && sameWork(oj, nj) {
			spec, err := nj.Spec(d.settings.Location)
			if err == nil {
				_, err = d.sched.RescheduleJob(name, spec)
			}
			if err != nil {
				d.log.Warn("job reschedule failed; keeping previous schedule", logx.String("job", name), logx.Err(err))
				continue
			}
			d.log.Info("job rescheduled", logx.String("job", name), logx.String("spec", spec.String()))
			continue
		}
		d.sched.CancelJob(name)
		delete(d.workers, name)
		d.addLocked(nj)
	}
	for _, name := range changes.Added {
		d.addLocked(newJobs[name])
	}

	// Jobs whose fixed instant passed are gone from the scheduler but not
	// from the config; keep the worker table in step.
	for name := range d.workers {
		if _, ok := d.sched.Lookup(name); !ok {
			delete(d.workers, name)
		}
	}
}

func (d *Daemon) addLocked(jc config.JobConfig) {
	spec, err := jc.Spec(d.settings.Location)
	if err != nil {
		d.log.Warn("job spec invalid", logx.String("job", jc.Name), logx.Err(err))
		return
	}
	w, err := d.newJobRunner(jc)
	if err != nil {
		d.log.Warn("job invalid", logx.String("job", jc.Name), logx.Err(err))
		return
	}
	j, err := d.sched.ScheduleJob(jc.Name, spec, schedule.Exec(w), nil)
	if errors.Is(err, schedule.ErrNotScheduled) {
		d.log.Info("job has no future firing; skipped", logx.String("job", jc.Name), logx.String("spec", spec.String()))
		return
	}
	if err != nil {
		d.log.Warn("job not scheduled", logx.String("job", jc.Name), logx.Err(err))
		return
	}
	d.workers[jc.Name] = w
	next, _ := j.NextInvocation()
	d.log.Info("job scheduled", logx.String("job", jc.Name), logx.String("spec", spec.String()), logx.Time("next", next))
}

// sameWork reports whether two job configs run the same command the same
// way, so only their schedule differs.
func sameWork(a, b config.JobConfig) bool {
	return a.Command == b.Command &&
		a.WorkDir == b.WorkDir &&
		a.Timeout == b.Timeout &&
		reflect.DeepEqual(a.Env, b.Env)
}

// JobStatus is one row of Status.
type JobStatus struct {
	Name    string
	Next    time.Time
	Runs    uint64
	Running bool
}

// Status lists scheduled jobs by name.
func (d *Daemon) Status() []JobStatus {
	jobs := d.sched.Jobs()
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]JobStatus, 0, len(jobs))
	for name, j := range jobs {
		st := JobStatus{Name: name}
		st.Next, _ = j.NextInvocation()
		if w := d.workers[name]; w != nil {
			st.Running = w.running.Load()
			st.Runs = w.started.Load()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}
