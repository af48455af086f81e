// Package runner executes shell-command jobs and captures their outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	logx "tickwork/pkg/logx"
)

// DefaultOutputLimit is how much combined output a run keeps.
const DefaultOutputLimit = 64 * 1024

// Command is one shell command to run with "sh -c".
type Command struct {
	JobName string
	Line    string
	WorkDir string
	Env     map[string]string
	Timeout time.Duration
	// Trigger is exported to the command as TICKWORK_TRIGGER
	// ("schedule", "manual").
	Trigger string
}

// Result describes a finished run.
type Result struct {
	JobName  string
	Trigger  string
	Started  time.Time
	Duration time.Duration
	ExitCode int
	Output   string
	TimedOut bool
	// Err is non-nil when the command failed to start, exited non-zero or
	// timed out.
	Err error
}

// OK reports whether the run succeeded.
func (r Result) OK() bool { return r.Err == nil }

// ErrTimeout is wrapped by Result.Err when a run exceeds its timeout.
var ErrTimeout = errors.New("command timed out")

// Runner runs commands. The zero value is usable.
type Runner struct {
	Shell       string
	OutputLimit int
	Log         logx.Logger
	now         func() time.Time
}

// New returns a Runner using /bin/sh.
func New(log logx.Logger) *Runner {
	return &Runner{Shell: "sh", OutputLimit: DefaultOutputLimit, Log: log}
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Run executes c and waits for it to exit or time out.
func (r *Runner) Run(ctx context.Context, c Command) Result {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, shell, "-c", c.Line)
	cmd.Env = BuildEnv(c.Env, c.JobName, c.Trigger)
	cmd.Dir = c.WorkDir
	out := NewRingBuffer(r.OutputLimit)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = time.Second

	res := Result{JobName: c.JobName, Trigger: c.Trigger, Started: r.clock()}
	err := cmd.Run()
	res.Duration = time.Since(res.Started)
	res.Output = out.String()

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			res.TimedOut = true
			res.ExitCode = -1
			res.Err = fmt.Errorf("%w after %s", ErrTimeout, c.Timeout)
		case errors.As(err, &exitErr):
			res.ExitCode = exitErr.ExitCode()
			res.Err = fmt.Errorf("exit status %d", res.ExitCode)
		default:
			res.ExitCode = -1
			res.Err = err
		}
	}

	if !r.Log.IsZero() {
		r.Log.Debug("command finished",
			logx.String("job", c.JobName),
			logx.Int("exit_code", res.ExitCode),
			logx.Duration("took", res.Duration),
			logx.Bool("timed_out", res.TimedOut),
		)
	}
	return res
}

// Task adapts a Command to a job body. Each run's Result is passed to
// OnResult; Execute returns the run's error.
type Task struct {
	Runner   *Runner
	Command  Command
	OnResult func(Result)
}

func (t *Task) Execute(ctx context.Context) error {
	r := t.Runner
	if r == nil {
		r = New(logx.Nop())
	}
	c := t.Command
	if tr, ok := TriggerFrom(ctx); ok {
		c.Trigger = tr
	}
	res := r.Run(ctx, c)
	if t.OnResult != nil {
		t.OnResult(res)
	}
	return res.Err
}

type triggerKey struct{}

// WithTrigger tags ctx with what caused a run.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFrom returns the trigger set by WithTrigger.
func TriggerFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(triggerKey{}).(string)
	return s, ok
}
