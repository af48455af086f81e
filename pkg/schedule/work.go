package schedule

import "context"

// Work is the body of a job: a Func or an Exec.
type Work interface {
	run(ctx context.Context) error
	// counted reports whether runs add to the job's triggered count.
	counted() bool
}

// Func is plain function work. Each invocation increments the job's
// triggered count.
type Func func(ctx context.Context) error

func (f Func) run(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}

func (Func) counted() bool { return true }

// Executor is an object that knows how to run itself.
type Executor interface {
	Execute(ctx context.Context) error
}

type execWork struct{ e Executor }

// Exec wraps an Executor. Executor work does not count toward the job's
// triggered count.
func Exec(e Executor) Work { return execWork{e: e} }

func (w execWork) run(ctx context.Context) error {
	if w.e == nil {
		return nil
	}
	return w.e.Execute(ctx)
}

func (execWork) counted() bool { return false }
