// Package executor runs a script reference to completion or cancellation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scriptsched/internal/task"
)

// Executor runs one script synchronously. It must honor ctx: when ctx is
// canceled the underlying process is terminated and an Aborted outcome is
// returned instead of blocking.
type Executor interface {
	Execute(ctx context.Context, scriptRef string) task.Outcome
}

// Aborter is implemented by executors that can report whether they honor
// cancellation. Executors without it are assumed to.
type Aborter interface {
	CanAbort() bool
}

// CanAbort reports the abort capability of e.
func CanAbort(e Executor) bool {
	if a, ok := e.(Aborter); ok {
		return a.CanAbort()
	}
	return e != nil
}

// Func adapts a plain function to Executor. A nil error is Success; an
// error while ctx is done is Aborted; any other error is Failure.
type Func func(ctx context.Context, scriptRef string) error

func (f Func) Execute(ctx context.Context, scriptRef string) task.Outcome {
	start := time.Now()
	err := f(ctx, scriptRef)
	return OutcomeFromError(ctx, err, start, time.Now())
}

// OutcomeFromError classifies err into an Outcome.
func OutcomeFromError(ctx context.Context, err error, start, end time.Time) task.Outcome {
	o := task.Outcome{Kind: task.Success, Started: start, Finished: end}
	if err == nil {
		return o
	}
	o.Reason = err.Error()
	var ee interface{ ExitCode() int }
	if errors.As(err, &ee) {
		o.ExitCode = ee.ExitCode()
	}
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		o.Kind = task.Aborted
		return o
	}
	o.Kind = task.Failure
	if o.ExitCode == 0 {
		o.ExitCode = -1
	}
	return o
}

// Recover wraps an Execute call and turns a panic into a Failure outcome.
func Recover(ctx context.Context, e Executor, scriptRef string) (o task.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o = task.Outcome{Kind: task.Failure, ExitCode: -1, Reason: fmt.Sprintf("panic: %v", r), Started: start, Finished: time.Now()}
		}
	}()
	o = e.Execute(ctx, scriptRef)
	if o.Started.IsZero() {
		o.Started = start
	}
	if o.Finished.IsZero() {
		o.Finished = time.Now()
	}
	return o
}
