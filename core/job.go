package core

import (
	"context"
	"time"
)

// Job is a unit of scheduled work.
type Job interface {
	Operate(ctx context.Context) error
}

// JobFunc is the function signature for scheduled jobs.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Operate(ctx context.Context) error {
	return f(ctx)
}

// SchedulerMiddleware wraps a JobFunc to add cross-cutting concerns.
type SchedulerMiddleware func(next JobFunc) JobFunc

// InterruptibleJob is a Job that supports cooperative cancellation. The context
// passed to Operate is cancelled when the job is removed or the scheduler shuts
// down, after which Interrupt is called. Jobs must observe ctx.Done() themselves.
type InterruptibleJob interface {
	Job
	Interrupt() error
}

// Interruptible marks fn as interruptible; cancellation reaches it only through ctx.
func Interruptible(fn JobFunc) InterruptibleJob {
	return interruptibleFunc(fn)
}

type interruptibleFunc JobFunc

func (f interruptibleFunc) Operate(ctx context.Context) error {
	return f(ctx)
}

func (f interruptibleFunc) Interrupt() error {
	return nil
}

// Execution describes one run of a job. It is attached to the context passed to
// the job and its middlewares.
type Execution struct {
	ID          string
	Job         string
	Group       string
	ScheduledAt time.Time
	FiredAt     time.Time
	// Forced is set for runs requested through ExecuteJob, ExecuteGroupJob or ExecuteAllJob.
	Forced bool
}

type executionKey struct{}

func WithExecution(ctx context.Context, exec *Execution) context.Context {
	return context.WithValue(ctx, executionKey{}, exec)
}

func ExecutionFromContext(ctx context.Context) (*Execution, bool) {
	exec, ok := ctx.Value(executionKey{}).(*Execution)
	return exec, ok
}

// JobDefinition is one row of a job table handed to Scheduler.Initialize.
type JobDefinition struct {
	Name    string
	Group   string
	Cron    string
	Job     Job
	Misfire MisfirePolicy
}

// JobSource supplies the jobs registered at initialization.
type JobSource interface {
	Definitions() []JobDefinition
}

// JobTable is a static JobSource.
type JobTable []JobDefinition

func (t JobTable) Definitions() []JobDefinition {
	return t
}
