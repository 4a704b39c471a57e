package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Deepreo/kronos/core"
	"github.com/google/uuid"
)

// execution is the bookkeeping for one running job.
type execution struct {
	info          *core.Execution
	job           core.Job
	cancel        context.CancelFunc
	interruptible bool
}

// dispatch runs entry's job off the timer goroutine. It is a no-op once the
// scheduler is stopped.
func (s *InMemoryScheduler) dispatch(entry core.ScheduleEntry, scheduledAt time.Time, forced bool) {
	s.mu.RLock()
	if s.state == core.StateStopped {
		s.mu.RUnlock()
		return
	}
	s.inflight.Add(1)
	s.pending.Add(1)
	s.mu.RUnlock()

	go func() {
		defer s.inflight.Done()
		defer s.pending.Add(-1)
		if s.sem != nil {
			if err := s.sem.Acquire(s.poolCtx, 1); err != nil {
				s.logger.Warn("dispatch abandoned, scheduler is shutting down", "job", entry.Descriptor.Name)
				return
			}
			defer s.sem.Release(1)
		}
		s.run(entry, scheduledAt, forced)
	}()
}

func (s *InMemoryScheduler) run(entry core.ScheduleEntry, scheduledAt time.Time, forced bool) {
	name, group := entry.Descriptor.Name, entry.Descriptor.Group
	info := &core.Execution{
		ID:          uuid.NewString(),
		Job:         name,
		Group:       group,
		ScheduledAt: scheduledAt,
		FiredAt:     s.clock.Now(),
		Forced:      forced,
	}
	ctx := core.WithExecution(context.Background(), info)

	exec := &execution{info: info, job: entry.Descriptor.Job, cancel: func() {}}
	if _, ok := entry.Descriptor.Job.(core.InterruptibleJob); ok {
		ctx, exec.cancel = context.WithCancel(ctx)
		exec.interruptible = true
	}
	defer exec.cancel()

	// Tracked before the registry check, so a concurrent RemoveSchedule either
	// hides the entry here or finds exec to interrupt.
	closing := s.track(exec)
	defer s.untrack(exec)
	if _, ok := s.registry.Get(name); !ok {
		s.logger.Debug("job removed before it could run", "job", name)
		return
	}
	if closing {
		// Shutdown began between dispatch and now.
		s.interrupt(exec)
	}

	s.logger.Debug("job fired", "job", name, "group", group, "execution_id", info.ID, "forced", forced)
	s.publish(&core.JobFired{
		ScheduleEvent: s.baseEvent(name, group),
		ExecutionID:   info.ID,
		ScheduledAt:   scheduledAt,
		Forced:        forced,
	})

	start := s.clock.Now()
	err := s.invoke(ctx, name, entry.Descriptor.Job)
	elapsed := s.clock.Since(start)

	if err != nil {
		s.logger.Error("job execution failed", "job", name, "group", group, "execution_id", info.ID, "error", err)
		s.publish(&core.JobFailed{
			ScheduleEvent: s.baseEvent(name, group),
			ExecutionID:   info.ID,
			Duration:      elapsed,
			Error:         err.Error(),
		})
		return
	}

	s.logger.Info("job completed", "job", name, "group", group, "execution_id", info.ID, "duration", elapsed)
	s.publish(&core.JobCompleted{
		ScheduleEvent: s.baseEvent(name, group),
		ExecutionID:   info.ID,
		Duration:      elapsed,
	})
}

// invoke runs job through the middleware chain. Errors and panics come back as
// ErrJobExecution.
func (s *InMemoryScheduler) invoke(ctx context.Context, name string, job core.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: panic: %v", core.ErrJobExecution, r)
		}
	}()

	if runErr := s.applyMiddlewares(job.Operate)(ctx); runErr != nil {
		return fmt.Errorf("%w: %w", core.ErrJobExecution, runErr)
	}
	return nil
}

// track registers exec as running. It reports whether the scheduler is already
// interrupting running jobs.
func (s *InMemoryScheduler) track(exec *execution) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	byID, ok := s.running[exec.info.Job]
	if !ok {
		byID = make(map[string]*execution)
		s.running[exec.info.Job] = byID
	}
	byID[exec.info.ID] = exec
	return s.closing
}

func (s *InMemoryScheduler) untrack(exec *execution) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	byID := s.running[exec.info.Job]
	delete(byID, exec.info.ID)
	if len(byID) == 0 {
		delete(s.running, exec.info.Job)
	}
}

func (s *InMemoryScheduler) executionsOf(name string) []*execution {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	execs := make([]*execution, 0, len(s.running[name]))
	for _, exec := range s.running[name] {
		execs = append(execs, exec)
	}
	return execs
}

// closeExecutions marks the scheduler as closing and returns everything running.
func (s *InMemoryScheduler) closeExecutions() []*execution {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.closing = true
	var execs []*execution
	for _, byID := range s.running {
		for _, exec := range byID {
			execs = append(execs, exec)
		}
	}
	return execs
}

// Running returns the number of executions currently in progress.
func (s *InMemoryScheduler) Running() int {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	n := 0
	for _, byID := range s.running {
		n += len(byID)
	}
	return n
}

// interrupt cancels exec's context and calls Interrupt. Jobs without interrupt
// support are left alone. Failures are logged only.
func (s *InMemoryScheduler) interrupt(exec *execution) {
	if !exec.interruptible {
		return
	}
	exec.cancel()
	if err := deliverInterrupt(exec.job.(core.InterruptibleJob)); err != nil {
		s.logger.Error("interrupt delivery failed",
			"job", exec.info.Job,
			"execution_id", exec.info.ID,
			"error", fmt.Errorf("%w: %w", core.ErrInterruptDelivery, err),
		)
		return
	}
	s.logger.Info("job interrupted", "job", exec.info.Job, "execution_id", exec.info.ID)
}

func deliverInterrupt(job core.InterruptibleJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interrupt panicked: %v", r)
		}
	}()
	return job.Interrupt()
}
