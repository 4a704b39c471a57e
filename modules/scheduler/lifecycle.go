package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Deepreo/kronos/core"
)

// Initialize registers every definition of source, then applies the persisted
// schedule state. It stops at the first definition that cannot be registered.
func (s *InMemoryScheduler) Initialize(source core.JobSource) error {
	var defs []core.JobDefinition
	if source != nil {
		defs = source.Definitions()
	}
	if len(defs) == 0 {
		s.logger.Info("no schedules found")
	}

	for _, def := range defs {
		s.logger.Info("found schedule", "job", def.Name, "group", def.Group, "cron", def.Cron)
		var opts []core.TriggerOption
		if def.Misfire != "" {
			opts = append(opts, core.WithMisfirePolicy(def.Misfire))
		}
		if err := s.AddSchedule(def.Job, def.Name, def.Group, strings.TrimSpace(def.Cron), opts...); err != nil {
			return fmt.Errorf("register schedule %q: %w", def.Name, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return s.Restore(ctx)
}

// Restore re-applies persisted trigger overrides and pause state to registered
// jobs. Records of jobs that are not registered are skipped.
func (s *InMemoryScheduler) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	records, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load persisted schedules: %w", err)
	}

	restored := 0
	for _, record := range records {
		entry, ok := s.registry.Get(record.Name)
		if !ok {
			s.logger.Warn("persisted schedule has no registered job, skipping", "job", record.Name)
			continue
		}

		if record.Cron != "" && (record.Cron != entry.Trigger.Expression || record.Misfire != entry.Trigger.Misfire) {
			trigger, err := core.NewTrigger(record.Cron, s.triggerOptions(core.WithMisfirePolicy(record.Misfire))...)
			if err != nil {
				s.logger.Warn("persisted trigger is invalid, keeping registered one", "job", record.Name, "cron", record.Cron, "error", err)
			} else if err := s.RescheduleJob(record.Name, trigger); err != nil {
				return err
			}
		}
		if record.Paused && entry.State != core.JobPaused {
			if err := s.PauseSchedule(record.Name); err != nil {
				return err
			}
		}
		restored++
	}
	s.logger.Info("restored persisted schedules", "count", restored)
	return nil
}

// Start begins firing triggers after delay. A positive delay returns at once
// and switches to RUNNING when it elapses.
func (s *InMemoryScheduler) Start(delay time.Duration) error {
	if delay < 0 {
		return fmt.Errorf("%w: %s", core.ErrNegativeDelay, delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case core.StateStopped:
		s.logger.Warn("start called on a stopped scheduler")
		return core.ErrSchedulerStopped
	case core.StateRunning:
		return nil
	}

	if s.startTimer != nil {
		s.startTimer.Stop()
		s.startTimer = nil
	}
	if delay == 0 {
		s.setRunningLocked()
		return nil
	}

	s.logger.Info("scheduler will start after delay", "delay", delay)
	s.startTimer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == core.StateCreated || s.state == core.StatePaused {
			s.setRunningLocked()
		}
	})
	return nil
}

func (s *InMemoryScheduler) setRunningLocked() {
	s.markMissed(s.clock.Now())
	s.state = core.StateRunning
	if !s.loopStarted {
		s.loopStarted = true
		go s.loop()
	}
	s.wakeLoop()
	s.logger.Info("scheduler started", "jobs", s.registry.Len())
}

// Standby stops firing triggers until the next Start. Fire times missed in
// standby are handled by each trigger's misfire policy.
func (s *InMemoryScheduler) Standby() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == core.StateStopped {
		return core.ErrSchedulerStopped
	}
	if s.startTimer != nil {
		s.startTimer.Stop()
		s.startTimer = nil
	}
	s.state = core.StatePaused
	s.wakeLoop()
	s.logger.Info("scheduler paused")
	return nil
}

// ShutdownGracefully interrupts interruptible executions, stops the timer loop
// and waits up to timeout for running jobs. Jobs still running after the
// timeout are abandoned and release their resources when they return. Calling
// it again is a no-op.
func (s *InMemoryScheduler) ShutdownGracefully(timeout time.Duration) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.shutdown(timeout)
	})
	return err
}

func (s *InMemoryScheduler) shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.state = core.StateStopped
	if s.startTimer != nil {
		s.startTimer.Stop()
		s.startTimer = nil
	}
	loopStarted := s.loopStarted
	s.mu.Unlock()
	s.logger.Info("scheduler shutting down", "timeout", timeout)

	for _, exec := range s.closeExecutions() {
		s.interrupt(exec)
	}

	if loopStarted {
		close(s.loopStop)
		<-s.loopDone
	}
	// Dispatches still waiting for a worker never start.
	s.poolCancel()

	var err error
	if s.pending.Load() > 0 {
		done := make(chan struct{})
		go func() {
			s.inflight.Wait()
			close(done)
		}()

		timer := s.clock.NewTimer(timeout)
		select {
		case <-done:
		case <-timer.Chan():
			running := s.Running()
			s.logger.Warn("shutdown timed out, abandoning running jobs", "running", running, "timeout", timeout)
			err = fmt.Errorf("%w: %d still running after %s", core.ErrShutdownTimeout, running, timeout)
		}
		timer.Stop()
	}

	s.hintMu.Lock()
	s.hints = nil
	s.hintMu.Unlock()

	s.logger.Info("scheduler shut down")
	return err
}
