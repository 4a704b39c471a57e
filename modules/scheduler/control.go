package scheduler

import (
	"fmt"
	"strings"

	"github.com/Deepreo/kronos/core"
)

func (s *InMemoryScheduler) triggerOptions(opts ...core.TriggerOption) []core.TriggerOption {
	defaults := []core.TriggerOption{core.WithMisfirePolicy(s.defaultMisfire)}
	if s.location != nil {
		defaults = append(defaults, core.InLocation(s.location))
	}
	return append(defaults, opts...)
}

func (s *InMemoryScheduler) notFound(op, name string) error {
	s.logger.Warn("job not found", "op", op, "job", name)
	return fmt.Errorf("%w: %s", core.ErrJobNotFound, name)
}

// AddSchedule registers job under name with a trigger compiled from cronExpr.
// An empty group selects the default group. The name must not be registered.
func (s *InMemoryScheduler) AddSchedule(job core.Job, name, group, cronExpr string, opts ...core.TriggerOption) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", core.ErrInvalidJobDescriptor)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", core.ErrInvalidJobDescriptor)
	}
	if group == "" {
		group = s.defaultGroup
	}
	if s.State() == core.StateStopped {
		return core.ErrSchedulerStopped
	}

	trigger, err := core.NewTrigger(cronExpr, s.triggerOptions(opts...)...)
	if err != nil {
		s.logger.Error("invalid schedule", "job", name, "cron", cronExpr, "error", err)
		return err
	}
	if trigger.Name == "" {
		trigger.Name = name + core.TriggerSuffix
	}
	if trigger.Group == "" {
		trigger.Group = group
	}

	next, ok := trigger.Next(s.clock.Now())
	if ok {
		trigger.NextFireTime = next
	}

	entry := core.ScheduleEntry{
		Descriptor: core.JobDescriptor{Name: name, Group: group, Job: job},
		Trigger:    *trigger,
		State:      core.JobActive,
	}
	if err := s.registry.Insert(name, entry); err != nil {
		s.logger.Error("failed to register schedule", "job", name, "error", err)
		return err
	}

	if ok {
		s.pushHint(name, next)
		s.logger.Info("schedule added", "job", name, "group", group, "cron", trigger.Expression, "next_fire_time", next)
	} else {
		s.logger.Warn("schedule added but its trigger will never fire", "job", name, "group", group, "cron", trigger.Expression)
	}
	s.publish(&core.ScheduleAdded{
		ScheduleEvent: s.baseEvent(name, group),
		Cron:          trigger.Expression,
		NextFireTime:  trigger.NextFireTime,
	})
	return nil
}

// RemoveSchedule unregisters name and interrupts its running executions.
func (s *InMemoryScheduler) RemoveSchedule(name string) error {
	entry, err := s.registry.Remove(name)
	if err != nil {
		return s.notFound("remove", name)
	}

	for _, exec := range s.executionsOf(name) {
		s.interrupt(exec)
	}

	s.logger.Info("schedule removed", "job", name, "group", entry.Descriptor.Group)
	s.publish(&core.ScheduleRemoved{ScheduleEvent: s.baseEvent(name, entry.Descriptor.Group)})
	s.forget(name)
	return nil
}

func (s *InMemoryScheduler) PauseSchedule(name string) error {
	return s.setJobState(name, core.JobPaused, core.ActionPaused)
}

// ResumeSchedule reactivates name. Fire times that passed while it was paused
// count as one misfire, handled by the trigger's misfire policy.
func (s *InMemoryScheduler) ResumeSchedule(name string) error {
	return s.setJobState(name, core.JobActive, core.ActionResumed)
}

func (s *InMemoryScheduler) setJobState(name string, state core.JobState, action string) error {
	var (
		entry   core.ScheduleEntry
		changed bool
	)
	err := s.registry.Update(name, func(e *core.ScheduleEntry) error {
		changed = e.State != state
		e.State = state
		entry = *e
		return nil
	})
	if err != nil {
		return s.notFound(action, name)
	}

	if changed && state == core.JobActive && entry.Trigger.MayFireAgain() {
		s.pushResumed(name, entry.Trigger.NextFireTime)
	}

	s.logger.Info("schedule "+action, "job", name, "group", entry.Descriptor.Group)
	s.publish(&core.ScheduleUpdated{
		ScheduleEvent: s.baseEvent(name, entry.Descriptor.Group),
		Action:        action,
		Cron:          entry.Trigger.Expression,
		NextFireTime:  entry.Trigger.NextFireTime,
	})
	s.persist(entry)
	return nil
}

// RescheduleJob replaces the trigger of name, keeping its job and pause state.
// The next fire time is computed from now.
func (s *InMemoryScheduler) RescheduleJob(name string, trigger *core.Trigger) error {
	if trigger == nil {
		return fmt.Errorf("%w: trigger is nil", core.ErrInvalidJobDescriptor)
	}
	var current core.ScheduleEntry
	err := s.registry.Update(name, func(e *core.ScheduleEntry) error {
		replacement := *trigger
		if replacement.Name == "" {
			replacement.Name = e.Trigger.Name
		}
		if replacement.Group == "" {
			replacement.Group = e.Trigger.Group
		}
		replacement.PreviousFireTime = e.Trigger.PreviousFireTime
		replacement.NextFireTime, _ = replacement.Next(s.clock.Now())
		e.Trigger = replacement
		current = *e
		return nil
	})
	if err != nil {
		return s.notFound("reschedule", name)
	}
	replacement := current.Trigger

	if replacement.MayFireAgain() {
		s.pushHint(name, replacement.NextFireTime)
	}
	s.logger.Info("schedule rescheduled", "job", name, "group", current.Descriptor.Group, "cron", replacement.Expression, "next_fire_time", replacement.NextFireTime)
	s.publish(&core.ScheduleUpdated{
		ScheduleEvent: s.baseEvent(name, current.Descriptor.Group),
		Action:        core.ActionRescheduled,
		Cron:          replacement.Expression,
		NextFireTime:  replacement.NextFireTime,
	})
	s.persist(current)
	return nil
}

// ExecuteJob runs name immediately, regardless of pause state. The trigger is
// not touched.
func (s *InMemoryScheduler) ExecuteJob(name string) error {
	if s.State() == core.StateStopped {
		return core.ErrSchedulerStopped
	}
	entry, ok := s.registry.Get(name)
	if !ok {
		return s.notFound("execute", name)
	}
	s.logger.Info("executing job on demand", "job", name, "group", entry.Descriptor.Group)
	s.dispatch(entry, s.clock.Now(), true)
	return nil
}

// ExecuteGroupJob runs every job of group immediately, in name order.
func (s *InMemoryScheduler) ExecuteGroupJob(group string) error {
	if s.State() == core.StateStopped {
		return core.ErrSchedulerStopped
	}
	entries := s.Group(group)
	if len(entries) == 0 {
		s.logger.Warn("no jobs in group", "group", group)
		return nil
	}
	s.logger.Info("executing group on demand", "group", group, "jobs", len(entries))
	s.executeAll(entries)
	return nil
}

// ExecuteAllJob runs every registered job immediately, in name order.
func (s *InMemoryScheduler) ExecuteAllJob() error {
	if s.State() == core.StateStopped {
		return core.ErrSchedulerStopped
	}
	entries := s.Jobs()
	s.logger.Info("executing all jobs on demand", "jobs", len(entries))
	s.executeAll(entries)
	return nil
}

func (s *InMemoryScheduler) executeAll(entries []core.ScheduleEntry) {
	now := s.clock.Now()
	for _, entry := range entries {
		s.dispatch(entry, now, true)
	}
}
