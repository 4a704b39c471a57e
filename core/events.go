package core

import "time"

// Event names published by the scheduler.
const (
	EventScheduleAdded   = "kronos.schedule.added"
	EventScheduleRemoved = "kronos.schedule.removed"
	EventScheduleUpdated = "kronos.schedule.updated"
	EventJobFired        = "kronos.job.fired"
	EventJobCompleted    = "kronos.job.completed"
	EventJobFailed       = "kronos.job.failed"
	EventJobMisfired     = "kronos.job.misfired"
)

// Actions carried by ScheduleUpdated.
const (
	ActionPaused      = "paused"
	ActionResumed     = "resumed"
	ActionRescheduled = "rescheduled"
)

// ScheduleEvent holds the fields shared by every scheduler event.
type ScheduleEvent struct {
	ID    string    `json:"id"`
	Job   string    `json:"job"`
	Group string    `json:"group"`
	At    time.Time `json:"at"`
}

func (e ScheduleEvent) EventID() string {
	return e.ID
}

func (e ScheduleEvent) OccurredOn() time.Time {
	return e.At
}

type ScheduleAdded struct {
	ScheduleEvent
	Cron         string    `json:"cron"`
	NextFireTime time.Time `json:"next_fire_time"`
}

func (ScheduleAdded) EventName() string { return EventScheduleAdded }

type ScheduleRemoved struct {
	ScheduleEvent
}

func (ScheduleRemoved) EventName() string { return EventScheduleRemoved }

type ScheduleUpdated struct {
	ScheduleEvent
	Action       string    `json:"action"`
	Cron         string    `json:"cron"`
	NextFireTime time.Time `json:"next_fire_time"`
}

func (ScheduleUpdated) EventName() string { return EventScheduleUpdated }

type JobFired struct {
	ScheduleEvent
	ExecutionID string    `json:"execution_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Forced      bool      `json:"forced"`
}

func (JobFired) EventName() string { return EventJobFired }

type JobCompleted struct {
	ScheduleEvent
	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
}

func (JobCompleted) EventName() string { return EventJobCompleted }

type JobFailed struct {
	ScheduleEvent
	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error"`
}

func (JobFailed) EventName() string { return EventJobFailed }

// JobMisfired reports a fire time that was skipped or coalesced by the misfire policy.
type JobMisfired struct {
	ScheduleEvent
	ScheduledAt time.Time     `json:"scheduled_at"`
	Policy      MisfirePolicy `json:"policy"`
}

func (JobMisfired) EventName() string { return EventJobMisfired }
