package core

import (
	"time"
)

// Registry is the authoritative mapping from job name to its schedule entry.
// Implementations must be safe for concurrent use. Getters return copies.
type Registry interface {
	// Insert fails with ErrDuplicateJobName without modifying the registry when name is taken.
	Insert(name string, entry ScheduleEntry) error
	Get(name string) (ScheduleEntry, bool)
	ReplaceTrigger(name string, trigger Trigger) error
	// Update applies fn to the entry under the registry lock. The entry is only
	// written back when fn returns nil.
	Update(name string, fn func(entry *ScheduleEntry) error) error
	Remove(name string) (ScheduleEntry, error)
	// ListByGroup and ListAll return names in lexicographic order.
	ListByGroup(group string) []string
	ListAll() []string
	Len() int
}

// Scheduler defines the control plane of the job scheduler.
//
// Operations on an unknown job name log a warning and return an error wrapping
// ErrJobNotFound; the registry is left untouched. Callers that treat the notice
// as non-fatal can test for it with errors.Is.
type Scheduler interface {
	Initialize(source JobSource) error
	Start(delay time.Duration) error
	Standby() error
	ShutdownGracefully(timeout time.Duration) error

	AddSchedule(job Job, name, group, cronExpr string, opts ...TriggerOption) error
	RemoveSchedule(name string) error
	PauseSchedule(name string) error
	ResumeSchedule(name string) error
	RescheduleJob(name string, trigger *Trigger) error
	ExecuteJob(name string) error
	ExecuteGroupJob(group string) error
	ExecuteAllJob() error

	State() SchedulerState
	Get(name string) (ScheduleEntry, bool)
	Jobs() []ScheduleEntry
	Group(group string) []ScheduleEntry
	Use(middleware ...SchedulerMiddleware)
}
