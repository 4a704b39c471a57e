package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/Deepreo/kronos/cron"
)

const (
	DefaultGroup  = "DEFAULT"
	TriggerSuffix = "Trigger"
)

// MisfirePolicy decides what happens to fire times that passed while a job
// could not be fired (scheduler paused, job paused, process busy).
type MisfirePolicy string

const (
	// MisfireIgnore skips missed fire times and resumes at the next future occurrence.
	MisfireIgnore MisfirePolicy = "ignore"
	// MisfireFireNow fires once for all missed fire times, then resumes at the next future occurrence.
	MisfireFireNow MisfirePolicy = "fire_now"
	// MisfireDoNothing behaves like MisfireIgnore.
	MisfireDoNothing MisfirePolicy = "do_nothing"
)

func (p MisfirePolicy) String() string {
	return string(p)
}

// ParseMisfirePolicy accepts the policy names in any case, with - or _ separators.
// An empty string yields MisfireIgnore.
func ParseMisfirePolicy(s string) (MisfirePolicy, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch MisfirePolicy(normalized) {
	case "", MisfireIgnore:
		return MisfireIgnore, nil
	case MisfireFireNow:
		return MisfireFireNow, nil
	case MisfireDoNothing:
		return MisfireDoNothing, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMisfirePolicy, s)
}

// Trigger is the schedule bound to one job. Name, Group, Expression and Misfire
// are fixed at construction; NextFireTime and PreviousFireTime are maintained by
// the scheduler. A zero NextFireTime means the trigger will not fire again.
type Trigger struct {
	Name             string
	Group            string
	Expression       string
	Misfire          MisfirePolicy
	NextFireTime     time.Time
	PreviousFireTime time.Time

	schedule *cron.Expression
}

type TriggerOption func(*triggerOptions)

type triggerOptions struct {
	name     string
	group    string
	misfire  MisfirePolicy
	location *time.Location
}

func WithMisfirePolicy(policy MisfirePolicy) TriggerOption {
	return func(o *triggerOptions) {
		o.misfire = policy
	}
}

// WithTriggerIdentity overrides the trigger name and group. By default the
// scheduler names a trigger after its job.
func WithTriggerIdentity(name, group string) TriggerOption {
	return func(o *triggerOptions) {
		o.name = name
		o.group = group
	}
}

// InLocation evaluates the expression in loc instead of the scheduler clock's location.
func InLocation(loc *time.Location) TriggerOption {
	return func(o *triggerOptions) {
		o.location = loc
	}
}

// NewTrigger compiles expr. It fails with ErrInvalidCronSyntax.
func NewTrigger(expr string, opts ...TriggerOption) (*Trigger, error) {
	o := triggerOptions{misfire: MisfireIgnore}
	for _, opt := range opts {
		opt(&o)
	}
	if o.misfire == "" {
		o.misfire = MisfireIgnore
	}
	if _, err := ParseMisfirePolicy(string(o.misfire)); err != nil {
		return nil, err
	}

	expr = strings.TrimSpace(expr)
	var (
		schedule *cron.Expression
		err      error
	)
	if o.location != nil {
		schedule, err = cron.ParseInLocation(expr, o.location)
	} else {
		schedule, err = cron.Parse(expr)
	}
	if err != nil {
		return nil, err
	}

	return &Trigger{
		Name:       o.name,
		Group:      o.group,
		Expression: expr,
		Misfire:    o.misfire,
		schedule:   schedule,
	}, nil
}

// Next returns the first fire time strictly after t.
func (t Trigger) Next(after time.Time) (time.Time, bool) {
	if t.schedule == nil {
		return time.Time{}, false
	}
	return t.schedule.Next(after)
}

// Location returns the fixed evaluation location, or nil.
func (t Trigger) Location() *time.Location {
	if t.schedule == nil {
		return nil
	}
	return t.schedule.Location()
}

// MayFireAgain reports whether the trigger has a pending fire time.
func (t Trigger) MayFireAgain() bool {
	return !t.NextFireTime.IsZero()
}

// JobDescriptor identifies a registered job.
type JobDescriptor struct {
	Name  string
	Group string
	Job   Job
}

type JobState int

const (
	JobActive JobState = iota
	JobPaused
)

func (s JobState) String() string {
	switch s {
	case JobActive:
		return "ACTIVE"
	case JobPaused:
		return "PAUSED"
	}
	return "UNKNOWN"
}

// ScheduleEntry pairs a job with its trigger.
type ScheduleEntry struct {
	Descriptor JobDescriptor
	Trigger    Trigger
	State      JobState
}

type SchedulerState int

const (
	StateCreated SchedulerState = iota
	StateRunning
	StatePaused
	StateStopped
)

func (s SchedulerState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}
