package control

import (
	"context"
	"fmt"
	"time"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/errors"
)

// ListSchedules returns every schedule, or those of Group when set.
type ListSchedules struct {
	Group string
}

func (q ListSchedules) QueryID() string { return "list:" + q.Group }

type GetSchedule struct {
	Name string
}

func (q GetSchedule) QueryID() string { return "get:" + q.Name }

// ScheduleView is the read model of a schedule entry.
type ScheduleView struct {
	Name             string     `json:"name"`
	Group            string     `json:"group"`
	Trigger          string     `json:"trigger"`
	Cron             string     `json:"cron"`
	Misfire          string     `json:"misfire"`
	State            string     `json:"state"`
	NextFireTime     *time.Time `json:"next_fire_time,omitempty"`
	PreviousFireTime *time.Time `json:"previous_fire_time,omitempty"`
}

func ViewOf(entry core.ScheduleEntry) ScheduleView {
	view := ScheduleView{
		Name:    entry.Descriptor.Name,
		Group:   entry.Descriptor.Group,
		Trigger: entry.Trigger.Name,
		Cron:    entry.Trigger.Expression,
		Misfire: entry.Trigger.Misfire.String(),
		State:   entry.State.String(),
	}
	if t := entry.Trigger.NextFireTime; !t.IsZero() {
		view.NextFireTime = &t
	}
	if t := entry.Trigger.PreviousFireTime; !t.IsZero() {
		view.PreviousFireTime = &t
	}
	return view
}

type queryFunc[Q core.Query, R any] func(ctx context.Context, q Q) (R, error)

func (f queryFunc[Q, R]) Handle(ctx context.Context, q Q) (R, error) {
	return f(ctx, q)
}

func registerQueries(bus core.QueryBus, s core.Scheduler) error {
	return errors.Join(
		core.RegisterQuery[ListSchedules, []ScheduleView](bus, queryFunc[ListSchedules, []ScheduleView](
			func(_ context.Context, q ListSchedules) ([]ScheduleView, error) {
				entries := s.Jobs()
				if q.Group != "" {
					entries = s.Group(q.Group)
				}
				views := make([]ScheduleView, 0, len(entries))
				for _, entry := range entries {
					views = append(views, ViewOf(entry))
				}
				return views, nil
			})),
		core.RegisterQuery[GetSchedule, ScheduleView](bus, queryFunc[GetSchedule, ScheduleView](
			func(_ context.Context, q GetSchedule) (ScheduleView, error) {
				entry, ok := s.Get(q.Name)
				if !ok {
					return ScheduleView{}, fmt.Errorf("%w: %s", core.ErrJobNotFound, q.Name)
				}
				return ViewOf(entry), nil
			})),
	)
}

// Register binds the control commands and queries to s.
func Register(commands core.CommandBus, queries core.QueryBus, s core.Scheduler) error {
	return errors.Join(
		registerCommands(commands, s),
		registerQueries(queries, s),
	)
}
