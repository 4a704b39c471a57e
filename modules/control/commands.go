package control

import (
	"context"
	"fmt"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/errors"
)

type PauseSchedule struct {
	Name string
}

func (c PauseSchedule) CommandID() string { return "pause:" + c.Name }

type ResumeSchedule struct {
	Name string
}

func (c ResumeSchedule) CommandID() string { return "resume:" + c.Name }

type RemoveSchedule struct {
	Name string
}

func (c RemoveSchedule) CommandID() string { return "remove:" + c.Name }

// RescheduleJob replaces the trigger of Name. An empty Misfire keeps the
// default policy.
type RescheduleJob struct {
	Name    string
	Cron    string
	Misfire string
}

func (c RescheduleJob) CommandID() string { return "reschedule:" + c.Name }

type ExecuteJob struct {
	Name string
}

func (c ExecuteJob) CommandID() string { return "execute:" + c.Name }

type ExecuteGroup struct {
	Group string
}

func (c ExecuteGroup) CommandID() string { return "execute-group:" + c.Group }

type ExecuteAll struct{}

func (ExecuteAll) CommandID() string { return "execute-all" }

var ErrEmptyName = errors.ValidationError(errors.New("job name is required")).WithCode("EMPTY_JOB_NAME")

type commandFunc[C core.Command] func(ctx context.Context, cmd C) error

func (f commandFunc[C]) Handle(ctx context.Context, cmd C) error {
	return f(ctx, cmd)
}

func registerCommands(bus core.CommandBus, s core.Scheduler) error {
	byName := func(op func(string) error) func(string) error {
		return func(name string) error {
			if name == "" {
				return ErrEmptyName
			}
			return op(name)
		}
	}
	pause, resume, remove, execute := byName(s.PauseSchedule), byName(s.ResumeSchedule), byName(s.RemoveSchedule), byName(s.ExecuteJob)

	return errors.Join(
		core.RegisterCommand[PauseSchedule](bus, commandFunc[PauseSchedule](func(_ context.Context, c PauseSchedule) error {
			return pause(c.Name)
		})),
		core.RegisterCommand[ResumeSchedule](bus, commandFunc[ResumeSchedule](func(_ context.Context, c ResumeSchedule) error {
			return resume(c.Name)
		})),
		core.RegisterCommand[RemoveSchedule](bus, commandFunc[RemoveSchedule](func(_ context.Context, c RemoveSchedule) error {
			return remove(c.Name)
		})),
		core.RegisterCommand[ExecuteJob](bus, commandFunc[ExecuteJob](func(_ context.Context, c ExecuteJob) error {
			return execute(c.Name)
		})),
		core.RegisterCommand[ExecuteGroup](bus, commandFunc[ExecuteGroup](func(_ context.Context, c ExecuteGroup) error {
			return s.ExecuteGroupJob(c.Group)
		})),
		core.RegisterCommand[ExecuteAll](bus, commandFunc[ExecuteAll](func(context.Context, ExecuteAll) error {
			return s.ExecuteAllJob()
		})),
		core.RegisterCommand[RescheduleJob](bus, commandFunc[RescheduleJob](func(_ context.Context, c RescheduleJob) error {
			if c.Name == "" {
				return ErrEmptyName
			}
			policy, err := core.ParseMisfirePolicy(c.Misfire)
			if err != nil {
				return err
			}
			var opts []core.TriggerOption
			if c.Misfire != "" {
				opts = append(opts, core.WithMisfirePolicy(policy))
			}
			trigger, err := core.NewTrigger(c.Cron, opts...)
			if err != nil {
				return fmt.Errorf("reschedule %q: %w", c.Name, err)
			}
			return s.RescheduleJob(c.Name, trigger)
		})),
	)
}
