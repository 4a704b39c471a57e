package control

import (
	"context"
	"strings"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/errors"
)

type ScheduleRequest struct {
	Name string `params:"name"`
}

func (r *ScheduleRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

type GroupRequest struct {
	Group string `params:"group"`
}

func (r *GroupRequest) Validate() error {
	if strings.TrimSpace(r.Group) == "" {
		return errors.ValidationError(errors.New("group is required")).WithCode("EMPTY_GROUP")
	}
	return nil
}

type ListRequest struct {
	Group string `query:"group"`
}

func (r *ListRequest) Validate() error { return nil }

type RescheduleRequest struct {
	Name    string `params:"name"`
	Cron    string `json:"cron"`
	Misfire string `json:"misfire"`
}

func (r *RescheduleRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(r.Cron) == "" {
		return errors.ValidationError(errors.New("cron is required")).WithCode("EMPTY_CRON")
	}
	return nil
}

type EmptyRequest struct{}

func (r *EmptyRequest) Validate() error { return nil }

// Ack is returned by endpoints that only change state.
type Ack struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

type endpoint[R core.Request, Res any] func(ctx context.Context, req R) (Res, error)

func (f endpoint[R, Res]) Handle(ctx context.Context, req R) (Res, error) {
	return f(ctx, req)
}

// RegisterEndpoints exposes the control commands and queries on server.
func RegisterEndpoints(server core.Server, commands core.CommandBus, queries core.QueryBus) {
	send := func(ctx context.Context, action, target string, cmd core.Command) (Ack, error) {
		if err := commands.Dispatch(ctx, cmd); err != nil {
			return Ack{}, err
		}
		return Ack{Action: action, Target: target}, nil
	}

	core.RegisterEndpoint[*ListRequest, []ScheduleView](server, "GET", "/schedules", endpoint[*ListRequest, []ScheduleView](
		func(ctx context.Context, req *ListRequest) ([]ScheduleView, error) {
			return core.ExecuteQuery[ListSchedules, []ScheduleView](ctx, queries, ListSchedules{Group: req.Group})
		}))
	core.RegisterEndpoint[*ScheduleRequest, ScheduleView](server, "GET", "/schedules/:name", endpoint[*ScheduleRequest, ScheduleView](
		func(ctx context.Context, req *ScheduleRequest) (ScheduleView, error) {
			return core.ExecuteQuery[GetSchedule, ScheduleView](ctx, queries, GetSchedule{Name: req.Name})
		}))

	core.RegisterEndpoint[*EmptyRequest, Ack](server, "POST", "/schedules/execute", endpoint[*EmptyRequest, Ack](
		func(ctx context.Context, _ *EmptyRequest) (Ack, error) {
			return send(ctx, "executed", "", ExecuteAll{})
		}))
	core.RegisterEndpoint[*ScheduleRequest, Ack](server, "POST", "/schedules/:name/pause", endpoint[*ScheduleRequest, Ack](
		func(ctx context.Context, req *ScheduleRequest) (Ack, error) {
			return send(ctx, core.ActionPaused, req.Name, PauseSchedule{Name: req.Name})
		}))
	core.RegisterEndpoint[*ScheduleRequest, Ack](server, "POST", "/schedules/:name/resume", endpoint[*ScheduleRequest, Ack](
		func(ctx context.Context, req *ScheduleRequest) (Ack, error) {
			return send(ctx, core.ActionResumed, req.Name, ResumeSchedule{Name: req.Name})
		}))
	core.RegisterEndpoint[*ScheduleRequest, Ack](server, "POST", "/schedules/:name/execute", endpoint[*ScheduleRequest, Ack](
		func(ctx context.Context, req *ScheduleRequest) (Ack, error) {
			return send(ctx, "executed", req.Name, ExecuteJob{Name: req.Name})
		}))
	core.RegisterEndpoint[*RescheduleRequest, Ack](server, "PUT", "/schedules/:name/trigger", endpoint[*RescheduleRequest, Ack](
		func(ctx context.Context, req *RescheduleRequest) (Ack, error) {
			return send(ctx, core.ActionRescheduled, req.Name, RescheduleJob{Name: req.Name, Cron: req.Cron, Misfire: req.Misfire})
		}))
	core.RegisterEndpoint[*ScheduleRequest, Ack](server, "DELETE", "/schedules/:name", endpoint[*ScheduleRequest, Ack](
		func(ctx context.Context, req *ScheduleRequest) (Ack, error) {
			return send(ctx, "removed", req.Name, RemoveSchedule{Name: req.Name})
		}))
	core.RegisterEndpoint[*GroupRequest, Ack](server, "POST", "/groups/:group/execute", endpoint[*GroupRequest, Ack](
		func(ctx context.Context, req *GroupRequest) (Ack, error) {
			return send(ctx, "executed", req.Group, ExecuteGroup{Group: req.Group})
		}))
}
