package control_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Deepreo/kronos/core"
	kerrors "github.com/Deepreo/kronos/errors"
	"github.com/Deepreo/kronos/modules/command"
	"github.com/Deepreo/kronos/modules/control"
	"github.com/Deepreo/kronos/modules/query"
	"github.com/Deepreo/kronos/modules/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*scheduler.InMemoryScheduler, *command.InMemory, *query.InMemory) {
	t.Helper()
	s, err := scheduler.NewInMemoryScheduler(
		scheduler.WithClock(clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))),
		scheduler.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.ShutdownGracefully(0) })

	noop := core.JobFunc(func(context.Context) error { return nil })
	require.NoError(t, s.AddSchedule(noop, "daily", "reports", "0 0 6 * * ?"))
	require.NoError(t, s.AddSchedule(noop, "audit", "security", "0 */5 * * * ?"))

	commands, queries := command.NewInMemory(), query.NewInMemory()
	require.NoError(t, control.Register(commands, queries, s))
	return s, commands, queries
}

func TestCommands(t *testing.T) {
	s, commands, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, commands.Dispatch(ctx, control.PauseSchedule{Name: "daily"}))
	entry, _ := s.Get("daily")
	assert.Equal(t, core.JobPaused, entry.State)

	require.NoError(t, commands.Dispatch(ctx, control.ResumeSchedule{Name: "daily"}))
	entry, _ = s.Get("daily")
	assert.Equal(t, core.JobActive, entry.State)

	require.NoError(t, commands.Dispatch(ctx, control.RescheduleJob{Name: "daily", Cron: "0 30 7 * * ?", Misfire: "FIRE-NOW"}))
	entry, _ = s.Get("daily")
	assert.Equal(t, "0 30 7 * * ?", entry.Trigger.Expression)
	assert.Equal(t, core.MisfireFireNow, entry.Trigger.Misfire)

	err := commands.Dispatch(ctx, control.RescheduleJob{Name: "daily", Cron: "99 * * * *"})
	assert.ErrorIs(t, err, core.ErrInvalidCronSyntax)
	err = commands.Dispatch(ctx, control.RescheduleJob{Name: "daily", Cron: "@daily", Misfire: "sometimes"})
	assert.ErrorIs(t, err, core.ErrInvalidMisfirePolicy)

	require.NoError(t, commands.Dispatch(ctx, control.ExecuteJob{Name: "daily"}))
	require.NoError(t, commands.Dispatch(ctx, control.ExecuteGroup{Group: "security"}))
	require.NoError(t, commands.Dispatch(ctx, control.ExecuteAll{}))

	require.NoError(t, commands.Dispatch(ctx, control.RemoveSchedule{Name: "audit"}))
	_, ok := s.Get("audit")
	assert.False(t, ok)

	assert.ErrorIs(t, commands.Dispatch(ctx, control.PauseSchedule{Name: "audit"}), core.ErrJobNotFound)
	assert.ErrorIs(t, commands.Dispatch(ctx, control.PauseSchedule{}), control.ErrEmptyName)
}

func TestQueries(t *testing.T) {
	_, _, queries := setup(t)
	ctx := context.Background()

	all, err := core.ExecuteQuery[control.ListSchedules, []control.ScheduleView](ctx, queries, control.ListSchedules{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "audit", all[0].Name)
	assert.Equal(t, "daily", all[1].Name)

	reports, err := core.ExecuteQuery[control.ListSchedules, []control.ScheduleView](ctx, queries, control.ListSchedules{Group: "reports"})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	view, err := core.ExecuteQuery[control.GetSchedule, control.ScheduleView](ctx, queries, control.GetSchedule{Name: "audit"})
	require.NoError(t, err)
	assert.Equal(t, "security", view.Group)
	assert.Equal(t, "auditTrigger", view.Trigger)
	assert.Equal(t, "ACTIVE", view.State)
	assert.Equal(t, "ignore", view.Misfire)
	require.NotNil(t, view.NextFireTime)
	assert.True(t, view.NextFireTime.Equal(time.Date(2026, 5, 4, 10, 5, 0, 0, time.UTC)))
	assert.Nil(t, view.PreviousFireTime)

	_, err = core.ExecuteQuery[control.GetSchedule, control.ScheduleView](ctx, queries, control.GetSchedule{Name: "ghost"})
	assert.ErrorIs(t, err, core.ErrJobNotFound)
	assert.True(t, kerrors.IsNotFoundError(err))
}

type routes map[string]core.HandlerFunc

func (r routes) Run() error                     { return nil }
func (r routes) Shutdown(context.Context) error { return nil }
func (r routes) Use(...core.Middleware)         {}
func (r routes) Register(method, path string, handler core.HandlerFunc, _ func() any) {
	r[method+" "+path] = handler
}

func TestRegisterEndpoints(t *testing.T) {
	s, commands, queries := setup(t)
	server := routes{}
	control.RegisterEndpoints(server, commands, queries)

	assert.Len(t, server, 9)
	ctx := context.Background()

	res, err := server["POST /schedules/:name/pause"](ctx, &control.ScheduleRequest{Name: "daily"})
	require.NoError(t, err)
	assert.Equal(t, control.Ack{Action: core.ActionPaused, Target: "daily"}, res)
	entry, _ := s.Get("daily")
	assert.Equal(t, core.JobPaused, entry.State)

	res, err = server["GET /schedules"](ctx, &control.ListRequest{Group: "security"})
	require.NoError(t, err)
	views := res.([]control.ScheduleView)
	require.Len(t, views, 1)
	assert.Equal(t, "audit", views[0].Name)

	_, err = server["DELETE /schedules/:name"](ctx, &control.ScheduleRequest{Name: "ghost"})
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestRequestValidation(t *testing.T) {
	assert.ErrorIs(t, (&control.ScheduleRequest{Name: " "}).Validate(), control.ErrEmptyName)
	assert.NoError(t, (&control.ScheduleRequest{Name: "daily"}).Validate())
	assert.True(t, kerrors.IsValidationError((&control.GroupRequest{}).Validate()))
	assert.True(t, kerrors.IsValidationError((&control.RescheduleRequest{Name: "daily"}).Validate()))
	assert.NoError(t, (&control.RescheduleRequest{Name: "daily", Cron: "@daily"}).Validate())
}
