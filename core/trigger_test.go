package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Deepreo/kronos/core"
	commonErrors "github.com/Deepreo/kronos/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrigger(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		trigger, err := core.NewTrigger("  0 */5 * * * ?  ")
		require.NoError(t, err)
		assert.Equal(t, "0 */5 * * * ?", trigger.Expression)
		assert.Equal(t, core.MisfireIgnore, trigger.Misfire)
		assert.Empty(t, trigger.Name)
		assert.False(t, trigger.MayFireAgain())

		base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
		next, ok := trigger.Next(base)
		require.True(t, ok)
		assert.Equal(t, base.Add(5*time.Minute), next)
	})

	t.Run("options", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*60*60)
		trigger, err := core.NewTrigger("@daily",
			core.WithMisfirePolicy(core.MisfireFireNow),
			core.WithTriggerIdentity("nightly", "maintenance"),
			core.InLocation(loc),
		)
		require.NoError(t, err)
		assert.Equal(t, "nightly", trigger.Name)
		assert.Equal(t, "maintenance", trigger.Group)
		assert.Equal(t, core.MisfireFireNow, trigger.Misfire)
		assert.Equal(t, loc, trigger.Location())

		next, ok := trigger.Next(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 5, 4, 22, 0, 0, 0, time.UTC), next)
	})

	t.Run("invalid cron", func(t *testing.T) {
		_, err := core.NewTrigger("every five minutes")
		assert.ErrorIs(t, err, core.ErrInvalidCronSyntax)
		assert.True(t, commonErrors.IsValidationError(err))
	})

	t.Run("invalid misfire policy", func(t *testing.T) {
		_, err := core.NewTrigger("@hourly", core.WithMisfirePolicy("later"))
		assert.ErrorIs(t, err, core.ErrInvalidMisfirePolicy)
	})

	t.Run("zero trigger never fires", func(t *testing.T) {
		var trigger core.Trigger
		_, ok := trigger.Next(time.Now())
		assert.False(t, ok)
	})
}

func TestParseMisfirePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want core.MisfirePolicy
	}{
		{"", core.MisfireIgnore},
		{"IGNORE", core.MisfireIgnore},
		{"fire_now", core.MisfireFireNow},
		{"Fire-Now", core.MisfireFireNow},
		{" do_nothing ", core.MisfireDoNothing},
	}
	for _, tt := range tests {
		got, err := core.ParseMisfirePolicy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := core.ParseMisfirePolicy("smart")
	assert.ErrorIs(t, err, core.ErrInvalidMisfirePolicy)
	assert.Equal(t, "INVALID_MISFIRE_POLICY", commonErrors.GetCode(err))
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "CREATED", core.StateCreated.String())
	assert.Equal(t, "RUNNING", core.StateRunning.String())
	assert.Equal(t, "PAUSED", core.StatePaused.String())
	assert.Equal(t, "STOPPED", core.StateStopped.String())
	assert.Equal(t, "ACTIVE", core.JobActive.String())
	assert.Equal(t, "PAUSED", core.JobPaused.String())
}

func TestErrorTaxonomy(t *testing.T) {
	notFound := fmt.Errorf("%w: report", core.ErrJobNotFound)
	assert.True(t, errors.Is(notFound, core.ErrJobNotFound))
	assert.True(t, commonErrors.IsNotFoundError(notFound))

	assert.True(t, commonErrors.IsConflictError(core.ErrDuplicateJobName))
	assert.True(t, commonErrors.IsValidationError(core.ErrNegativeDelay))
	assert.Equal(t, "SHUTDOWN_TIMEOUT", commonErrors.GetCode(core.ErrShutdownTimeout))
}

func TestExecutionContext(t *testing.T) {
	_, ok := core.ExecutionFromContext(context.Background())
	assert.False(t, ok)

	exec := &core.Execution{ID: "abc", Job: "report", Group: core.DefaultGroup, Forced: true}
	got, ok := core.ExecutionFromContext(core.WithExecution(context.Background(), exec))
	require.True(t, ok)
	assert.Same(t, exec, got)
}

func TestInterruptible(t *testing.T) {
	called := false
	job := core.Interruptible(func(ctx context.Context) error {
		called = true
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.Operate(ctx), context.Canceled)
	assert.True(t, called)
	assert.NoError(t, job.Interrupt())

	var plain core.Job = core.JobFunc(func(context.Context) error { return nil })
	_, isInterruptible := plain.(core.InterruptibleJob)
	assert.False(t, isInterruptible)
}

func TestJobTable(t *testing.T) {
	table := core.JobTable{
		{Name: "report", Cron: "0 */5 * * * ?", Job: core.JobFunc(func(context.Context) error { return nil })},
		{Name: "cleanup", Group: "maintenance", Cron: "@daily", Job: core.JobFunc(func(context.Context) error { return nil })},
	}
	var source core.JobSource = table
	assert.Len(t, source.Definitions(), 2)
	assert.Equal(t, "cleanup", source.Definitions()[1].Name)
}

func TestRecordOf(t *testing.T) {
	trigger, err := core.NewTrigger("@hourly", core.WithMisfirePolicy(core.MisfireFireNow))
	require.NoError(t, err)
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	record := core.RecordOf(core.ScheduleEntry{
		Descriptor: core.JobDescriptor{Name: "report", Group: "reports"},
		Trigger:    *trigger,
		State:      core.JobPaused,
	}, now)

	assert.Equal(t, core.ScheduleRecord{
		Name:      "report",
		Group:     "reports",
		Cron:      "@hourly",
		Misfire:   core.MisfireFireNow,
		Paused:    true,
		UpdatedAt: now,
	}, record)
}
