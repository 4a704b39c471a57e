package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/modules/metrics"
	"github.com/Deepreo/kronos/modules/registry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, c *metrics.Collector, forced bool, err error) {
	t.Helper()
	ctx := core.WithExecution(context.Background(), &core.Execution{
		ID:     "exec",
		Job:    "report",
		Group:  "reports",
		Forced: forced,
	})
	job := c.Middleware()(func(context.Context) error { return err })
	assert.Equal(t, err, job(ctx))
}

func TestCollector_Middleware(t *testing.T) {
	c, err := metrics.NewCollector(metrics.Config{}, nil)
	require.NoError(t, err)

	run(t, c, false, nil)
	run(t, c, false, errors.New("disk full"))
	run(t, c, true, nil)

	expected := `
# HELP kronos_job_runs_total Total number of job executions
# TYPE kronos_job_runs_total counter
kronos_job_runs_total{group="reports",job="report",kind="forced"} 1
kronos_job_runs_total{group="reports",job="report",kind="scheduled"} 2
# HELP kronos_job_failures_total Total number of job executions that returned an error or panicked
# TYPE kronos_job_failures_total counter
kronos_job_failures_total{group="reports",job="report"} 1
# HELP kronos_jobs_in_flight Number of job executions in progress
# TYPE kronos_jobs_in_flight gauge
kronos_jobs_in_flight 0
`
	assert.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"kronos_job_runs_total", "kronos_job_failures_total", "kronos_jobs_in_flight"))
	series, err := testutil.GatherAndCount(c.Registry(), "kronos_job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestCollector_Misfires(t *testing.T) {
	c, err := metrics.NewCollector(metrics.Config{Namespace: "sched"}, nil)
	require.NoError(t, err)

	misfire := &core.JobMisfired{ScheduleEvent: core.ScheduleEvent{Job: "report", Group: "reports"}}
	require.NoError(t, c.Handle(context.Background(), misfire))
	require.NoError(t, c.Handle(context.Background(), misfire))

	expected := `
# HELP sched_job_misfires_total Total number of missed fire times
# TYPE sched_job_misfires_total counter
sched_job_misfires_total{group="reports",job="report"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "sched_job_misfires_total"))
}

func TestCollector_RegisteredJobs(t *testing.T) {
	jobs := registry.NewInMemoryRegistry()
	c, err := metrics.NewCollector(metrics.Config{}, jobs)
	require.NoError(t, err)

	trigger, err := core.NewTrigger("@daily")
	require.NoError(t, err)
	for _, name := range []string{"a", "b"} {
		require.NoError(t, jobs.Insert(name, core.ScheduleEntry{
			Descriptor: core.JobDescriptor{Name: name, Group: core.DefaultGroup, Job: core.JobFunc(func(context.Context) error { return nil })},
			Trigger:    *trigger,
		}))
	}

	expected := `
# HELP kronos_registered_jobs Number of jobs in the registry
# TYPE kronos_registered_jobs gauge
kronos_registered_jobs 2
`
	assert.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "kronos_registered_jobs"))
}

func TestCollector_Handler(t *testing.T) {
	c, err := metrics.NewCollector(metrics.Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, metrics.DefaultPath, c.Path())
	run(t, c, false, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `kronos_job_runs_total{group="reports",job="report",kind="scheduled"} 1`)
}
