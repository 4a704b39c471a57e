package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Deepreo/kronos/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultNamespace = "kronos"
	DefaultPath      = "/metrics"

	KindScheduled = "scheduled"
	KindForced    = "forced"
)

var ErrRegisterMetric = errors.New("failed to register metric")

type Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// Collector exposes job execution metrics on its own registry.
type Collector struct {
	cfg Config

	runsTotal     *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	misfiresTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

var _ core.EventHandler[*core.JobMisfired] = (*Collector)(nil)

// NewCollector creates the collector. When jobs is not nil the number of
// registered jobs is exported as a gauge.
func NewCollector(cfg Config, jobs core.Registry) (*Collector, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}

	// Private registry so embedding applications keep the default one to themselves.
	registry := prometheus.NewRegistry()
	c := &Collector{cfg: cfg, registry: registry}

	c.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "job_runs_total",
			Help:      "Total number of job executions",
		},
		[]string{"job", "group", "kind"},
	)
	c.failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "job_failures_total",
			Help:      "Total number of job executions that returned an error or panicked",
		},
		[]string{"job", "group"},
	)
	c.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "job_duration_seconds",
			Help:      "Job execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"job", "group"},
	)
	c.inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "jobs_in_flight",
			Help:      "Number of job executions in progress",
		},
	)
	c.misfiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "job_misfires_total",
			Help:      "Total number of missed fire times",
		},
		[]string{"job", "group"},
	)

	collectors := []prometheus.Collector{
		c.runsTotal,
		c.failuresTotal,
		c.duration,
		c.inFlight,
		c.misfiresTotal,
	}
	if jobs != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "registered_jobs",
				Help:      "Number of jobs in the registry",
			},
			func() float64 { return float64(jobs.Len()) },
		))
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegisterMetric, err)
		}
	}
	return c, nil
}

// Middleware records every execution. Install it with Scheduler.Use.
func (c *Collector) Middleware() core.SchedulerMiddleware {
	return func(next core.JobFunc) core.JobFunc {
		return func(ctx context.Context) error {
			job, group, kind := "unknown", "unknown", KindScheduled
			if exec, ok := core.ExecutionFromContext(ctx); ok {
				job, group = exec.Job, exec.Group
				if exec.Forced {
					kind = KindForced
				}
			}

			c.inFlight.Inc()
			defer c.inFlight.Dec()
			start := time.Now()

			err := next(ctx)

			c.runsTotal.WithLabelValues(job, group, kind).Inc()
			c.duration.WithLabelValues(job, group).Observe(time.Since(start).Seconds())
			if err != nil {
				c.failuresTotal.WithLabelValues(job, group).Inc()
			}
			return err
		}
	}
}

// Handle counts a misfire. It is meant to be subscribed to the event bus.
func (c *Collector) Handle(_ context.Context, event *core.JobMisfired) error {
	c.misfiresTotal.WithLabelValues(event.Job, event.Group).Inc()
	return nil
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Path() string {
	return c.cfg.Path
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
