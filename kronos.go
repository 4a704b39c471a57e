package kronos

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/errors"
	"github.com/Deepreo/kronos/modules/auth"
	"github.com/Deepreo/kronos/modules/command"
	"github.com/Deepreo/kronos/modules/control"
	"github.com/Deepreo/kronos/modules/event"
	"github.com/Deepreo/kronos/modules/metrics"
	"github.com/Deepreo/kronos/modules/query"
	"github.com/Deepreo/kronos/modules/registry"
	"github.com/Deepreo/kronos/modules/scheduler"
	"github.com/Deepreo/kronos/modules/servers"
	"github.com/Deepreo/kronos/modules/store"
	"github.com/jonboulle/clockwork"
	"go.elastic.co/apm/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Application bundles the scheduler with its event bus, persistence, metrics
// and admin API.
type Application struct {
	cfg    *Config
	logger *slog.Logger

	scheduler *scheduler.InMemoryScheduler
	events    *event.Bus
	store     core.ScheduleStore
	metrics   *metrics.Collector
	commands  *command.InMemory
	queries   *query.InMemory
	server    *servers.HttpServer
	tokens    *auth.JWTTokenProvider

	shutdownTimeout time.Duration
	serving         atomic.Bool
}

type options struct {
	logger           *slog.Logger
	clock            clockwork.Clock
	store            core.ScheduleStore
	tracerProvider   trace.TracerProvider
	apmTracer        *apm.Tracer
	schedulerOptions []scheduler.Option
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithStore overrides the store selected by Config.Store.
func WithStore(s core.ScheduleStore) Option {
	return func(o *options) {
		o.store = s
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

func WithAPMTracer(tracer *apm.Tracer) Option {
	return func(o *options) {
		o.apmTracer = tracer
	}
}

// WithSchedulerOptions appends options after the ones derived from Config.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(o *options) {
		o.schedulerOptions = append(o.schedulerOptions, opts...)
	}
}

func New(ctx context.Context, cfg *Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}

	shutdownTimeout, err := cfg.Scheduler.ShutdownTimeoutDuration()
	if err != nil {
		return nil, invalidConfig(err)
	}
	schedOpts, err := cfg.Scheduler.Options()
	if err != nil {
		return nil, invalidConfig(err)
	}

	app := &Application{
		cfg:             cfg,
		logger:          o.logger,
		commands:        command.NewInMemory(),
		queries:         query.NewInMemory(),
		shutdownTimeout: shutdownTimeout,
	}

	app.store = o.store
	if app.store == nil {
		if app.store, err = openStore(ctx, cfg.Store); err != nil {
			return nil, err
		}
	}

	if err := app.build(cfg, o, schedOpts); err != nil {
		if app.store != nil {
			err = errors.Join(err, app.store.Close())
		}
		return nil, err
	}
	return app, nil
}

func (app *Application) build(cfg *Config, o *options, schedOpts []scheduler.Option) error {
	var err error
	if cfg.Events.Enabled {
		if app.events, err = event.NewBus(app.logger, cfg.Events.Config); err != nil {
			return errors.InfraError(fmt.Errorf("create event bus: %w", err))
		}
	}

	reg := registry.NewInMemoryRegistry()
	schedOpts = append(schedOpts,
		scheduler.WithRegistry(reg),
		scheduler.WithLogger(app.logger),
		scheduler.WithClock(o.clock),
	)
	if app.store != nil {
		schedOpts = append(schedOpts, scheduler.WithStore(app.store))
	}
	if app.events != nil {
		schedOpts = append(schedOpts, scheduler.WithEventPublisher(app.events))
	}
	if app.scheduler, err = scheduler.NewInMemoryScheduler(append(schedOpts, o.schedulerOptions...)...); err != nil {
		return invalidConfig(err)
	}

	if cfg.Metrics.Enabled {
		if app.metrics, err = metrics.NewCollector(cfg.Metrics, reg); err != nil {
			return err
		}
		app.scheduler.Use(app.metrics.Middleware())
		if app.events != nil {
			if err := core.SubscribeEvent[*core.JobMisfired](app.events, app.metrics); err != nil {
				return err
			}
		}
	}
	if cfg.Tracing.OpenTelemetry {
		app.scheduler.Use(scheduler.TracingMiddleware(o.tracerProvider))
	}
	if cfg.Tracing.ElasticAPM {
		app.scheduler.Use(scheduler.APMMiddleware(o.apmTracer))
	}

	if err := control.Register(app.commands, app.queries, app.scheduler); err != nil {
		return err
	}

	if cfg.Admin.Enabled {
		return app.buildAdmin(cfg.Admin, o.clock)
	}
	return nil
}

func (app *Application) buildAdmin(cfg AdminConfig, clock clockwork.Clock) error {
	server, err := servers.NewHttpServer(servers.WithConfig(&cfg.HTTP), servers.WithLogger(app.logger))
	if err != nil {
		return invalidConfig(err)
	}
	if cfg.Auth.Enabled {
		app.tokens, err = auth.NewJWTTokenProvider(cfg.Auth, clock)
		if err != nil {
			return err
		}
		server.Use(auth.Middleware(app.tokens, app.logger, cfg.Auth.RequiredRoles...))
	} else {
		app.logger.Warn("admin API is running without authentication")
	}
	control.RegisterEndpoints(server, app.commands, app.queries)
	if app.metrics != nil {
		server.Mount(app.metrics.Path(), app.metrics.Handler())
	}
	app.server = server
	return nil
}

func openStore(ctx context.Context, cfg StoreConfig) (core.ScheduleStore, error) {
	switch cfg.Driver {
	case StoreMemory:
		return store.NewMemory(), nil
	case StoreRedis:
		s, err := store.NewRedis(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StorePostgres:
		s, err := store.NewPostgres(ctx, &cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, nil
	}
}

func invalidConfig(err error) error {
	if errors.IsExtendError(err) {
		return err
	}
	return errors.ValidationError(err).WithCode("INVALID_CONFIG")
}

// Initialize registers the jobs of source and restores persisted state.
func (app *Application) Initialize(source core.JobSource) error {
	return app.scheduler.Initialize(source)
}

func (app *Application) Start(delay time.Duration) error {
	return app.scheduler.Start(delay)
}

// Run serves the event bus and the admin API until ctx is cancelled or one of
// them fails. It does not start the scheduler.
func (app *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if app.events != nil {
		g.Go(func() error {
			return app.events.Run(gctx)
		})
	}
	if app.server != nil {
		app.serving.Store(true)
		g.Go(func() error {
			app.logger.Info("admin API listening", "addr", app.server.Addr())
			return app.server.Run()
		})
		g.Go(func() error {
			<-gctx.Done()
			return app.stopServer()
		})
	}
	return g.Wait()
}

func (app *Application) stopServer() error {
	if app.server == nil || !app.serving.CompareAndSwap(true, false) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), servers.DefaultShutdownTimeout)
	defer cancel()
	return app.server.Shutdown(ctx)
}

// Shutdown stops the application using the configured shutdown timeout.
func (app *Application) Shutdown() error {
	return app.ShutdownGracefully(app.shutdownTimeout)
}

// ShutdownGracefully stops the scheduler first, waiting up to timeout for
// running jobs, then the admin API, the event bus and the store. Every step
// runs even when an earlier one fails.
func (app *Application) ShutdownGracefully(timeout time.Duration) error {
	var errs []error
	if err := app.scheduler.ShutdownGracefully(timeout); err != nil {
		errs = append(errs, err)
	}
	if err := app.stopServer(); err != nil {
		errs = append(errs, fmt.Errorf("stop admin API: %w", err))
	}
	if app.events != nil {
		if err := app.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	app.logger.Info("kronos stopped")
	return errors.Join(errs...)
}

func (app *Application) Scheduler() *scheduler.InMemoryScheduler {
	return app.scheduler
}

func (app *Application) Commands() core.CommandBus {
	return app.commands
}

func (app *Application) Queries() core.QueryBus {
	return app.queries
}

// Events returns the event bus, or nil when events are disabled.
func (app *Application) Events() *event.Bus {
	return app.events
}

// Metrics returns the collector, or nil when metrics are disabled.
func (app *Application) Metrics() *metrics.Collector {
	return app.metrics
}

// Server returns the admin API server, or nil when it is disabled.
func (app *Application) Server() *servers.HttpServer {
	return app.server
}

// Tokens issues operator tokens for the admin API. It is nil when admin
// authentication is disabled.
func (app *Application) Tokens() *auth.JWTTokenProvider {
	return app.tokens
}
