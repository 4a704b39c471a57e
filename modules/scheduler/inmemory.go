package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/modules/registry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMisfireThreshold = time.Minute
	storeTimeout            = 5 * time.Second
)

// InMemoryScheduler fires registered jobs according to their cron triggers.
// The registry is the only source of truth for schedules; a single timer loop
// decides when entries are due and hands them to the worker pool.
type InMemoryScheduler struct {
	registry         core.Registry
	clock            clockwork.Clock
	logger           *slog.Logger
	publisher        core.EventPublisher
	store            core.ScheduleStore
	sem              *semaphore.Weighted
	workers          int
	misfireThreshold time.Duration
	defaultGroup     string
	defaultMisfire   core.MisfirePolicy
	location         *time.Location

	middlewares []core.SchedulerMiddleware
	mwMu        sync.RWMutex

	// mu guards the lifecycle fields below.
	mu          sync.RWMutex
	state       core.SchedulerState
	startTimer  clockwork.Timer
	loopStarted bool

	hintMu   sync.Mutex
	hints    hintQueue
	wake     chan struct{}
	loopStop chan struct{}
	loopDone chan struct{}

	inflight   sync.WaitGroup
	pending    atomic.Int64
	poolCtx    context.Context
	poolCancel context.CancelFunc

	runMu   sync.Mutex
	running map[string]map[string]*execution
	closing bool

	shutdownOnce sync.Once
}

var _ core.Scheduler = (*InMemoryScheduler)(nil)

type Option func(*InMemoryScheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *InMemoryScheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(s *InMemoryScheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithRegistry(r core.Registry) Option {
	return func(s *InMemoryScheduler) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithWorkers bounds the number of concurrently running jobs. Zero means one
// goroutine per fire.
func WithWorkers(n int) Option {
	return func(s *InMemoryScheduler) {
		s.workers = n
	}
}

// WithMisfireThreshold sets how late a fire may be processed before the
// trigger's misfire policy applies.
func WithMisfireThreshold(d time.Duration) Option {
	return func(s *InMemoryScheduler) {
		s.misfireThreshold = d
	}
}

func WithEventPublisher(p core.EventPublisher) Option {
	return func(s *InMemoryScheduler) {
		s.publisher = p
	}
}

// WithStore persists pause state and trigger overrides made through the control plane.
func WithStore(store core.ScheduleStore) Option {
	return func(s *InMemoryScheduler) {
		s.store = store
	}
}

func WithDefaultGroup(group string) Option {
	return func(s *InMemoryScheduler) {
		if group != "" {
			s.defaultGroup = group
		}
	}
}

func WithDefaultMisfirePolicy(policy core.MisfirePolicy) Option {
	return func(s *InMemoryScheduler) {
		s.defaultMisfire = policy
	}
}

// WithLocation evaluates triggers in loc unless they set their own location.
func WithLocation(loc *time.Location) Option {
	return func(s *InMemoryScheduler) {
		s.location = loc
	}
}

func NewInMemoryScheduler(opts ...Option) (*InMemoryScheduler, error) {
	s := &InMemoryScheduler{
		registry:         registry.NewInMemoryRegistry(),
		clock:            clockwork.NewRealClock(),
		logger:           slog.Default(),
		misfireThreshold: DefaultMisfireThreshold,
		defaultGroup:     core.DefaultGroup,
		defaultMisfire:   core.MisfireIgnore,
		state:            core.StateCreated,
		wake:             make(chan struct{}, 1),
		loopStop:         make(chan struct{}),
		loopDone:         make(chan struct{}),
		running:          make(map[string]map[string]*execution),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", s.workers)
	}
	if s.misfireThreshold < 0 {
		return nil, fmt.Errorf("misfire threshold must not be negative, got %s", s.misfireThreshold)
	}
	if _, err := core.ParseMisfirePolicy(string(s.defaultMisfire)); err != nil {
		return nil, err
	}
	if s.workers > 0 {
		s.sem = semaphore.NewWeighted(int64(s.workers))
	}
	s.poolCtx, s.poolCancel = context.WithCancel(context.Background())
	return s, nil
}

func (s *InMemoryScheduler) Use(middleware ...core.SchedulerMiddleware) {
	s.mwMu.Lock()
	defer s.mwMu.Unlock()
	s.middlewares = append(s.middlewares, middleware...)
}

func (s *InMemoryScheduler) applyMiddlewares(fn core.JobFunc) core.JobFunc {
	s.mwMu.RLock()
	defer s.mwMu.RUnlock()
	chain := fn
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		chain = s.middlewares[i](chain)
	}
	return chain
}

func (s *InMemoryScheduler) State() core.SchedulerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *InMemoryScheduler) Get(name string) (core.ScheduleEntry, bool) {
	return s.registry.Get(name)
}

// Jobs returns every entry ordered by name.
func (s *InMemoryScheduler) Jobs() []core.ScheduleEntry {
	return s.entries(s.registry.ListAll())
}

// Group returns the entries of group ordered by name.
func (s *InMemoryScheduler) Group(group string) []core.ScheduleEntry {
	return s.entries(s.registry.ListByGroup(group))
}

func (s *InMemoryScheduler) entries(names []string) []core.ScheduleEntry {
	entries := make([]core.ScheduleEntry, 0, len(names))
	for _, name := range names {
		if entry, ok := s.registry.Get(name); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Registry exposes the backing registry, e.g. for metrics collectors.
func (s *InMemoryScheduler) Registry() core.Registry {
	return s.registry
}

func (s *InMemoryScheduler) publish(event core.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.Background(), event); err != nil {
		s.logger.Warn("failed to publish scheduler event", "event", event.EventName(), "error", err)
	}
}

func (s *InMemoryScheduler) baseEvent(name, group string) core.ScheduleEvent {
	return core.ScheduleEvent{
		ID:    uuid.NewString(),
		Job:   name,
		Group: group,
		At:    s.clock.Now(),
	}
}

func (s *InMemoryScheduler) persist(entry core.ScheduleEntry) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.Save(ctx, core.RecordOf(entry, s.clock.Now())); err != nil {
		s.logger.Error("failed to persist schedule", "job", entry.Descriptor.Name, "error", err)
	}
}

func (s *InMemoryScheduler) forget(name string) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.Delete(ctx, name); err != nil {
		s.logger.Error("failed to delete persisted schedule", "job", name, "error", err)
	}
}
