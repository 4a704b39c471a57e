package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/Deepreo/kronos/core"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const DefaultPoisonTopic = "kronos.poison"

type Config struct {
	MaxRetries      int    `mapstructure:"max_retries"`
	InitialInterval string `mapstructure:"initial_interval"`
	MaxInterval     string `mapstructure:"max_interval"`
	PoisonTopic     string `mapstructure:"poison_topic"`
	Tracing         bool   `mapstructure:"tracing"`
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: (100 * time.Millisecond).String(),
		MaxInterval:     time.Second.String(),
		PoisonTopic:     DefaultPoisonTopic,
	}
}

// Bus is an in-process core.EventBus on a watermill go channel. Events are
// JSON encoded and routed by EventName. Subscribe before Run.
type Bus struct {
	router    *message.Router
	pubSub    *gochannel.GoChannel
	publisher message.Publisher
	logger    watermill.LoggerAdapter
	cfg       Config

	mu       sync.Mutex
	handlers int
}

var _ core.EventBus = (*Bus)(nil)

func NewBus(sl *slog.Logger, cfg Config) (*Bus, error) {
	if sl == nil {
		sl = slog.Default()
	}
	logger := watermill.NewSlogLogger(sl)
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, err
	}
	// PreserveContext keeps the publisher's context on the message so trace data reaches handlers.
	pubSub := gochannel.NewGoChannel(gochannel.Config{PreserveContext: true}, logger)

	publisher, err := TraceContextDecorator(pubSub)
	if err != nil {
		return nil, err
	}

	if cfg.PoisonTopic == "" {
		cfg.PoisonTopic = DefaultPoisonTopic
	}
	return &Bus{router: router, pubSub: pubSub, publisher: publisher, logger: logger, cfg: cfg}, nil
}

func (b *Bus) Use(middleware ...message.HandlerMiddleware) {
	b.router.AddMiddleware(middleware...)
}

func (b *Bus) Publish(ctx context.Context, event core.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := message.NewMessageWithContext(ctx, watermill.NewUUID(), payload)
	msg.Metadata.Set("event_name", event.EventName())
	return b.publisher.Publish(event.EventName(), msg)
}

// Subscribe routes events named like prototype to handler. Each message is
// decoded into a fresh value of prototype's type.
func (b *Bus) Subscribe(prototype core.Event, handler core.EventHandler[core.Event]) error {
	eventName := prototype.EventName()
	eventType := reflect.TypeOf(prototype)
	if eventType.Kind() == reflect.Ptr {
		eventType = eventType.Elem()
	}

	b.mu.Lock()
	b.handlers++
	handlerName := fmt.Sprintf("%s#%d", eventName, b.handlers)
	b.mu.Unlock()

	b.router.AddNoPublisherHandler(
		handlerName,
		eventName,
		b.pubSub,
		func(msg *message.Message) error {
			newEvent := reflect.New(eventType).Interface()
			if err := json.Unmarshal(msg.Payload, newEvent); err != nil {
				return err
			}
			evt, ok := newEvent.(core.Event)
			if !ok {
				return fmt.Errorf("%s does not implement core.Event", eventType)
			}
			return handler.Handle(msg.Context(), evt)
		},
	)
	return nil
}

// Run blocks until ctx is cancelled or the bus is closed.
func (b *Bus) Run(ctx context.Context) error {
	poisonQueueMiddleware, err := middleware.PoisonQueue(b.pubSub, b.cfg.PoisonTopic)
	if err != nil {
		return err
	}

	retryMiddleware := middleware.Retry{
		MaxRetries:      b.cfg.MaxRetries,
		InitialInterval: parseDuration(b.cfg.InitialInterval, 100*time.Millisecond),
		MaxInterval:     parseDuration(b.cfg.MaxInterval, time.Second),
		Multiplier:      2.0,
		Logger:          b.logger,
	}

	b.router.AddMiddleware(
		poisonQueueMiddleware,
		retryMiddleware.Middleware,
	)
	if b.cfg.Tracing {
		b.router.AddMiddleware(OTelMiddleware)
	}
	return b.router.Run(ctx)
}

// Running is closed once the router has started its handlers.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return err
	}
	return b.pubSub.Close()
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
