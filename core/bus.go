package core

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// Commands and queries are routed by their concrete type. Register with
// RegisterCommand and RegisterQuery rather than calling the bus directly.

// Command asks the scheduler to change state.
type Command interface {
	CommandID() string
}

type CommandHandler[C Command] interface {
	Handle(ctx context.Context, cmd C) error
}

type CommandHandlerFunc func(ctx context.Context, cmd Command) error

type CommandBus interface {
	Dispatch(ctx context.Context, cmd Command) error
	Register(cmdType reflect.Type, handler CommandHandlerFunc) error
}

func RegisterCommand[C Command, H CommandHandler[C]](bus CommandBus, handler H) error {
	return bus.Register(typeOf[C](), func(ctx context.Context, cmd Command) error {
		return handler.Handle(ctx, cmd.(C))
	})
}

// Query reads scheduler state without changing it.
type Query interface {
	QueryID() string
}

type QueryHandler[Q Query, R any] interface {
	Handle(ctx context.Context, query Q) (R, error)
}

type QueryHandlerFunc func(ctx context.Context, query Query) (any, error)

type QueryBus interface {
	Execute(ctx context.Context, query Query) (any, error)
	Register(queryType reflect.Type, handler QueryHandlerFunc) error
}

func RegisterQuery[Q Query, R any](bus QueryBus, handler QueryHandler[Q, R]) error {
	return bus.Register(typeOf[Q](), func(ctx context.Context, query Query) (any, error) {
		return handler.Handle(ctx, query.(Q))
	})
}

// ExecuteQuery runs q on bus and asserts the result to R. A nil result is the
// zero R.
func ExecuteQuery[Q Query, R any](ctx context.Context, bus QueryBus, q Q) (R, error) {
	var zero R
	res, err := bus.Execute(ctx, q)
	if err != nil || res == nil {
		return zero, err
	}
	typed, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("query %T answered with %T, want %T", q, res, zero)
	}
	return typed, nil
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Event is a scheduler lifecycle fact, published after it happened.
type Event interface {
	EventID() string
	EventName() string
	OccurredOn() time.Time
}

type EventHandler[E Event] interface {
	Handle(ctx context.Context, event E) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventBus delivers events by name. Subscribe takes a prototype whose
// EventName selects the topic.
type EventBus interface {
	EventPublisher
	Subscribe(prototype Event, handler EventHandler[Event]) error
	Run(ctx context.Context) error
}

// SubscribeEvent subscribes handler to events of type E, usually a pointer to
// one of the event structs.
func SubscribeEvent[E Event](bus EventBus, handler EventHandler[E]) error {
	prototype := newPrototype[E]()
	return bus.Subscribe(prototype, eventAdapter[E]{handler: handler})
}

func newPrototype[E Event]() E {
	var zero E
	if t := typeOf[E](); t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface().(E)
	}
	return zero
}

type eventAdapter[E Event] struct {
	handler EventHandler[E]
}

func (a eventAdapter[E]) Handle(ctx context.Context, event Event) error {
	return a.handler.Handle(ctx, event.(E))
}
