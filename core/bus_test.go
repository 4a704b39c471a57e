package core_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/Deepreo/kronos/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pauseCommand struct {
	Name string
}

func (c *pauseCommand) CommandID() string {
	return "pause:" + c.Name
}

type pauseHandler struct {
	paused []string
}

func (h *pauseHandler) Handle(ctx context.Context, cmd *pauseCommand) error {
	h.paused = append(h.paused, cmd.Name)
	return nil
}

type mapCommandBus struct {
	handlers map[reflect.Type]core.CommandHandlerFunc
}

func (b *mapCommandBus) Dispatch(ctx context.Context, cmd core.Command) error {
	handler, ok := b.handlers[reflect.TypeOf(cmd)]
	if !ok {
		return nil
	}
	return handler(ctx, cmd)
}

func (b *mapCommandBus) Register(cmdType reflect.Type, handler core.CommandHandlerFunc) error {
	if b.handlers == nil {
		b.handlers = make(map[reflect.Type]core.CommandHandlerFunc)
	}
	b.handlers[cmdType] = handler
	return nil
}

type countQuery struct{}

func (q *countQuery) QueryID() string {
	return "count"
}

type countHandler struct{}

func (h *countHandler) Handle(ctx context.Context, query *countQuery) (int, error) {
	return 3, nil
}

type mapQueryBus struct {
	handlers map[reflect.Type]core.QueryHandlerFunc
}

func (b *mapQueryBus) Execute(ctx context.Context, query core.Query) (any, error) {
	handler, ok := b.handlers[reflect.TypeOf(query)]
	if !ok {
		return "unexpected", nil
	}
	return handler(ctx, query)
}

func (b *mapQueryBus) Register(queryType reflect.Type, handler core.QueryHandlerFunc) error {
	if b.handlers == nil {
		b.handlers = make(map[reflect.Type]core.QueryHandlerFunc)
	}
	b.handlers[queryType] = handler
	return nil
}

type subscribeRecorder struct {
	subscribedType reflect.Type
	name           string
}

func (b *subscribeRecorder) Publish(ctx context.Context, event core.Event) error { return nil }
func (b *subscribeRecorder) Subscribe(prototype core.Event, handler core.EventHandler[core.Event]) error {
	b.subscribedType = reflect.TypeOf(prototype)
	b.name = prototype.EventName()
	return nil
}
func (b *subscribeRecorder) Run(ctx context.Context) error { return nil }

type misfireHandler struct{}

func (h *misfireHandler) Handle(ctx context.Context, event *core.JobMisfired) error {
	return nil
}

func TestRegisterCommand(t *testing.T) {
	bus := &mapCommandBus{}
	handler := &pauseHandler{}

	require.NoError(t, core.RegisterCommand[*pauseCommand](bus, handler))
	require.NoError(t, bus.Dispatch(context.Background(), &pauseCommand{Name: "report"}))
	assert.Equal(t, []string{"report"}, handler.paused)
}

func TestRegisterAndExecuteQuery(t *testing.T) {
	bus := &mapQueryBus{}
	require.NoError(t, core.RegisterQuery[*countQuery, int](bus, &countHandler{}))

	res, err := core.ExecuteQuery[*countQuery, int](context.Background(), bus, &countQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, res)
}

func TestExecuteQuery_WrongResponseType(t *testing.T) {
	bus := &mapQueryBus{}
	_, err := core.ExecuteQuery[*countQuery, int](context.Background(), bus, &countQuery{})
	assert.ErrorContains(t, err, "answered with string, want int")
}

func TestSubscribeEvent(t *testing.T) {
	bus := &subscribeRecorder{}
	require.NoError(t, core.SubscribeEvent[*core.JobMisfired](bus, &misfireHandler{}))

	assert.Equal(t, reflect.TypeOf(&core.JobMisfired{}), bus.subscribedType)
	assert.Equal(t, core.EventJobMisfired, bus.name)
}
