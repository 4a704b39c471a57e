package command

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/errors"
)

var (
	ErrNoHandler        = errors.AppError(errors.New("no command handler")).WithCode("NO_COMMAND_HANDLER")
	ErrDuplicateHandler = errors.ConflictError(errors.New("command handler already registered")).WithCode("DUPLICATE_COMMAND_HANDLER")
)

// InMemory dispatches commands synchronously to the handler registered for
// their concrete type.
type InMemory struct {
	handlers map[reflect.Type]core.CommandHandlerFunc
	mu       sync.RWMutex
}

var _ core.CommandBus = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		handlers: make(map[reflect.Type]core.CommandHandlerFunc),
	}
}

func (b *InMemory) Dispatch(ctx context.Context, cmd core.Command) error {
	cmdType := reflect.TypeOf(cmd)

	b.mu.RLock()
	handler, ok := b.handlers[cmdType]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %v", ErrNoHandler, cmdType)
	}
	return handler(ctx, cmd)
}

// Register is used by core.RegisterCommand; call that instead.
func (b *InMemory) Register(cmdType reflect.Type, handler core.CommandHandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[cmdType]; exists {
		return fmt.Errorf("%w: %v", ErrDuplicateHandler, cmdType)
	}
	b.handlers[cmdType] = handler
	return nil
}
