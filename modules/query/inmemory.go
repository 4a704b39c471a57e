package query

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/errors"
)

var (
	ErrNoHandler        = errors.AppError(errors.New("no query handler")).WithCode("NO_QUERY_HANDLER")
	ErrDuplicateHandler = errors.ConflictError(errors.New("query handler already registered")).WithCode("DUPLICATE_QUERY_HANDLER")
)

type InMemory struct {
	handlers map[reflect.Type]core.QueryHandlerFunc
	mu       sync.RWMutex
}

var _ core.QueryBus = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		handlers: make(map[reflect.Type]core.QueryHandlerFunc),
	}
}

func (b *InMemory) Register(queryType reflect.Type, handler core.QueryHandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[queryType]; exists {
		return fmt.Errorf("%w: %v", ErrDuplicateHandler, queryType)
	}
	b.handlers[queryType] = handler
	return nil
}

func (b *InMemory) Execute(ctx context.Context, query core.Query) (any, error) {
	queryType := reflect.TypeOf(query)

	b.mu.RLock()
	handler, ok := b.handlers[queryType]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoHandler, queryType)
	}
	return handler(ctx, query)
}
