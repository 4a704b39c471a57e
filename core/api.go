package core

import (
	"context"
	"reflect"
)

// Request is decoded from an admin API call. Validate runs before the handler.
type Request interface {
	Validate() error
}

type EndpointHandler[R Request, Res any] interface {
	Handle(ctx context.Context, req R) (Res, error)
}

// HandlerFunc is an endpoint with its request and response types erased.
type HandlerFunc func(ctx context.Context, req any) (any, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Server is the transport behind the admin API. newRequest returns a fresh,
// addressable request value for every call.
type Server interface {
	Run() error
	Shutdown(ctx context.Context) error
	Use(middleware ...Middleware)
	Register(method, path string, handler HandlerFunc, newRequest func() any)
}

// APIError is the error body of a failed call. TraceID is set when the call
// was traced.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type BaseResponse[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

func RegisterEndpoint[R Request, Res any](server Server, method, path string, handler EndpointHandler[R, Res]) {
	reqType := typeOf[R]()
	newRequest := func() any {
		if reqType.Kind() == reflect.Pointer {
			return reflect.New(reqType.Elem()).Interface()
		}
		return reflect.New(reqType).Interface()
	}
	server.Register(method, path, func(ctx context.Context, req any) (any, error) {
		if r, ok := req.(R); ok {
			return handler.Handle(ctx, r)
		}
		// Value requests are decoded through a pointer.
		return handler.Handle(ctx, reflect.ValueOf(req).Elem().Interface().(R))
	}, newRequest)
}
