package auth

import (
	"context"
	"log/slog"

	"github.com/Deepreo/kronos/core"
	"go.elastic.co/apm/v2"
)

// Middleware authenticates admin requests using the token stored by
// WithToken. When roles are given the operator must hold at least one of them.
func Middleware(validator TokenValidator, logger *slog.Logger, roles ...string) core.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			span, ctx := apm.StartSpan(ctx, "auth.validate", "auth")
			op, err := authenticate(ctx, validator, roles)
			span.End()
			if err != nil {
				logger.Warn("admin request rejected", "error", err)
				return nil, err
			}
			return next(WithOperator(ctx, op), req)
		}
	}
}

func authenticate(ctx context.Context, validator TokenValidator, roles []string) (*Operator, error) {
	token := TokenFromContext(ctx)
	if token == "" {
		return nil, ErrMissingToken
	}
	op, err := validator.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if len(roles) > 0 && !op.HasAnyRole(roles...) {
		return nil, ErrPermissionDenied
	}
	return op, nil
}
