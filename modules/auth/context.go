package auth

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/Deepreo/kronos/errors"
)

// Operator is the authenticated caller of the admin API.
type Operator struct {
	Subject   string    `json:"subject"`
	Roles     []string  `json:"roles"`
	TokenID   string    `json:"token_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (o *Operator) HasRole(role string) bool {
	return slices.Contains(o.Roles, role)
}

func (o *Operator) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if o.HasRole(role) {
			return true
		}
	}
	return false
}

type contextKey string

const (
	operatorKey contextKey = "auth_operator"
	tokenKey    contextKey = "auth_token"
)

var (
	ErrOperatorNotFound = errors.AuthError(errors.New("operator not found in context")).WithCode("OPERATOR_NOT_FOUND")
	ErrMissingToken     = errors.AuthError(errors.New("missing bearer token")).WithCode("MISSING_TOKEN")
	ErrInvalidToken     = errors.AuthError(errors.New("invalid token")).WithCode("INVALID_TOKEN")
	ErrPermissionDenied = errors.PermissionError(errors.New("permission denied")).WithCode("PERMISSION_DENIED")
)

// WithToken stores the raw Authorization header value.
func WithToken(ctx context.Context, header string) context.Context {
	return context.WithValue(ctx, tokenKey, header)
}

// TokenFromContext returns the token stored by WithToken with any "Bearer "
// prefix removed.
func TokenFromContext(ctx context.Context) string {
	header, _ := ctx.Value(tokenKey).(string)
	header = strings.TrimSpace(header)
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return header
}

func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

func FromContext(ctx context.Context) (*Operator, error) {
	op, ok := ctx.Value(operatorKey).(*Operator)
	if !ok || op == nil {
		return nil, ErrOperatorNotFound
	}
	return op, nil
}
