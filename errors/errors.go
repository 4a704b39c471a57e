package errors

import (
	errs "errors"
	"fmt"
	"runtime"
	"strings"
)

type ErrorLevel string

func (e ErrorLevel) String() string {
	return string(e)
}

const (
	ERR_INFRASTRUCTURE ErrorLevel = "infrastructure"
	ERR_APPLICATION    ErrorLevel = "application"
	ERR_DOMAIN         ErrorLevel = "domain"
	ERR_VALIDATION     ErrorLevel = "validation"
	ERR_NOT_FOUND      ErrorLevel = "not_found"
	ERR_CONFLICT       ErrorLevel = "conflict"
	ERR_UNKNOWN        ErrorLevel = "unknown"
	ERR_AUTH           ErrorLevel = "auth"
	ERR_PERMISSION     ErrorLevel = "permission"
)

type ExtendError struct {
	Level      ErrorLevel     `json:"level"`
	Err        error          `json:"error"`
	Code       string         `json:"code,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	StackTrace string         `json:"-"`
}

func (e *ExtendError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	msg := e.Err.Error()
	if e.Code != "" {
		msg = fmt.Sprintf("[%s] %s", e.Code, msg)
	}
	return msg
}

func (e *ExtendError) Unwrap() error {
	return e.Err
}

func (e *ExtendError) WithCode(code string) *ExtendError {
	e.Code = code
	return e
}

func (e *ExtendError) WithMetadata(key string, value any) *ExtendError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

func New(message string) error {
	return errs.New(message)
}

func Is(target, err error) bool {
	return errs.Is(err, target)
}

func IsExtendError(err error) bool {
	var extendErr *ExtendError
	return errs.As(err, &extendErr)
}

func As(err error, target interface{}) bool {
	return errs.As(err, target)
}

// Join wraps errs.Join so callers only import this package.
func Join(errors ...error) error {
	return errs.Join(errors...)
}

func captureStackTrace() string {
	var sb strings.Builder
	// Skip 3 frames: captureStackTrace, wrap, and the caller of wrap
	for i := 3; i < 15; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fmt.Fprintf(&sb, "%s:%d\n", file, line)
	}
	return sb.String()
}

func wrap(err error, level ErrorLevel) *ExtendError {
	if extendErr, ok := err.(*ExtendError); ok {
		return extendErr
	}
	return &ExtendError{
		Level:      level,
		Err:        err,
		StackTrace: captureStackTrace(),
	}
}

func InfraError(err error) *ExtendError {
	return wrap(err, ERR_INFRASTRUCTURE)
}

func AppError(err error) *ExtendError {
	return wrap(err, ERR_APPLICATION)
}

func DomainError(err error) *ExtendError {
	return wrap(err, ERR_DOMAIN)
}

func ValidationError(err error) *ExtendError {
	return wrap(err, ERR_VALIDATION)
}

func NotFoundError(err error) *ExtendError {
	return wrap(err, ERR_NOT_FOUND)
}

func ConflictError(err error) *ExtendError {
	return wrap(err, ERR_CONFLICT)
}

func UnknownError(err error) *ExtendError {
	return wrap(err, ERR_UNKNOWN)
}

func AuthError(err error) *ExtendError {
	return wrap(err, ERR_AUTH)
}

func PermissionError(err error) *ExtendError {
	return wrap(err, ERR_PERMISSION)
}

// GetLevel returns the level of the outermost ExtendError in err's chain.
func GetLevel(err error) ErrorLevel {
	var extendErr *ExtendError
	if errs.As(err, &extendErr) && extendErr != nil {
		return extendErr.Level
	}
	return ERR_UNKNOWN
}

// GetCode returns the code of the outermost ExtendError in err's chain, or "".
func GetCode(err error) string {
	var extendErr *ExtendError
	if errs.As(err, &extendErr) && extendErr != nil {
		return extendErr.Code
	}
	return ""
}

func IsInfraError(err error) bool {
	return GetLevel(err) == ERR_INFRASTRUCTURE
}
func IsAppError(err error) bool {
	return GetLevel(err) == ERR_APPLICATION
}
func IsAuthError(err error) bool {
	return GetLevel(err) == ERR_AUTH
}
func IsPermissionError(err error) bool {
	return GetLevel(err) == ERR_PERMISSION
}
func IsDomainError(err error) bool {
	return GetLevel(err) == ERR_DOMAIN
}
func IsNotFoundError(err error) bool {
	return GetLevel(err) == ERR_NOT_FOUND
}
func IsConflictError(err error) bool {
	return GetLevel(err) == ERR_CONFLICT
}

func IsValidationError(err error) bool {
	return GetLevel(err) == ERR_VALIDATION
}
func IsUnknownError(err error) bool {
	return GetLevel(err) == ERR_UNKNOWN
}
