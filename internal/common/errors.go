package common

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Stable error codes surfaced to callers.
const (
	CodeInvalidInput            = "INVALID_INPUT"
	CodeConfig                  = "CONFIG_ERROR"
	CodeInternal                = "INTERNAL"
	CodeInvalidTimeExpression   = "INVALID_TIME_EXPRESSION"
	CodeUnsupportedTimeRange    = "UNSUPPORTED_TIME_RANGE"
	CodeMalformedPlan           = "MALFORMED_PLAN"
	CodeUnsupportedQueryType    = "UNSUPPORTED_QUERY_TYPE"
	CodeCollaboratorUnavailable = "COLLABORATOR_UNAVAILABLE"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")

	ErrInvalidTimeExpression   = errors.New("invalid time expression")
	ErrUnsupportedTimeRange    = errors.New("unsupported time range")
	ErrMalformedPlan           = errors.New("malformed plan")
	ErrUnsupportedQueryType    = errors.New("unsupported query type")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func InvalidInput(format string, args ...any) *AppError {
	return NewAppError(CodeInvalidInput, fmt.Sprintf(format, args...), ErrInvalidInput)
}

func InvalidTimeExpression(format string, args ...any) *AppError {
	return NewAppError(CodeInvalidTimeExpression, fmt.Sprintf(format, args...), ErrInvalidTimeExpression)
}

func UnsupportedTimeRange(format string, args ...any) *AppError {
	return NewAppError(CodeUnsupportedTimeRange, fmt.Sprintf(format, args...), ErrUnsupportedTimeRange)
}

func MalformedPlan(format string, args ...any) *AppError {
	return NewAppError(CodeMalformedPlan, fmt.Sprintf(format, args...), ErrMalformedPlan)
}

func UnsupportedQueryType(queryType string) *AppError {
	return NewAppError(CodeUnsupportedQueryType, fmt.Sprintf("query type %q is not routable", queryType), ErrUnsupportedQueryType)
}

// CollaboratorUnavailable marks an infrastructure failure of an external dependency.
// Both the sentinel and the underlying error stay reachable through errors.Is.
func CollaboratorUnavailable(collaborator string, err error) *AppError {
	var app *AppError
	if errors.As(err, &app) && app.Code == CodeCollaboratorUnavailable {
		return app
	}
	return NewAppError(CodeCollaboratorUnavailable, collaborator+" unavailable", fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err))
}

func Internal(format string, args ...any) *AppError {
	return NewAppError(CodeInternal, fmt.Sprintf(format, args...), ErrInternal)
}

// CodeOf returns the code of the outermost AppError in the chain, or CodeInternal.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeCollaboratorUnavailable
	}
	return CodeInternal
}

// ToStatus converts an application error into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	msg := err.Error()
	var app *AppError
	if errors.As(err, &app) {
		msg = app.Code + ": " + app.Message
	}
	switch CodeOf(err) {
	case CodeInvalidInput, CodeInvalidTimeExpression, CodeMalformedPlan, CodeUnsupportedQueryType:
		return status.Error(codes.InvalidArgument, msg)
	case CodeUnsupportedTimeRange:
		return status.Error(codes.Unimplemented, msg)
	case CodeCollaboratorUnavailable:
		return status.Error(codes.Unavailable, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}

// InvalidArgumentError is a gRPC InvalidArgument status for hand-checked request fields.
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}
