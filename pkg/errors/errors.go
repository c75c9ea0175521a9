// Package errors defines the error taxonomy shared by the similarity
// pipeline: data errors are surfaced immediately, transient errors are
// retried with backoff, critical worker errors restart the failing worker,
// and cancellation is terminal.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrData           = errors.New("data error")
	ErrTransient      = errors.New("transient error")
	ErrWorkerCritical = errors.New("worker critical error")
	ErrCancelled      = errors.New("cancelled")
	ErrShuttingDown   = errors.New("pool is shutting down")
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrInternal       = errors.New("internal error")
	ErrTimeout        = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Dataf returns an error wrapping ErrData.
func Dataf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrData, fmt.Sprintf(format, args...))
}

// Transientf returns an error wrapping ErrTransient.
func Transientf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransient, fmt.Sprintf(format, args...))
}

// Criticalf returns an error wrapping ErrWorkerCritical.
func Criticalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrWorkerCritical, fmt.Sprintf(format, args...))
}

func IsData(err error) bool      { return errors.Is(err, ErrData) }
func IsCritical(err error) bool  { return errors.Is(err, ErrWorkerCritical) }
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }

// IsRetryable reports whether err belongs to the transient class. Backend
// specific codes are checked by the caller-supplied extra classifiers.
func IsRetryable(err error, extra ...func(error) bool) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrData), errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout), errors.Is(err, ErrRateLimited):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	for _, fn := range extra {
		if fn(err) {
			return true
		}
	}
	return false
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrData), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrShuttingDown), errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrCancelled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
