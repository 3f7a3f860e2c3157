package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrLocked        = errors.New("file lock held")
	ErrDiskSpace     = errors.New("insufficient disk space")
	ErrCancelled     = errors.New("operation cancelled")
)

// ErrorClass partitions failures for retry decisions in the job queue.
type ErrorClass string

const (
	ClassPermanent ErrorClass = "permanent"
	ClassTransient ErrorClass = "transient"
	ClassFatal     ErrorClass = "fatal"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to the retry class the job queue should act on.
// Input and tool errors are permanent for the file; resource contention is
// transient; configuration mistakes are fatal for the whole run. Cancellation
// is reported as transient so a retried job starts clean.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassTransient
	case errors.Is(err, ErrConfiguration):
		return ClassFatal
	case errors.Is(err, ErrLocked),
		errors.Is(err, ErrDiskSpace),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrTransient),
		errors.Is(err, ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrExternalTool):
		return ClassPermanent
	default:
		return ClassPermanent
	}
}

// IsCancelled reports whether an error represents cancellation rather than failure.
func IsCancelled(err error) bool {
	return err != nil && (errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled))
}

// ErrorDetails carries the user-facing message extracted from a wrapped error.
type ErrorDetails struct {
	Message string
	Class   ErrorClass
}

// Details extracts presentation data from a wrapped error.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	return ErrorDetails{
		Message: strings.TrimSpace(err.Error()),
		Class:   Classify(err),
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
