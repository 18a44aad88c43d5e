package core

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors used across the evaluation pipeline. Callers classify with
// errors.Is; wrapped variants carry the assertion or connection context.
var (
	// Assertion spec errors
	ErrMalformedAssertion      = errors.New("malformed assertion")
	ErrUnknownAssertionType    = errors.New("unknown assertion type")
	ErrUnsupportedSourceType   = errors.New("unsupported freshness source type")
	ErrUnsupportedColumnType   = errors.New("unsupported freshness column type")
	ErrUnsupportedScheduleUnit = errors.New("unsupported schedule unit")
	ErrInvalidCronExpression   = errors.New("invalid cron expression")

	// Connection errors
	ErrUnsupportedPlatform   = errors.New("unsupported data platform")
	ErrConnectionUnavailable = errors.New("connection unavailable")

	// Scheduler errors
	ErrEvaluationTimeout = errors.New("evaluation timed out")
	ErrSchedulerStopped  = errors.New("scheduler stopped")
	ErrSchedulerTimeout  = errors.New("scheduler stop timed out")
)

// WrapAssertionError wraps a pipeline error with the assertion context.
func WrapAssertionError(op string, assertionURN string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s assertion %q: %w", op, assertionURN, err)
}

// WrapConnectionError wraps a connection-related error with context.
func WrapConnectionError(op string, connectionURN string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s connection %q: %w", op, connectionURN, err)
}

// IsRetryableError checks if an error should trigger a retry. Malformed
// specs and unsupported variants are permanent; connection resolution and
// network failures are transient.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedAssertion) ||
		errors.Is(err, ErrUnknownAssertionType) ||
		errors.Is(err, ErrUnsupportedSourceType) ||
		errors.Is(err, ErrUnsupportedColumnType) ||
		errors.Is(err, ErrUnsupportedScheduleUnit) ||
		errors.Is(err, ErrUnsupportedPlatform) ||
		errors.Is(err, ErrInvalidCronExpression) {
		return false
	}

	return errors.Is(err, ErrConnectionUnavailable) ||
		errors.Is(err, ErrEvaluationTimeout) ||
		containsNetworkError(err)
}

// containsNetworkError checks if the error is network-related
func containsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	// Common network error patterns
	networkErrors := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"timed out",
		"temporary failure",
		"no such host",
		"network unreachable",
		"broken pipe",
	}

	for _, pattern := range networkErrors {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
