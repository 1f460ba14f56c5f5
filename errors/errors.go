// Package errors provides error classification and the sentinel errors of the
// semflow runtime. Every failure returned by the runtime wraps one of the
// sentinels below, so callers can match on them with errors.Is.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c360/semflow/pkg/retry"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or a rejected graph edit
	ErrorInvalid
	// ErrorFatal represents broken invariants; the object involved must not be reused
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Construction errors
var (
	ErrDuplicateName     = errors.New("duplicate name")
	ErrDuplicateID       = errors.New("duplicate process id")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrHandlerNotLoaded  = errors.New("handler not loaded")
	ErrUnknownType       = errors.New("unknown type")
	ErrDuplicateType     = errors.New("duplicate type")
	ErrTypeCycle         = errors.New("type inheritance cycle")
	ErrReservedAttribute = errors.New("reserved attribute")
	ErrIDExhausted       = errors.New("process id space exhausted")
	ErrUnknownPort       = errors.New("unknown port")
	ErrUnknownProcess    = errors.New("unknown process")
)

// Connection errors
var (
	ErrIncompatibleType    = errors.New("incompatible port types")
	ErrConnectionFull      = errors.New("valued input already connected")
	ErrDuplicateConnection = errors.New("duplicate connection")
	ErrPassThroughCycle    = errors.New("pass-through cycle")
	ErrWrongConnectionKind = errors.New("operation not supported by connection kind")
)

// Load errors
var (
	ErrUnknownLibrary = errors.New("unknown library")
	ErrUnknownModule  = errors.New("unknown module")
	ErrModuleKind     = errors.New("module has wrong kind")
)

// Document errors
var (
	ErrMalformedReference = errors.New("malformed port reference")
	ErrInvalidDocument    = errors.New("invalid graph document")
)

// Invariant errors
var (
	ErrInvariantViolation = errors.New("invariant violation")
	ErrAlreadyDeleted     = errors.New("already deleted")
)

// Lifecycle and infrastructure errors
var (
	ErrAlreadyStarted     = errors.New("already started")
	ErrNotStarted         = errors.New("not started")
	ErrShuttingDown       = errors.New("shutting down")
	ErrNoConnection       = errors.New("no connection available")
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrKeyNotFound        = errors.New("key not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrMissingConfig      = errors.New("missing required configuration")
	ErrCircuitOpen        = errors.New("circuit breaker open")
)

var invalidSentinels = []error{
	ErrDuplicateName, ErrDuplicateID, ErrInvalidParameters, ErrHandlerNotLoaded,
	ErrUnknownType, ErrDuplicateType, ErrTypeCycle, ErrReservedAttribute,
	ErrIDExhausted, ErrUnknownPort, ErrUnknownProcess,
	ErrIncompatibleType, ErrConnectionFull, ErrDuplicateConnection,
	ErrPassThroughCycle, ErrWrongConnectionKind,
	ErrUnknownLibrary, ErrUnknownModule, ErrModuleKind,
	ErrMalformedReference, ErrInvalidDocument,
}

var fatalSentinels = []error{
	ErrInvariantViolation, ErrAlreadyDeleted, ErrInvalidConfig, ErrMissingConfig,
}

var transientSentinels = []error{
	ErrConnectionLost, ErrConnectionTimeout, ErrStorageUnavailable, ErrCircuitOpen,
	ErrNoConnection, context.DeadlineExceeded, context.Canceled,
}

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}
	if matchesAny(err, invalidSentinels) || matchesAny(err, fatalSentinels) {
		return false
	}
	if matchesAny(err, transientSentinels) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "network", "temporary", "unavailable", "connection refused"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// IsFatal checks if an error is fatal
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}
	if matchesAny(err, fatalSentinels) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"fatal", "panic", "corrupted", "out of memory"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}
	return matchesAny(err, invalidSentinels)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorTransient
	case IsInvalid(err):
		return ErrorInvalid
	case IsFatal(err):
		return ErrorFatal
	default:
		return ErrorTransient
	}
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Detail attaches a formatted detail to a sentinel while keeping it matchable:
// Detail(ErrUnknownType, "type %q", name) reads `unknown type: type "x"`.
func Detail(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// RetryConfig defines configuration for retry operations
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the retry configuration used for module fetches
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ShouldRetry determines if an error should be retried based on config
func (rc RetryConfig) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= rc.MaxRetries {
		return false
	}
	return IsTransient(err)
}

// ToRetryConfig converts to the retry package's Config. MaxRetries counts
// additional attempts, so the total is one more.
func (rc RetryConfig) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  rc.MaxRetries + 1,
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.BackoffFactor,
		AddJitter:    true,
	}
}

// Retry runs fn under rc, retrying only transient failures. Any other failure
// ends the loop immediately and is returned unwrapped.
func Retry(ctx context.Context, rc RetryConfig, fn func() error) error {
	var permanent error
	err := retry.Do(ctx, rc.ToRetryConfig(), func() error {
		err := fn()
		if err != nil && !IsTransient(err) {
			permanent = err
			return retry.NonRetryable(err)
		}
		return err
	})
	if permanent != nil {
		return permanent
	}
	return err
}

// Is reports whether any error in err's tree matches target
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's tree that matches target
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error with the given text
func New(text string) error { return errors.New(text) }

// Join wraps the given errors into one
func Join(errs ...error) error { return errors.Join(errs...) }
