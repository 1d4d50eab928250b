// Package apperr defines the error kinds surfaced by the reward economy.
//
// Expected outcomes (validation, not found, insufficient funds, suspension,
// rate limiting, fraud blocks) carry enough detail for the caller to act.
// Storage and internal failures keep their cause for logging but render a
// generic message.
package apperr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSuspended         = errors.New("account suspended")
	ErrRateLimited       = errors.New("rate limited")
	ErrFraudBlocked      = errors.New("action blocked by fraud detection")
	ErrInProgress        = errors.New("operation already in progress")
	ErrStorage           = errors.New("storage error")
	ErrInternal          = errors.New("internal error")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// Validation returns a validation error with the given message.
func Validation(format string, args ...any) error {
	return &kindError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// NotFound returns a not-found error naming the missing entity.
func NotFound(entity string) error {
	return &kindError{kind: ErrNotFound, msg: entity + " not found"}
}

// InProgress returns a conflict error for a concurrently running operation.
func InProgress(format string, args ...any) error {
	return &kindError{kind: ErrInProgress, msg: fmt.Sprintf(format, args...)}
}

// StorageError wraps a persistence failure. Error() never exposes the cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return ErrStorage.Error() }

// Unwrap exposes both the kind and the cause.
func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// Cause returns the underlying failure for logs.
func (e *StorageError) Cause() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

// Storage wraps err as a storage error unless it already carries a known kind.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsExpected(err) || errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// InsufficientFundsError reports required vs. available balance.
type InsufficientFundsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// LimitError reports a daily limit hit.
type LimitError struct {
	Action  string
	Current int
	Limit   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("daily %s limit reached (%d/%d)", e.Action, e.Current, e.Limit)
}

func (e *LimitError) Unwrap() error { return ErrRateLimited }

// FreezeError reports that economy actions are paused until the active window.
type FreezeError struct {
	Until time.Duration
}

func (e *FreezeError) Error() string {
	return fmt.Sprintf("actions are frozen for another %s", e.Until.Truncate(time.Second))
}

func (e *FreezeError) Unwrap() error { return ErrRateLimited }

// SuspendedError reports an active suspension.
type SuspendedError struct {
	Until  *time.Time
	Reason string
}

func (e *SuspendedError) Error() string {
	msg := "account suspended"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Until != nil {
		msg += " until " + e.Until.UTC().Format(time.RFC3339)
	}
	return msg
}

func (e *SuspendedError) Unwrap() error { return ErrSuspended }

// FraudError reports a hard fraud block.
type FraudError struct {
	Flags    []string
	Severity string
}

func (e *FraudError) Error() string {
	return fmt.Sprintf("action blocked (%s severity): %s", e.Severity, strings.Join(e.Flags, ", "))
}

func (e *FraudError) Unwrap() error { return ErrFraudBlocked }

// IsExpected reports whether err is an outcome the caller should see as-is.
func IsExpected(err error) bool {
	for _, kind := range []error{
		ErrValidation, ErrNotFound, ErrInsufficientFunds, ErrSuspended,
		ErrRateLimited, ErrFraudBlocked, ErrInProgress,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrSuspended):
		return "suspended"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrFraudBlocked):
		return "fraud_blocked"
	case errors.Is(err, ErrInProgress):
		return "in_progress"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	default:
		return "internal_error"
	}
}
