// Package service provides business logic implementations.
package service

import (
	"errors"
	"time"

	"github.com/Gaur97shiv/playknow/internal/apperr"
	"github.com/Gaur97shiv/playknow/internal/repository"
)

// ErrAlreadyApplied marks a ledger entry whose idempotency key was seen.
// Callers treat it as success.
var ErrAlreadyApplied = repository.ErrAlreadyApplied

// ErrOutsideFreeze is returned when an evaluation is requested during the active window.
var ErrOutsideFreeze = apperr.Validation("evaluation only runs during the freeze period")

// Clock returns the current time.
type Clock func() time.Time

func orNow(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// mapStoreErr converts repository errors to application errors. Unknown
// failures become storage errors that keep their cause.
func mapStoreErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrAlreadyApplied):
		return err
	case errors.Is(err, repository.ErrUserNotFound):
		return apperr.NotFound("user")
	case errors.Is(err, repository.ErrPostNotFound):
		return apperr.NotFound("post")
	case errors.Is(err, repository.ErrCommentNotFound):
		return apperr.NotFound("comment")
	case errors.Is(err, repository.ErrPoolNotFound):
		return apperr.NotFound("daily pool")
	case errors.Is(err, repository.ErrEvaluationNotFound):
		return apperr.NotFound("evaluation")
	case errors.Is(err, repository.ErrFraudLogNotFound):
		return apperr.NotFound("fraud log")
	case errors.Is(err, repository.ErrAlreadyLiked):
		return apperr.Validation("already liked")
	case errors.Is(err, repository.ErrUsernameTaken):
		return apperr.Validation("username already taken")
	case errors.Is(err, repository.ErrEvaluationLocked):
		return apperr.InProgress("evaluation already in progress")
	case errors.Is(err, repository.ErrInsufficientBalance):
		return apperr.ErrInsufficientFunds
	default:
		return apperr.Storage(op, err)
	}
}

// causeOf renders err for logs, including the hidden cause of storage errors.
func causeOf(err error) string {
	var se *apperr.StorageError
	if errors.As(err, &se) {
		return se.Cause()
	}
	return err.Error()
}
