package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrPostNotFound          = errors.New("post not found")
	ErrCommentNotFound       = errors.New("comment not found")
	ErrPoolNotFound          = errors.New("daily pool not found")
	ErrEvaluationNotFound    = errors.New("evaluation result not found")
	ErrFraudLogNotFound      = errors.New("fraud log not found")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrAlreadyApplied        = errors.New("ledger entry already applied")
	ErrAlreadyLiked          = errors.New("already liked")
	ErrEvaluationLocked      = errors.New("evaluation already running or completed for period")
	ErrUsernameTaken         = errors.New("username already taken")
	errUnknownRecordedAction = errors.New("unknown action")
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgCode(err) == pgUniqueViolation }
func isCheckViolation(err error) bool  { return pgCode(err) == pgCheckViolation }
