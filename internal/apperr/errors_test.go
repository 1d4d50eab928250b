package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetailErrorsUnwrapToKind(t *testing.T) {
	until := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		err  error
		kind error
		code string
	}{
		{"insufficient", &InsufficientFundsError{Required: 5, Available: 2}, ErrInsufficientFunds, "insufficient_funds"},
		{"limit", &LimitError{Action: "post", Current: 5, Limit: 5}, ErrRateLimited, "rate_limited"},
		{"freeze", &FreezeError{Until: time.Hour}, ErrRateLimited, "rate_limited"},
		{"suspended", &SuspendedError{Until: &until, Reason: "spam"}, ErrSuspended, "suspended"},
		{"fraud", &FraudError{Flags: []string{"RAPID_ACTIONS"}, Severity: "high"}, ErrFraudBlocked, "fraud_blocked"},
		{"validation", Validation("text is required"), ErrValidation, "validation_error"},
		{"not found", NotFound("post"), ErrNotFound, "not_found"},
		{"in progress", InProgress("evaluation for %s", "2026-01-02"), ErrInProgress, "in_progress"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("context: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.kind)
			assert.True(t, IsExpected(wrapped))
			assert.Equal(t, tt.code, Code(wrapped))
		})
	}
}

func TestLimitErrorDetail(t *testing.T) {
	err := fmt.Errorf("gate: %w", &LimitError{Action: "like", Current: 50, Limit: 50})

	var limitErr *LimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 50, limitErr.Current)
	assert.Equal(t, "daily like limit reached (50/50)", limitErr.Error())
}

func TestStorageHidesCause(t *testing.T) {
	cause := errors.New("connection refused at 10.0.0.1:5432")
	err := Storage("debit user", cause)

	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage error", err.Error())
	assert.Equal(t, "storage_error", Code(err))

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Cause(), "connection refused")
}

func TestStoragePassesExpectedThrough(t *testing.T) {
	expected := NotFound("user")
	assert.Same(t, expected, Storage("load user", expected))
	assert.Nil(t, Storage("noop", nil))
	assert.Equal(t, "internal_error", Code(errors.New("boom")))
}
