package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Gaur97shiv/playknow/internal/apperr"
	"github.com/Gaur97shiv/playknow/internal/model"
	"github.com/Gaur97shiv/playknow/internal/repository"
)

// LedgerUsers is the user access the ledger needs.
type LedgerUsers interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	LiftSuspension(ctx context.Context, id int64) error
}

// LedgerStore applies a balance change with its transaction row atomically.
type LedgerStore interface {
	Apply(ctx context.Context, e *model.LedgerEntry, at time.Time) (*model.Transaction, error)
}

// LedgerService is the only writer of balances.
type LedgerService struct {
	users LedgerUsers
	store LedgerStore
	clock Clock
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(users LedgerUsers, store LedgerStore, clock Clock) *LedgerService {
	return &LedgerService{users: users, store: store, clock: orNow(clock)}
}

// CheckBalance verifies the user can spend amount. It fails closed on an
// active suspension and lifts an expired one.
func (s *LedgerService) CheckBalance(ctx context.Context, userID, amount int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapStoreErr("get user", err)
	}

	if user.IsSuspended {
		if user.SuspensionActive(s.clock()) {
			reason := ""
			if user.SuspensionReason != nil {
				reason = *user.SuspensionReason
			}
			return nil, &apperr.SuspendedError{Until: user.SuspendedUntil, Reason: reason}
		}
		if err := s.users.LiftSuspension(ctx, userID); err != nil {
			return nil, mapStoreErr("lift suspension", err)
		}
		log.Info().Int64("user_id", userID).Msg("Expired suspension lifted")
		user.IsSuspended = false
		user.SuspendedUntil = nil
		user.SuspensionReason = nil
	}

	if user.Balance < amount {
		return nil, &apperr.InsufficientFundsError{Required: amount, Available: user.Balance}
	}
	return user, nil
}

// Debit subtracts e.Amount unconditionally. A negative amount is a
// compensating reversal.
func (s *LedgerService) Debit(ctx context.Context, e model.LedgerEntry) (*model.Transaction, error) {
	e.Direction = model.DirectionDebit
	e.RequireFunds = false
	return s.apply(ctx, &e)
}

// Credit adds e.Amount. A replayed idempotency key returns ErrAlreadyApplied.
func (s *LedgerService) Credit(ctx context.Context, e model.LedgerEntry) (*model.Transaction, error) {
	if e.Amount < 0 {
		return nil, apperr.Validation("credit amount must not be negative")
	}
	e.Direction = model.DirectionCredit
	e.RequireFunds = false
	return s.apply(ctx, &e)
}

// ChargeFee debits e.Amount only if the balance covers it at write time.
func (s *LedgerService) ChargeFee(ctx context.Context, e model.LedgerEntry) (*model.Transaction, error) {
	if e.Amount < 0 {
		return nil, apperr.Validation("fee must not be negative")
	}
	e.Direction = model.DirectionDebit
	e.RequireFunds = true

	txn, err := s.apply(ctx, &e)
	if errors.Is(err, apperr.ErrInsufficientFunds) {
		available := int64(0)
		if user, gerr := s.users.GetByID(ctx, e.UserID); gerr == nil {
			available = user.Balance
		}
		return nil, &apperr.InsufficientFundsError{Required: e.Amount, Available: available}
	}
	return txn, err
}

// Refund reverses a charge with a negative debit of type refund whose
// metadata points back at the original transaction.
func (s *LedgerService) Refund(ctx context.Context, original *model.Transaction, reason string) (*model.Transaction, error) {
	if original == nil || original.Direction != model.DirectionDebit || original.Amount <= 0 {
		return nil, apperr.Validation("only positive debits can be refunded")
	}
	return s.Debit(ctx, model.LedgerEntry{
		UserID:           original.UserID,
		Amount:           -original.Amount,
		Type:             model.TxTypeRefund,
		RelatedPostID:    original.RelatedPostID,
		RelatedCommentID: original.RelatedCommentID,
		Description:      fmt.Sprintf("Refund of %s fee", original.Type),
		Metadata: model.TxMetadata{
			Kind:         model.MetaCompensation,
			Compensation: &model.CompensationMeta{ReversesTxID: original.ID, Reason: reason},
		},
		IdempotencyKey: fmt.Sprintf("refund:%d", original.ID),
	})
}

func (s *LedgerService) apply(ctx context.Context, e *model.LedgerEntry) (*model.Transaction, error) {
	txn, err := s.store.Apply(ctx, e, s.clock())
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyApplied) {
			return nil, ErrAlreadyApplied
		}
		return nil, mapStoreErr("apply ledger entry", err)
	}
	return txn, nil
}
