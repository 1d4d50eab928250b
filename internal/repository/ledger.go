package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gaur97shiv/playknow/internal/model"
)

// LedgerRepository applies balance changes together with their audit rows.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Apply updates the user's balance and writes the transaction row in one
// database transaction. Entries without a Type change the balance only.
//
// Errors: ErrUserNotFound, ErrInsufficientBalance (conditional debit failed
// or the balance would go negative), ErrAlreadyApplied (idempotency key seen).
func (r *LedgerRepository) Apply(ctx context.Context, e *model.LedgerEntry, at time.Time) (*model.Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if e.IdempotencyKey != "" {
		var seen bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM transactions WHERE idempotency_key = $1)`,
			e.IdempotencyKey,
		).Scan(&seen)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if seen {
			return nil, ErrAlreadyApplied
		}
	}

	balance, err := applyBalance(ctx, tx, e)
	if err != nil {
		return nil, err
	}

	txn := &model.Transaction{
		UserID:           e.UserID,
		Type:             e.Type,
		Amount:           e.Amount,
		Direction:        e.Direction,
		RelatedPostID:    e.RelatedPostID,
		RelatedCommentID: e.RelatedCommentID,
		Description:      e.Description,
		BalanceAfter:     balance,
		Metadata:         e.Metadata,
		CreatedAt:        at,
	}
	if e.IdempotencyKey != "" {
		key := e.IdempotencyKey
		txn.IdempotencyKey = &key
	}

	if e.Type != "" {
		const insert = `
			INSERT INTO transactions (user_id, type, amount, direction, related_post_id,
				related_comment_id, description, balance_after, metadata, idempotency_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id
		`
		err := tx.QueryRow(ctx, insert,
			txn.UserID, txn.Type, txn.Amount, txn.Direction, txn.RelatedPostID,
			txn.RelatedCommentID, txn.Description, txn.BalanceAfter, txn.Metadata,
			txn.IdempotencyKey, txn.CreatedAt,
		).Scan(&txn.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrAlreadyApplied
			}
			return nil, fmt.Errorf("failed to create transaction: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return txn, nil
}

func applyBalance(ctx context.Context, tx pgx.Tx, e *model.LedgerEntry) (int64, error) {
	var query string
	switch {
	case e.Direction == model.DirectionCredit:
		query = `
			UPDATE users SET balance = balance + $2, total_earnings = total_earnings + $2, updated_at = NOW()
			WHERE id = $1
			RETURNING balance`
	case e.RequireFunds:
		query = `
			UPDATE users SET balance = balance - $2, total_spent = total_spent + $2, updated_at = NOW()
			WHERE id = $1 AND balance >= $2
			RETURNING balance`
	default:
		query = `
			UPDATE users SET balance = balance - $2, total_spent = total_spent + $2, updated_at = NOW()
			WHERE id = $1
			RETURNING balance`
	}

	var balance int64
	err := tx.QueryRow(ctx, query, e.UserID, e.Amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if isCheckViolation(err) {
		return 0, ErrInsufficientBalance
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	// No row: either the user is missing or the conditional debit lost.
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, e.UserID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return 0, ErrUserNotFound
	}
	return 0, ErrInsufficientBalance
}
