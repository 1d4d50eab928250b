package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gaur97shiv/playknow/internal/model"
)

const transactionColumns = `id, user_id, type, amount, direction, related_post_id,
	related_comment_id, description, balance_after, metadata, idempotency_key, created_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var tx model.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Type,
		&tx.Amount,
		&tx.Direction,
		&tx.RelatedPostID,
		&tx.RelatedCommentID,
		&tx.Description,
		&tx.BalanceAfter,
		&tx.Metadata,
		&tx.IdempotencyKey,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// TransactionRepository reads the ledger audit trail.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// ListByUser returns one page of a user's transactions, newest first, and
// the total matching count. An empty txType matches every type.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID int64, txType model.TxType, limit, offset int) ([]*model.Transaction, int, error) {
	const countQuery = `
		SELECT COUNT(*) FROM transactions
		WHERE user_id = $1 AND ($2::text = '' OR type = $2::text)
	`
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, userID, string(txType)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND ($2::text = '' OR type = $2::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, userID, string(txType), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, total, nil
}

// SummaryRow is the aggregate of one (type, direction) pair.
type SummaryRow struct {
	Type      model.TxType
	Direction model.Direction
	Total     int64
	Count     int
}

// Summary aggregates a user's transactions by type and direction.
func (r *TransactionRepository) Summary(ctx context.Context, userID int64) ([]SummaryRow, error) {
	const query = `
		SELECT type, direction, COALESCE(SUM(amount), 0), COUNT(*)
		FROM transactions
		WHERE user_id = $1
		GROUP BY type, direction
		ORDER BY type, direction
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize transactions: %w", err)
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var s SummaryRow
		if err := rows.Scan(&s.Type, &s.Direction, &s.Total, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summary: %w", err)
	}
	return out, nil
}

// RecentActionTimes returns the timestamps of fee-charging debits made by
// the user since the given time, oldest first. Compensating reversals are
// excluded.
func (r *TransactionRepository) RecentActionTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error) {
	const query = `
		SELECT created_at FROM transactions
		WHERE user_id = $1 AND direction = 'debit' AND amount > 0
			AND type = ANY($2) AND created_at >= $3
		ORDER BY created_at
	`
	types := make([]string, 0, 3)
	for _, t := range model.ActionTxTypes() {
		types = append(types, string(t))
	}

	rows, err := r.pool.Query(ctx, query, userID, types, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent actions: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan action time: %w", err)
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate action times: %w", err)
	}
	return times, nil
}
