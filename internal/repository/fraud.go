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

const fraudColumns = `id, user_id, type, severity, description, evidence, resolved,
	resolved_at, action, related_post_id, created_at`

func scanFraudLog(row pgx.Row) (*model.FraudLog, error) {
	var l model.FraudLog
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.Type,
		&l.Severity,
		&l.Description,
		&l.Evidence,
		&l.Resolved,
		&l.ResolvedAt,
		&l.Action,
		&l.RelatedPostID,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// FraudRepository handles fraud log persistence.
type FraudRepository struct {
	pool *pgxpool.Pool
}

// NewFraudRepository creates a new FraudRepository instance.
func NewFraudRepository(pool *pgxpool.Pool) *FraudRepository {
	return &FraudRepository{pool: pool}
}

// Create appends a fraud log.
func (r *FraudRepository) Create(ctx context.Context, l *model.FraudLog) error {
	const query = `
		INSERT INTO fraud_logs (user_id, type, severity, description, evidence, action, related_post_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		l.UserID, l.Type, l.Severity, l.Description, l.Evidence, l.Action, l.RelatedPostID, l.CreatedAt,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("failed to create fraud log: %w", err)
	}
	return nil
}

// ListByUser returns a user's fraud logs, newest first. A zero userID lists
// unresolved logs of every user.
func (r *FraudRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.FraudLog, error) {
	query := `
		SELECT ` + fraudColumns + `
		FROM fraud_logs
		WHERE ($1::bigint = 0 AND resolved = FALSE) OR user_id = $1::bigint
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list fraud logs: %w", err)
	}
	defer rows.Close()

	var logs []*model.FraudLog
	for rows.Next() {
		l, err := scanFraudLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fraud log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fraud logs: %w", err)
	}
	return logs, nil
}

// Resolve closes a fraud log with the action taken.
func (r *FraudRepository) Resolve(ctx context.Context, id int64, action model.FraudAction, at time.Time) (*model.FraudLog, error) {
	query := `
		UPDATE fraud_logs SET resolved = TRUE, resolved_at = $2, action = $3
		WHERE id = $1
		RETURNING ` + fraudColumns

	l, err := scanFraudLog(r.pool.QueryRow(ctx, query, id, at, action))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFraudLogNotFound
		}
		return nil, fmt.Errorf("failed to resolve fraud log: %w", err)
	}
	return l, nil
}
