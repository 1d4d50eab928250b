// Package repository provides the PostgreSQL data access layer.
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

const userColumns = `id, username, password_hash, balance, reputation,
	daily_post_count, daily_comment_count, daily_like_count, last_daily_reset,
	total_earnings, total_spent, total_wins,
	is_suspended, suspended_until, suspension_reason, fraud_flags,
	created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.Balance,
		&u.Reputation,
		&u.DailyPostCount,
		&u.DailyCommentCount,
		&u.DailyLikeCount,
		&u.LastDailyReset,
		&u.TotalEarnings,
		&u.TotalSpent,
		&u.TotalWins,
		&u.IsSuspended,
		&u.SuspendedUntil,
		&u.SuspensionReason,
		&u.FraudFlags,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserRepository handles user persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a user with a zero balance. Bonuses go through the ledger.
func (r *UserRepository) Create(ctx context.Context, username, passwordHash string) (*model.User, error) {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, username, passwordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user. Returns ErrUserNotFound if missing.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByIDs retrieves users keyed by ID. Missing IDs are absent from the map.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error) {
	users := make(map[int64]*model.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// ResetDailyCounts zeroes the daily counters if the last reset predates
// dayStart. It reports whether a reset happened and returns the fresh row.
func (r *UserRepository) ResetDailyCounts(ctx context.Context, id int64, now, dayStart time.Time) (*model.User, bool, error) {
	query := `
		UPDATE users
		SET daily_post_count = 0, daily_comment_count = 0, daily_like_count = 0,
			last_daily_reset = $2, updated_at = NOW()
		WHERE id = $1 AND last_daily_reset < $3
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, id, now, dayStart))
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to reset daily counts: %w", err)
	}

	user, err = r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return user, false, nil
}

// IncrementDailyCount bumps the counter for an action by one and returns the new value.
func (r *UserRepository) IncrementDailyCount(ctx context.Context, id int64, action model.ActionType) (int, error) {
	var query string
	switch action.Counter() {
	case model.ActionPost:
		query = `UPDATE users SET daily_post_count = daily_post_count + 1, updated_at = NOW() WHERE id = $1 RETURNING daily_post_count`
	case model.ActionComment:
		query = `UPDATE users SET daily_comment_count = daily_comment_count + 1, updated_at = NOW() WHERE id = $1 RETURNING daily_comment_count`
	case model.ActionLike:
		query = `UPDATE users SET daily_like_count = daily_like_count + 1, updated_at = NOW() WHERE id = $1 RETURNING daily_like_count`
	default:
		return 0, fmt.Errorf("failed to increment daily count: %w: %s", errUnknownRecordedAction, action)
	}

	var count int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to increment daily count: %w", err)
	}
	return count, nil
}

// RecordWin increments total wins and grows reputation, capped at 100.
func (r *UserRepository) RecordWin(ctx context.Context, id int64, reputationBonus int) error {
	const query = `
		UPDATE users
		SET total_wins = total_wins + 1,
			reputation = LEAST(100, reputation + $2),
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, reputationBonus)
	if err != nil {
		return fmt.Errorf("failed to record win: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// PenalizeReputation lowers reputation by penalty, floored at 0, and returns
// the values before and after.
func (r *UserRepository) PenalizeReputation(ctx context.Context, id int64, penalty int) (before, after int, err error) {
	const query = `
		UPDATE users u
		SET reputation = GREATEST(0, u.reputation - $2), updated_at = NOW()
		FROM (SELECT id, reputation FROM users WHERE id = $1 FOR UPDATE) prev
		WHERE u.id = prev.id
		RETURNING prev.reputation, u.reputation
	`
	if err := r.pool.QueryRow(ctx, query, id, penalty).Scan(&before, &after); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrUserNotFound
		}
		return 0, 0, fmt.Errorf("failed to penalize reputation: %w", err)
	}
	return before, after, nil
}

// AppendFraudFlags appends flag kinds to the user's history.
func (r *UserRepository) AppendFraudFlags(ctx context.Context, id int64, flags []string) error {
	const query = `
		UPDATE users SET fraud_flags = fraud_flags || $2::text[], updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, flags)
	if err != nil {
		return fmt.Errorf("failed to append fraud flags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Suspend marks the user suspended. A nil until suspends indefinitely.
func (r *UserRepository) Suspend(ctx context.Context, id int64, until *time.Time, reason string) error {
	const query = `
		UPDATE users
		SET is_suspended = TRUE, suspended_until = $2, suspension_reason = $3, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, until, reason)
	if err != nil {
		return fmt.Errorf("failed to suspend user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// LiftSuspension clears the suspension state.
func (r *UserRepository) LiftSuspension(ctx context.Context, id int64) error {
	const query = `
		UPDATE users
		SET is_suspended = FALSE, suspended_until = NULL, suspension_reason = NULL, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to lift suspension: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
