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

const poolColumns = `date, total_pool_coins, platform_fee_coins, liker_reserve_coins,
	posts_count, comments_count, likes_count, distributed, distributed_at,
	winner_post_id, winner_user_id, winner_reward, created_at, updated_at`

func scanPool(row pgx.Row) (*model.DailyPool, error) {
	var p model.DailyPool
	err := row.Scan(
		&p.Date,
		&p.TotalPoolCoins,
		&p.PlatformFeeCoins,
		&p.LikerReserveCoins,
		&p.PostsCount,
		&p.CommentsCount,
		&p.LikesCount,
		&p.Distributed,
		&p.DistributedAt,
		&p.WinnerPostID,
		&p.WinnerUserID,
		&p.WinnerReward,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// accumulatePool upserts the day's pool with one action's fee split.
func accumulatePool(ctx context.Context, tx pgx.Tx, rec *model.ActionRecord) error {
	var posts, comments, likes int
	switch rec.Action {
	case model.ActionPost:
		posts = 1
	case model.ActionComment:
		comments = 1
	case model.ActionLike, model.ActionCommentLike:
		likes = 1
	}

	const query = `
		INSERT INTO daily_pools (date, total_pool_coins, platform_fee_coins, liker_reserve_coins,
			posts_count, comments_count, likes_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (date) DO UPDATE SET
			total_pool_coins = daily_pools.total_pool_coins + EXCLUDED.total_pool_coins,
			platform_fee_coins = daily_pools.platform_fee_coins + EXCLUDED.platform_fee_coins,
			liker_reserve_coins = daily_pools.liker_reserve_coins + EXCLUDED.liker_reserve_coins,
			posts_count = daily_pools.posts_count + EXCLUDED.posts_count,
			comments_count = daily_pools.comments_count + EXCLUDED.comments_count,
			likes_count = daily_pools.likes_count + EXCLUDED.likes_count,
			updated_at = EXCLUDED.updated_at
	`
	_, err := tx.Exec(ctx, query,
		rec.PoolDate, rec.Split.PrizePool, rec.Split.PlatformFee, rec.Split.LikerReserve,
		posts, comments, likes, rec.At,
	)
	if err != nil {
		return fmt.Errorf("failed to accumulate daily pool: %w", err)
	}
	return nil
}

// PoolRepository handles daily pool persistence.
type PoolRepository struct {
	pool *pgxpool.Pool
}

// NewPoolRepository creates a new PoolRepository instance.
func NewPoolRepository(pool *pgxpool.Pool) *PoolRepository {
	return &PoolRepository{pool: pool}
}

// GetByDate retrieves the pool of a calendar date. Returns ErrPoolNotFound if none.
func (r *PoolRepository) GetByDate(ctx context.Context, date string) (*model.DailyPool, error) {
	query := `SELECT ` + poolColumns + ` FROM daily_pools WHERE date = $1`

	p, err := scanPool(r.pool.QueryRow(ctx, query, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("failed to get daily pool: %w", err)
	}
	return p, nil
}

// List returns the most recent pools, newest first.
func (r *PoolRepository) List(ctx context.Context, limit int) ([]*model.DailyPool, error) {
	query := `SELECT ` + poolColumns + ` FROM daily_pools ORDER BY date DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily pools: %w", err)
	}
	defer rows.Close()

	var pools []*model.DailyPool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily pool: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily pools: %w", err)
	}
	return pools, nil
}

// MarkDistributed flags a day's pool as settled. It reports whether a pool
// existed for the date.
func (r *PoolRepository) MarkDistributed(ctx context.Context, date string, winner *model.Winner, at time.Time) (bool, error) {
	var postID, userID *int64
	var reward int64
	if winner != nil {
		postID, userID, reward = &winner.PostID, &winner.UserID, winner.Reward
	}

	const query = `
		UPDATE daily_pools
		SET distributed = TRUE, distributed_at = $2, winner_post_id = $3,
			winner_user_id = $4, winner_reward = $5, updated_at = $2
		WHERE date = $1
	`
	tag, err := r.pool.Exec(ctx, query, date, at, postID, userID, reward)
	if err != nil {
		return false, fmt.Errorf("failed to mark pool distributed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
