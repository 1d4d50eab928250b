package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gaur97shiv/playknow/internal/model"
)

const evaluationColumns = `id, run_id, evaluation_date, freeze_period, status,
	total_posts_evaluated, total_comments_evaluated, total_pool_distributed,
	total_liker_rewards_distributed, top_post_winner, top_comment_winners,
	liker_rewards, error_message, created_at, updated_at`

func scanEvaluation(row pgx.Row) (*model.EvaluationResult, error) {
	var e model.EvaluationResult
	err := row.Scan(
		&e.ID,
		&e.RunID,
		&e.EvaluationDate,
		&e.FreezePeriod,
		&e.Status,
		&e.TotalPostsEvaluated,
		&e.TotalCommentsEvaluated,
		&e.TotalPoolDistributed,
		&e.TotalLikerRewardsDistributed,
		&e.TopPostWinner,
		&e.TopCommentWinners,
		&e.LikerRewards,
		&e.ErrorMessage,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EvaluationRepository handles settlement records.
type EvaluationRepository struct {
	pool *pgxpool.Pool
}

// NewEvaluationRepository creates a new EvaluationRepository instance.
func NewEvaluationRepository(pool *pgxpool.Pool) *EvaluationRepository {
	return &EvaluationRepository{pool: pool}
}

func (r *EvaluationRepository) getByStatus(ctx context.Context, period string, status model.EvaluationStatus) (*model.EvaluationResult, error) {
	query := `
		SELECT ` + evaluationColumns + `
		FROM evaluation_results
		WHERE freeze_period = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1`

	e, err := scanEvaluation(r.pool.QueryRow(ctx, query, period, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEvaluationNotFound
		}
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}
	return e, nil
}

// GetCompleted returns the completed settlement of a period.
func (r *EvaluationRepository) GetCompleted(ctx context.Context, period string) (*model.EvaluationResult, error) {
	return r.getByStatus(ctx, period, model.EvaluationCompleted)
}

// GetInProgress returns the running settlement of a period.
func (r *EvaluationRepository) GetInProgress(ctx context.Context, period string) (*model.EvaluationResult, error) {
	return r.getByStatus(ctx, period, model.EvaluationInProgress)
}

// Acquire inserts the in-progress record that locks a period. The partial
// unique index on freeze_period lets exactly one concurrent insert win; the
// loser gets ErrEvaluationLocked.
func (r *EvaluationRepository) Acquire(ctx context.Context, e *model.EvaluationResult) error {
	const query = `
		INSERT INTO evaluation_results (run_id, evaluation_date, freeze_period, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $2, $2)
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query, e.RunID, e.EvaluationDate, e.FreezePeriod, model.EvaluationInProgress).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEvaluationLocked
		}
		return fmt.Errorf("failed to acquire evaluation lock: %w", err)
	}
	e.Status = model.EvaluationInProgress
	return nil
}

// Save writes the state and totals of a settlement record.
func (r *EvaluationRepository) Save(ctx context.Context, e *model.EvaluationResult) error {
	const query = `
		UPDATE evaluation_results
		SET status = $2,
			total_posts_evaluated = $3,
			total_comments_evaluated = $4,
			total_pool_distributed = $5,
			total_liker_rewards_distributed = $6,
			top_post_winner = $7,
			top_comment_winners = $8,
			liker_rewards = $9,
			error_message = $10,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	winners := e.TopCommentWinners
	if winners == nil {
		winners = []model.Winner{}
	}
	likers := e.LikerRewards
	if likers == nil {
		likers = []model.LikerReward{}
	}

	err := r.pool.QueryRow(ctx, query,
		e.ID, e.Status, e.TotalPostsEvaluated, e.TotalCommentsEvaluated,
		e.TotalPoolDistributed, e.TotalLikerRewardsDistributed,
		e.TopPostWinner, winners, likers, e.ErrorMessage,
	).Scan(&e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrEvaluationNotFound
		}
		return fmt.Errorf("failed to save evaluation: %w", err)
	}
	return nil
}

// Latest returns the most recent completed settlement.
func (r *EvaluationRepository) Latest(ctx context.Context) (*model.EvaluationResult, error) {
	query := `
		SELECT ` + evaluationColumns + `
		FROM evaluation_results
		WHERE status = 'completed'
		ORDER BY evaluation_date DESC, id DESC
		LIMIT 1`

	e, err := scanEvaluation(r.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEvaluationNotFound
		}
		return nil, fmt.Errorf("failed to get latest evaluation: %w", err)
	}
	return e, nil
}

// ListCompleted returns recent completed settlements, newest first.
func (r *EvaluationRepository) ListCompleted(ctx context.Context, limit int) ([]*model.EvaluationResult, error) {
	query := `
		SELECT ` + evaluationColumns + `
		FROM evaluation_results
		WHERE status = 'completed'
		ORDER BY evaluation_date DESC, id DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var out []*model.EvaluationResult
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate evaluations: %w", err)
	}
	return out, nil
}
