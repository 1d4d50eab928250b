package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{"users table", `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			reputation INTEGER NOT NULL DEFAULT 50 CHECK (reputation BETWEEN 0 AND 100),
			daily_post_count INTEGER NOT NULL DEFAULT 0,
			daily_comment_count INTEGER NOT NULL DEFAULT 0,
			daily_like_count INTEGER NOT NULL DEFAULT 0,
			last_daily_reset TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			total_earnings BIGINT NOT NULL DEFAULT 0,
			total_spent BIGINT NOT NULL DEFAULT 0,
			total_wins INTEGER NOT NULL DEFAULT 0,
			is_suspended BOOLEAN NOT NULL DEFAULT FALSE,
			suspended_until TIMESTAMPTZ,
			suspension_reason TEXT,
			fraud_flags TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"posts table", `
		CREATE TABLE IF NOT EXISTS posts (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			image TEXT,
			total_coin_on_post BIGINT NOT NULL DEFAULT 0,
			post_pool_coins BIGINT NOT NULL DEFAULT 0,
			comment_pool_coins BIGINT NOT NULL DEFAULT 0,
			liker_reserve_coins BIGINT NOT NULL DEFAULT 0,
			score DOUBLE PRECISION NOT NULL DEFAULT 0,
			evaluated BOOLEAN NOT NULL DEFAULT FALSE,
			evaluation_date TIMESTAMPTZ,
			is_winner BOOLEAN NOT NULL DEFAULT FALSE,
			winner_reward BIGINT NOT NULL DEFAULT 0,
			freeze_period VARCHAR(10) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_posts_unevaluated ON posts (created_at) WHERE evaluated = FALSE`},
	{"comments table", `
		CREATE TABLE IF NOT EXISTS comments (
			id BIGSERIAL PRIMARY KEY,
			post_id BIGINT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL DEFAULT 0,
			evaluated BOOLEAN NOT NULL DEFAULT FALSE,
			is_winner BOOLEAN NOT NULL DEFAULT FALSE,
			winner_reward BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_comments_post ON comments (post_id);
		CREATE INDEX IF NOT EXISTS idx_comments_user_created ON comments (user_id, created_at)`},
	{"like tables", `
		CREATE TABLE IF NOT EXISTS post_likes (
			post_id BIGINT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (post_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_post_likes_user ON post_likes (user_id);
		CREATE TABLE IF NOT EXISTS comment_likes (
			comment_id BIGINT NOT NULL REFERENCES comments(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (comment_id, user_id)
		)`},
	{"daily_pools table", `
		CREATE TABLE IF NOT EXISTS daily_pools (
			date VARCHAR(10) PRIMARY KEY,
			total_pool_coins BIGINT NOT NULL DEFAULT 0,
			platform_fee_coins BIGINT NOT NULL DEFAULT 0,
			liker_reserve_coins BIGINT NOT NULL DEFAULT 0,
			posts_count INTEGER NOT NULL DEFAULT 0,
			comments_count INTEGER NOT NULL DEFAULT 0,
			likes_count INTEGER NOT NULL DEFAULT 0,
			distributed BOOLEAN NOT NULL DEFAULT FALSE,
			distributed_at TIMESTAMPTZ,
			winner_post_id BIGINT,
			winner_user_id BIGINT,
			winner_reward BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"transactions table", `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type VARCHAR(20) NOT NULL,
			amount BIGINT NOT NULL,
			direction VARCHAR(6) NOT NULL CHECK (direction IN ('debit', 'credit')),
			related_post_id BIGINT,
			related_comment_id BIGINT,
			description TEXT NOT NULL DEFAULT '',
			balance_after BIGINT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			idempotency_key TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_idempotency
			ON transactions (idempotency_key) WHERE idempotency_key IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions (user_id, created_at DESC)`},
	{"evaluation_results table", `
		CREATE TABLE IF NOT EXISTS evaluation_results (
			id BIGSERIAL PRIMARY KEY,
			run_id VARCHAR(36) NOT NULL,
			evaluation_date TIMESTAMPTZ NOT NULL,
			freeze_period VARCHAR(10) NOT NULL,
			status VARCHAR(20) NOT NULL,
			total_posts_evaluated INTEGER NOT NULL DEFAULT 0,
			total_comments_evaluated INTEGER NOT NULL DEFAULT 0,
			total_pool_distributed BIGINT NOT NULL DEFAULT 0,
			total_liker_rewards_distributed BIGINT NOT NULL DEFAULT 0,
			top_post_winner JSONB,
			top_comment_winners JSONB NOT NULL DEFAULT '[]',
			liker_rewards JSONB NOT NULL DEFAULT '[]',
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_evaluation_active_period
			ON evaluation_results (freeze_period) WHERE status IN ('in_progress', 'completed')`},
	{"fraud_logs table", `
		CREATE TABLE IF NOT EXISTS fraud_logs (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type VARCHAR(30) NOT NULL,
			severity VARCHAR(10) NOT NULL,
			description TEXT NOT NULL,
			evidence JSONB NOT NULL DEFAULT '{}',
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_at TIMESTAMPTZ,
			action VARCHAR(30) NOT NULL DEFAULT 'none',
			related_post_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_fraud_logs_user ON fraud_logs (user_id, created_at DESC)`},
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, m := range migrations {
		for _, stmt := range strings.Split(m.sql, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply migration %d (%s): %w", i+1, m.name, err)
			}
		}
		log.Debug().Int("migration", i+1).Str("name", m.name).Msg("Migration applied")
	}
	log.Info().Int("count", len(migrations)).Msg("Database migrations completed")
	return nil
}
