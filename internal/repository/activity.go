package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityRepository is the read side of the fraud detectors: action
// cadence from the ledger and like graphs from posts.
type ActivityRepository struct {
	*PostRepository
	*TransactionRepository
}

// NewActivityRepository creates a new ActivityRepository instance.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{
		PostRepository:        NewPostRepository(pool),
		TransactionRepository: NewTransactionRepository(pool),
	}
}
