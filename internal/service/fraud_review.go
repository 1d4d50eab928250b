package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Gaur97shiv/playknow/internal/apperr"
	"github.com/Gaur97shiv/playknow/internal/model"
)

// Page size for the fraud review queue.
const (
	DefaultFraudLogLimit = 20
	MaxFraudLogLimit     = 100
)

// FraudLogStore reads and resolves fraud logs.
type FraudLogStore interface {
	ListByUser(ctx context.Context, userID int64, limit int) ([]*model.FraudLog, error)
	Resolve(ctx context.Context, id int64, action model.FraudAction, at time.Time) (*model.FraudLog, error)
}

var resolutions = map[model.FraudAction]bool{
	model.FraudActionNone:                true,
	model.FraudActionWarning:             true,
	model.FraudActionReputationPenalty:   true,
	model.FraudActionTemporarySuspension: true,
	model.FraudActionPermanentBan:        true,
}

// FraudReviewService is the operator side of fraud detection.
type FraudReviewService struct {
	logs  FraudLogStore
	clock Clock
}

// NewFraudReviewService creates a new FraudReviewService instance.
func NewFraudReviewService(logs FraudLogStore, clock Clock) *FraudReviewService {
	return &FraudReviewService{logs: logs, clock: orNow(clock)}
}

// List returns a user's logs, or the unresolved queue when userID is zero.
func (s *FraudReviewService) List(ctx context.Context, userID int64, limit int) ([]*model.FraudLog, error) {
	if userID < 0 {
		return nil, apperr.Validation("invalid user id")
	}
	logs, err := s.logs.ListByUser(ctx, userID, clampLimit(limit, DefaultFraudLogLimit, MaxFraudLogLimit))
	if err != nil {
		return nil, mapStoreErr("list fraud logs", err)
	}
	if logs == nil {
		logs = []*model.FraudLog{}
	}
	return logs, nil
}

// Resolve closes a log with the action the operator took.
func (s *FraudReviewService) Resolve(ctx context.Context, id int64, action string) (*model.FraudLog, error) {
	if id <= 0 {
		return nil, apperr.Validation("invalid fraud log id")
	}
	fa := model.FraudAction(action)
	if !resolutions[fa] {
		return nil, apperr.Validation("unknown resolution %q", action)
	}

	l, err := s.logs.Resolve(ctx, id, fa, s.clock())
	if err != nil {
		return nil, mapStoreErr("resolve fraud log", err)
	}
	log.Info().Int64("fraud_log_id", id).Int64("user_id", l.UserID).Str("action", action).Msg("Fraud log resolved")
	return l, nil
}
