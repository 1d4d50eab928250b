package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Gaur97shiv/playknow/internal/apperr"
	"github.com/Gaur97shiv/playknow/internal/model"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

// AccountUsers is the user store used by account operations.
type AccountUsers interface {
	Create(ctx context.Context, username, passwordHash string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	Suspend(ctx context.Context, id int64, until *time.Time, reason string) error
	LiftSuspension(ctx context.Context, id int64) error
}

// AccountService handles user provisioning and suspensions.
type AccountService struct {
	users       AccountUsers
	ledger      *LedgerService
	signupBonus int64
	clock       Clock
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(users AccountUsers, ledger *LedgerService, signupBonus int64, clock Clock) *AccountService {
	return &AccountService{
		users:       users,
		ledger:      ledger,
		signupBonus: signupBonus,
		clock:       orNow(clock),
	}
}

// Register creates a user and credits the signup bonus. Replaying the
// bonus for an existing user is a no-op.
func (s *AccountService) Register(ctx context.Context, username, passwordHash string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return nil, apperr.Validation("username must be 3-32 letters, digits or underscores")
	}
	if passwordHash == "" {
		return nil, apperr.Validation("password hash must not be empty")
	}

	user, err := s.users.Create(ctx, username, passwordHash)
	if err != nil {
		return nil, mapStoreErr("create user", err)
	}

	if s.signupBonus > 0 {
		txn, err := s.ledger.Credit(ctx, model.LedgerEntry{
			UserID:         user.ID,
			Amount:         s.signupBonus,
			Type:           model.TxTypeSignupBonus,
			Description:    "Signup bonus",
			Metadata:       model.TxMetadata{Kind: model.MetaSignup},
			IdempotencyKey: fmt.Sprintf("signup:%d", user.ID),
		})
		switch {
		case err == nil:
			user.Balance = txn.BalanceAfter
		case errors.Is(err, ErrAlreadyApplied):
		default:
			return nil, err
		}
	}

	log.Info().Int64("user_id", user.ID).Str("username", user.Username).Int64("balance", user.Balance).Msg("User registered")
	return user, nil
}

// GetUser retrieves a user by id.
func (s *AccountService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr("get user", err)
	}
	return user, nil
}

// Suspend blocks the user from spending. A nil until suspends indefinitely.
func (s *AccountService) Suspend(ctx context.Context, id int64, until *time.Time, reason string) (*model.User, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("suspension reason must not be empty")
	}
	if until != nil && !until.After(s.clock()) {
		return nil, apperr.Validation("suspension end must be in the future")
	}
	if err := s.users.Suspend(ctx, id, until, reason); err != nil {
		return nil, mapStoreErr("suspend user", err)
	}
	log.Warn().Int64("user_id", id).Str("reason", reason).Msg("User suspended")
	return s.GetUser(ctx, id)
}

// Unsuspend lifts a suspension.
func (s *AccountService) Unsuspend(ctx context.Context, id int64) (*model.User, error) {
	if err := s.users.LiftSuspension(ctx, id); err != nil {
		return nil, mapStoreErr("lift suspension", err)
	}
	log.Info().Int64("user_id", id).Msg("User suspension lifted")
	return s.GetUser(ctx, id)
}
