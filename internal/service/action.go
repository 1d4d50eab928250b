package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Gaur97shiv/playknow/internal/apperr"
	"github.com/Gaur97shiv/playknow/internal/cycle"
	"github.com/Gaur97shiv/playknow/internal/economy"
	"github.com/Gaur97shiv/playknow/internal/fraud"
	"github.com/Gaur97shiv/playknow/internal/metrics"
	"github.com/Gaur97shiv/playknow/internal/model"
	"github.com/Gaur97shiv/playknow/internal/pkg/lock"
	"github.com/Gaur97shiv/playknow/internal/repository"
)

const maxContentLength = 5000

// ActionUsers loads the acting user.
type ActionUsers interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// ActionPosts reads posts and records charged actions.
type ActionPosts interface {
	GetByID(ctx context.Context, id int64) (*model.Post, error)
	Record(ctx context.Context, rec *model.ActionRecord) error
}

// FraudChecker runs the fraud heuristics for an attempt.
type FraudChecker interface {
	CheckAndLog(ctx context.Context, userID int64, action model.ActionType, postID int64, now time.Time) (*fraud.Result, error)
}

// ActionResult is the outcome of a charged action.
type ActionResult struct {
	Action      model.ActionType   `json:"action"`
	PostID      int64              `json:"postId"`
	CommentID   int64              `json:"commentId,omitempty"`
	Fee         int64              `json:"fee"`
	Split       model.FeeSplit     `json:"split"`
	Balance     int64              `json:"balance"`
	Transaction *model.Transaction `json:"transaction"`
	// FraudFlags is set when the action passed with a warning.
	FraudFlags []string `json:"fraudFlags,omitempty"`
}

// ActionService runs the fee-charging pipeline for posts, comments and likes:
// freeze check, per-user lock, limit rollover and check, fraud gate, balance
// check and charge, fee split, record, counter increment.
type ActionService struct {
	users       ActionUsers
	posts       ActionPosts
	gate        *LimitGate
	fraud       FraudChecker
	ledger      *LedgerService
	splitter    *economy.Splitter
	cal         *cycle.Calculator
	locks       *lock.UserLock
	lockTimeout time.Duration
	clock       Clock
}

// NewActionService creates a new ActionService instance.
func NewActionService(
	users ActionUsers,
	posts ActionPosts,
	gate *LimitGate,
	detector FraudChecker,
	ledger *LedgerService,
	splitter *economy.Splitter,
	cal *cycle.Calculator,
	locks *lock.UserLock,
	lockTimeout time.Duration,
	clock Clock,
) *ActionService {
	return &ActionService{
		users:       users,
		posts:       posts,
		gate:        gate,
		fraud:       detector,
		ledger:      ledger,
		splitter:    splitter,
		cal:         cal,
		locks:       locks,
		lockTimeout: lockTimeout,
		clock:       orNow(clock),
	}
}

// CreatePost charges the post fee and creates the post.
func (s *ActionService) CreatePost(ctx context.Context, userID int64, content string, image *string) (*ActionResult, error) {
	content = strings.TrimSpace(content)
	if err := validateText("content", content); err != nil {
		return s.done(model.ActionPost, nil, err)
	}
	if image != nil && strings.TrimSpace(*image) == "" {
		image = nil
	}
	return s.run(ctx, &model.ActionRecord{Action: model.ActionPost, UserID: userID, Content: content, Image: image})
}

// Comment charges the comment fee and adds a comment to an open post.
func (s *ActionService) Comment(ctx context.Context, userID, postID int64, text string) (*ActionResult, error) {
	text = strings.TrimSpace(text)
	if err := validateText("text", text); err != nil {
		return s.done(model.ActionComment, nil, err)
	}
	if _, err := s.openPost(ctx, postID); err != nil {
		return s.done(model.ActionComment, nil, err)
	}
	return s.run(ctx, &model.ActionRecord{Action: model.ActionComment, UserID: userID, PostID: postID, Text: text})
}

// LikePost charges the like fee and likes an open post once.
func (s *ActionService) LikePost(ctx context.Context, userID, postID int64) (*ActionResult, error) {
	post, err := s.openPost(ctx, postID)
	if err != nil {
		return s.done(model.ActionLike, nil, err)
	}
	if post.LikedBy(userID) {
		return s.done(model.ActionLike, nil, apperr.Validation("post already liked"))
	}
	return s.run(ctx, &model.ActionRecord{Action: model.ActionLike, UserID: userID, PostID: postID})
}

// LikeComment charges the like fee and likes a comment of an open post once.
func (s *ActionService) LikeComment(ctx context.Context, userID, postID, commentID int64) (*ActionResult, error) {
	post, err := s.openPost(ctx, postID)
	if err != nil {
		return s.done(model.ActionCommentLike, nil, err)
	}
	var comment *model.Comment
	for _, c := range post.Comments {
		if c.ID == commentID {
			comment = c
			break
		}
	}
	if comment == nil {
		return s.done(model.ActionCommentLike, nil, apperr.NotFound("comment"))
	}
	if comment.LikedBy(userID) {
		return s.done(model.ActionCommentLike, nil, apperr.Validation("comment already liked"))
	}
	return s.run(ctx, &model.ActionRecord{Action: model.ActionCommentLike, UserID: userID, PostID: postID, CommentID: commentID})
}

func validateText(field, v string) error {
	if v == "" {
		return apperr.Validation("%s must not be empty", field)
	}
	if len(v) > maxContentLength {
		return apperr.Validation("%s must be at most %d bytes", field, maxContentLength)
	}
	return nil
}

func (s *ActionService) openPost(ctx context.Context, postID int64) (*model.Post, error) {
	if postID <= 0 {
		return nil, apperr.Validation("invalid post id")
	}
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, mapStoreErr("get post", err)
	}
	if post.Evaluated {
		return nil, apperr.Validation("post has already been evaluated")
	}
	return post, nil
}

func (s *ActionService) run(ctx context.Context, rec *model.ActionRecord) (*ActionResult, error) {
	now := s.clock()
	if s.cal.IsFreezePeriod(now) {
		return s.done(rec.Action, nil, &apperr.FreezeError{Until: s.cal.TimeUntilActiveStart(now)})
	}

	var res *ActionResult
	err := s.locks.WithLock(ctx, rec.UserID, s.lockTimeout, func() error {
		var err error
		res, err = s.charged(ctx, rec, now)
		return err
	})
	if errors.Is(err, lock.ErrLockTimeout) {
		err = fmt.Errorf("%w: another action is still being processed", apperr.ErrRateLimited)
	}
	return s.done(rec.Action, res, err)
}

// charged runs the pipeline steps that need the user's lock.
func (s *ActionService) charged(ctx context.Context, rec *model.ActionRecord, now time.Time) (*ActionResult, error) {
	user, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, mapStoreErr("get user", err)
	}
	if user, err = s.gate.EnsureRollover(ctx, user, now); err != nil {
		return nil, err
	}
	if err := s.gate.Check(user, rec.Action); err != nil {
		return nil, err
	}

	fr, err := s.fraud.CheckAndLog(ctx, rec.UserID, rec.Action, rec.PostID, now)
	if err != nil {
		return nil, apperr.Storage("fraud check", err)
	}
	if fr.Blocked() {
		return nil, &apperr.FraudError{Flags: fr.Flags, Severity: string(fr.Severity)}
	}

	fee := s.splitter.Fee(rec.Action)
	if _, err := s.ledger.CheckBalance(ctx, rec.UserID, fee); err != nil {
		return nil, err
	}

	split := s.splitter.Split(fee)
	entry := model.LedgerEntry{
		UserID:      rec.UserID,
		Amount:      fee,
		Type:        txTypeFor(rec.Action),
		Description: fmt.Sprintf("%s fee", strings.ReplaceAll(string(rec.Action), "_", " ")),
		Metadata: model.TxMetadata{
			Kind: model.MetaActionFee,
			Fee:  &model.FeeMetadata{Action: rec.Action, Split: split},
		},
	}
	if rec.PostID != 0 {
		id := rec.PostID
		entry.RelatedPostID = &id
	}
	if rec.CommentID != 0 {
		id := rec.CommentID
		entry.RelatedCommentID = &id
	}

	txn, err := s.ledger.ChargeFee(ctx, entry)
	if err != nil {
		return nil, err
	}

	rec.Split = split
	rec.PoolDate = s.cal.DateKey(now)
	rec.FreezePeriod = s.cal.CurrentFreezePeriod(now)
	rec.At = now
	if err := s.posts.Record(ctx, rec); err != nil {
		return nil, s.compensate(ctx, txn, rec, err)
	}

	if err := s.gate.Increment(ctx, rec.UserID, rec.Action); err != nil {
		log.Error().Err(err).Int64("user_id", rec.UserID).Str("action", string(rec.Action)).Msg("Failed to increment daily counter")
	}

	metrics.FeesCollected.WithLabelValues("prize_pool").Add(float64(split.PrizePool))
	metrics.FeesCollected.WithLabelValues("platform_fee").Add(float64(split.PlatformFee))
	metrics.FeesCollected.WithLabelValues("liker_reserve").Add(float64(split.LikerReserve))

	res := &ActionResult{
		Action:      rec.Action,
		PostID:      rec.PostID,
		CommentID:   rec.CommentID,
		Fee:         fee,
		Split:       split,
		Balance:     txn.BalanceAfter,
		Transaction: txn,
	}
	if fr.Flagged {
		res.FraudFlags = fr.Flags
	}
	return res, nil
}

// compensate refunds a charge whose record step failed.
func (s *ActionService) compensate(ctx context.Context, txn *model.Transaction, rec *model.ActionRecord, cause error) error {
	refundCtx := context.WithoutCancel(ctx)
	if _, err := s.ledger.Refund(refundCtx, txn, cause.Error()); err != nil && !errors.Is(err, ErrAlreadyApplied) {
		metrics.Compensations.WithLabelValues("failed").Inc()
		log.Error().
			Err(cause).
			AnErr("refund_error", err).
			Int64("user_id", rec.UserID).
			Int64("tx_id", txn.ID).
			Str("action", string(rec.Action)).
			Msg("Failed to refund fee after record failure")
		return apperr.Storage("record action", errors.Join(cause, err))
	}
	metrics.Compensations.WithLabelValues("refunded").Inc()
	log.Warn().Err(cause).Int64("user_id", rec.UserID).Int64("tx_id", txn.ID).Msg("Fee refunded after record failure")

	if errors.Is(cause, repository.ErrPostNotFound) {
		return apperr.Validation("post is no longer open for actions")
	}
	return mapStoreErr("record action", cause)
}

func (s *ActionService) done(action model.ActionType, res *ActionResult, err error) (*ActionResult, error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.Code(err)
		if !apperr.IsExpected(err) {
			log.Error().Str("cause", causeOf(err)).Str("action", string(action)).Msg("Action failed")
		}
	}
	metrics.EconomyActions.WithLabelValues(string(action), outcome).Inc()
	if err != nil {
		return nil, err
	}
	return res, nil
}

func txTypeFor(action model.ActionType) model.TxType {
	switch action {
	case model.ActionPost:
		return model.TxTypePost
	case model.ActionComment:
		return model.TxTypeComment
	default:
		return model.TxTypeLike
	}
}
