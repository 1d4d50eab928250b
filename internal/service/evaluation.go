package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Gaur97shiv/playknow/internal/apperr"
	"github.com/Gaur97shiv/playknow/internal/config"
	"github.com/Gaur97shiv/playknow/internal/cycle"
	"github.com/Gaur97shiv/playknow/internal/economy"
	"github.com/Gaur97shiv/playknow/internal/metrics"
	"github.com/Gaur97shiv/playknow/internal/model"
	"github.com/Gaur97shiv/playknow/internal/repository"
	"github.com/Gaur97shiv/playknow/internal/scoring"
)

const staleLockMessage = "stale lock expired"

// EvaluationStore persists settlement records.
type EvaluationStore interface {
	GetCompleted(ctx context.Context, period string) (*model.EvaluationResult, error)
	GetInProgress(ctx context.Context, period string) (*model.EvaluationResult, error)
	Acquire(ctx context.Context, e *model.EvaluationResult) error
	Save(ctx context.Context, e *model.EvaluationResult) error
}

// EvaluationPosts is the post access the settlement needs.
type EvaluationPosts interface {
	ListForSettlement(ctx context.Context, start, end time.Time, freezePeriod string) ([]*model.Post, error)
	UpdateScores(ctx context.Context, postID int64, score float64, commentScores map[int64]float64) error
	MarkWinner(ctx context.Context, postID, reward int64) error
	MarkCommentWinner(ctx context.Context, commentID, reward int64) error
	MarkEvaluated(ctx context.Context, postID int64, freezePeriod string, at time.Time) error
}

// EvaluationUsers loads authors and records wins.
type EvaluationUsers interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error)
	RecordWin(ctx context.Context, id int64, reputationBonus int) error
}

// PoolMarker settles a day's pool.
type PoolMarker interface {
	MarkDistributed(ctx context.Context, date string, winner *model.Winner, at time.Time) (bool, error)
}

// EvaluationService runs the daily settlement. Runs are keyed by freeze
// period: a completed period is never settled twice, and a concurrent run
// for the same period is refused.
type EvaluationService struct {
	results EvaluationStore
	posts   EvaluationPosts
	users   EvaluationUsers
	pools   PoolMarker
	ledger  *LedgerService
	cal     *cycle.Calculator
	economy config.EconomyConfig
	lockTTL time.Duration
	clock   Clock
}

// NewEvaluationService creates a new EvaluationService instance.
func NewEvaluationService(
	results EvaluationStore,
	posts EvaluationPosts,
	users EvaluationUsers,
	pools PoolMarker,
	ledger *LedgerService,
	cal *cycle.Calculator,
	economyCfg config.EconomyConfig,
	lockTTL time.Duration,
	clock Clock,
) *EvaluationService {
	return &EvaluationService{
		results: results,
		posts:   posts,
		users:   users,
		pools:   pools,
		ledger:  ledger,
		cal:     cal,
		economy: economyCfg,
		lockTTL: lockTTL,
		clock:   orNow(clock),
	}
}

// Run settles the current freeze period. It returns the existing result
// when the period is already settled.
func (s *EvaluationService) Run(ctx context.Context) (*model.EvaluationResult, error) {
	now := s.clock()
	if !s.cal.IsFreezePeriod(now) {
		return nil, ErrOutsideFreeze
	}
	period := s.cal.CurrentFreezePeriod(now)

	done, err := s.results.GetCompleted(ctx, period)
	if err == nil {
		log.Info().Str("freeze_period", period).Str("run_id", done.RunID).Msg("Evaluation already completed")
		return done, nil
	}
	if !errors.Is(err, repository.ErrEvaluationNotFound) {
		return nil, mapStoreErr("get completed evaluation", err)
	}

	result := &model.EvaluationResult{
		RunID:          uuid.NewString(),
		EvaluationDate: now,
		FreezePeriod:   period,
	}
	if existing, err := s.acquire(ctx, result, now); err != nil || existing != nil {
		return existing, err
	}

	logger := log.With().Str("run_id", result.RunID).Str("freeze_period", period).Logger()
	logger.Info().Msg("Evaluation started")
	start := time.Now()

	if err := s.settle(ctx, result, now, logger); err != nil {
		msg := err.Error()
		result.Status = model.EvaluationFailed
		result.ErrorMessage = &msg
		if serr := s.results.Save(context.WithoutCancel(ctx), result); serr != nil {
			logger.Error().Err(serr).Msg("Failed to record evaluation failure")
		}
		metrics.EvaluationRuns.WithLabelValues(string(model.EvaluationFailed)).Inc()
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
		logger.Error().Str("cause", causeOf(err)).Msg("Evaluation failed")
		return result, fmt.Errorf("evaluation %s failed: %w", period, err)
	}

	metrics.EvaluationRuns.WithLabelValues(string(model.EvaluationCompleted)).Inc()
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	logger.Info().
		Int("posts", result.TotalPostsEvaluated).
		Int("comments", result.TotalCommentsEvaluated).
		Int64("pool_distributed", result.TotalPoolDistributed).
		Int64("liker_rewards", result.TotalLikerRewardsDistributed).
		Dur("elapsed", time.Since(start)).
		Msg("Evaluation completed")
	return result, nil
}

// acquire takes the period lock. A lock older than lockTTL is expired and
// the insert retried once. If another run completed the period meanwhile,
// its result is returned instead.
func (s *EvaluationService) acquire(ctx context.Context, result *model.EvaluationResult, now time.Time) (*model.EvaluationResult, error) {
	for attempt := 0; attempt < 2; attempt++ {
		err := s.results.Acquire(ctx, result)
		if err == nil {
			return nil, nil
		}
		if !errors.Is(err, repository.ErrEvaluationLocked) {
			return nil, mapStoreErr("acquire evaluation lock", err)
		}

		if done, err := s.results.GetCompleted(ctx, result.FreezePeriod); err == nil {
			return done, nil
		}
		running, err := s.results.GetInProgress(ctx, result.FreezePeriod)
		if err != nil {
			if errors.Is(err, repository.ErrEvaluationNotFound) {
				continue
			}
			return nil, mapStoreErr("get running evaluation", err)
		}
		if s.lockTTL <= 0 || now.Sub(running.CreatedAt) < s.lockTTL {
			break
		}

		msg := staleLockMessage
		running.Status = model.EvaluationFailed
		running.ErrorMessage = &msg
		if err := s.results.Save(ctx, running); err != nil {
			return nil, mapStoreErr("expire stale evaluation", err)
		}
		log.Warn().Str("freeze_period", result.FreezePeriod).Str("stale_run_id", running.RunID).Msg("Expired stale evaluation lock")
	}
	return nil, apperr.InProgress("evaluation for %s already in progress", result.FreezePeriod)
}

func (s *EvaluationService) settle(ctx context.Context, result *model.EvaluationResult, now time.Time, logger zerolog.Logger) error {
	start, end := s.cal.ActiveWindowStart(now), s.cal.ActiveWindowEnd(now)
	period := result.FreezePeriod

	posts, err := s.posts.ListForSettlement(ctx, start, end, period)
	if err != nil {
		return mapStoreErr("list posts for settlement", err)
	}
	logger.Info().Int("posts", len(posts)).Time("window_start", start).Time("window_end", end).Msg("Posts selected for evaluation")

	if len(posts) == 0 {
		result.Status = model.EvaluationCompleted
		return mapStoreErr("save evaluation", s.results.Save(ctx, result))
	}

	authors, err := s.authors(ctx, posts)
	if err != nil {
		return err
	}

	ranked := scoring.RankPosts(posts, authors, now)
	for _, sp := range ranked {
		commentScores := make(map[int64]float64, len(sp.Post.Comments))
		for _, sc := range scoring.RankComments(sp.Post.Comments, authors, now) {
			commentScores[sc.Comment.ID] = sc.Score
		}
		if err := s.posts.UpdateScores(ctx, sp.Post.ID, sp.Score, commentScores); err != nil {
			return mapStoreErr("update scores", err)
		}
	}

	if top := pickTopPost(ranked); top.Post.PostPoolCoins > 0 {
		if err := s.payTopPost(ctx, result, top, logger); err != nil {
			return err
		}
	}

	for _, sp := range ranked {
		post := sp.Post
		if len(post.Comments) > 0 && post.CommentPoolCoins > 0 {
			if err := s.payTopComment(ctx, result, post, authors, now); err != nil {
				return err
			}
		}
		if err := s.posts.MarkEvaluated(ctx, post.ID, period, now); err != nil {
			return mapStoreErr("mark post evaluated", err)
		}
		result.TotalPostsEvaluated++
		result.TotalCommentsEvaluated += len(post.Comments)
	}

	poolDate := s.cal.DateKey(start)
	found, err := s.pools.MarkDistributed(ctx, poolDate, result.TopPostWinner, now)
	if err != nil {
		return mapStoreErr("mark pool distributed", err)
	}
	if !found {
		logger.Warn().Str("pool_date", poolDate).Msg("No daily pool to mark distributed")
	}

	result.Status = model.EvaluationCompleted
	return mapStoreErr("save evaluation", s.results.Save(ctx, result))
}

func (s *EvaluationService) authors(ctx context.Context, posts []*model.Post) (scoring.Authors, error) {
	seen := make(map[int64]struct{})
	var ids []int64
	add := func(id int64) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, p := range posts {
		add(p.UserID)
		for _, c := range p.Comments {
			add(c.UserID)
		}
	}

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, mapStoreErr("load authors", err)
	}
	authors := make(scoring.Authors, len(users))
	for id, u := range users {
		authors[id] = scoring.AuthorOf(u)
	}
	return authors, nil
}

func (s *EvaluationService) payTopPost(ctx context.Context, result *model.EvaluationResult, top scoring.ScoredPost, logger zerolog.Logger) error {
	post, period := top.Post, result.FreezePeriod
	reward := economy.Percent(post.PostPoolCoins, s.economy.TopPostRewardPercent)
	postID := post.ID

	if err := s.posts.MarkWinner(ctx, post.ID, reward); err != nil {
		return mapStoreErr("mark post winner", err)
	}
	applied, err := s.credit(ctx, model.LedgerEntry{
		UserID:         post.UserID,
		Amount:         reward,
		Type:           model.TxTypeReward,
		RelatedPostID:  &postID,
		Description:    fmt.Sprintf("Top post reward for %s", period),
		Metadata:       rewardMeta(result, model.WinnerPost, top.Score),
		IdempotencyKey: fmt.Sprintf("eval:%s:post:%d", period, post.ID),
	})
	if err != nil {
		return err
	}
	if applied {
		if err := s.users.RecordWin(ctx, post.UserID, s.economy.WinReputationBonus); err != nil {
			return mapStoreErr("record post win", err)
		}
		metrics.RewardsDistributed.WithLabelValues(model.WinnerPost).Add(float64(reward))
	}

	result.TopPostWinner = &model.Winner{
		UserID: post.UserID,
		PostID: post.ID,
		Score:  top.Score,
		Reward: reward,
		Type:   model.WinnerPost,
	}
	result.TotalPoolDistributed += reward
	logger.Info().Int64("post_id", post.ID).Int64("user_id", post.UserID).Int64("reward", reward).Msg("Top post rewarded")

	for _, likerID := range post.Likes {
		amount := s.economy.LikerRewardPost
		applied, err := s.credit(ctx, model.LedgerEntry{
			UserID:         likerID,
			Amount:         amount,
			Type:           model.TxTypeReward,
			RelatedPostID:  &postID,
			Description:    fmt.Sprintf("Liker reward for top post %s", period),
			Metadata:       rewardMeta(result, "liker", 0),
			IdempotencyKey: fmt.Sprintf("eval:%s:liker:%d:%d", period, post.ID, likerID),
		})
		if err != nil {
			return err
		}
		if applied {
			metrics.RewardsDistributed.WithLabelValues("liker").Add(float64(amount))
		}
		result.LikerRewards = append(result.LikerRewards, model.LikerReward{UserID: likerID, Reward: amount, ForPostID: post.ID})
		result.TotalLikerRewardsDistributed += amount
	}
	return nil
}

func (s *EvaluationService) payTopComment(ctx context.Context, result *model.EvaluationResult, post *model.Post, authors scoring.Authors, now time.Time) error {
	ranked := scoring.RankComments(post.Comments, authors, now)
	if len(ranked) == 0 {
		return nil
	}
	winner := pickTopComment(ranked)
	top := winner.Comment
	reward := economy.Percent(post.CommentPoolCoins, s.economy.TopCommentRewardPercent)
	postID, commentID := post.ID, top.ID

	if err := s.posts.MarkCommentWinner(ctx, top.ID, reward); err != nil {
		return mapStoreErr("mark comment winner", err)
	}
	applied, err := s.credit(ctx, model.LedgerEntry{
		UserID:           top.UserID,
		Amount:           reward,
		Type:             model.TxTypeReward,
		RelatedPostID:    &postID,
		RelatedCommentID: &commentID,
		Description:      "Top comment reward for post",
		Metadata:         rewardMeta(result, model.WinnerComment, winner.Score),
		IdempotencyKey:   fmt.Sprintf("eval:%s:comment:%d", result.FreezePeriod, top.ID),
	})
	if err != nil {
		return err
	}
	if applied {
		if err := s.users.RecordWin(ctx, top.UserID, s.economy.WinReputationBonus/2); err != nil {
			return mapStoreErr("record comment win", err)
		}
		metrics.RewardsDistributed.WithLabelValues(model.WinnerComment).Add(float64(reward))
	}

	result.TopCommentWinners = append(result.TopCommentWinners, model.Winner{
		UserID:    top.UserID,
		PostID:    post.ID,
		CommentID: &commentID,
		Score:     winner.Score,
		Reward:    reward,
		Type:      model.WinnerComment,
	})
	result.TotalPoolDistributed += reward
	return nil
}

// pickTopPost returns the post an earlier attempt for the period already
// marked as winner, else the best ranked one. Reputation moves after a win,
// so a retry must not re-pick from a fresh ranking.
func pickTopPost(ranked []scoring.ScoredPost) scoring.ScoredPost {
	for _, sp := range ranked {
		if sp.Post.IsWinner {
			return sp
		}
	}
	return ranked[0]
}

func pickTopComment(ranked []scoring.ScoredComment) scoring.ScoredComment {
	for _, sc := range ranked {
		if sc.Comment.IsWinner {
			return sc
		}
	}
	return ranked[0]
}

// credit applies a reward and reports whether it was newly applied.
func (s *EvaluationService) credit(ctx context.Context, e model.LedgerEntry) (bool, error) {
	if _, err := s.ledger.Credit(ctx, e); err != nil {
		if errors.Is(err, ErrAlreadyApplied) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func rewardMeta(result *model.EvaluationResult, kind string, score float64) model.TxMetadata {
	return model.TxMetadata{
		Kind: model.MetaReward,
		Reward: &model.RewardMetadata{
			FreezePeriod: result.FreezePeriod,
			RunID:        result.RunID,
			WinnerType:   kind,
			Score:        score,
		},
	}
}
