package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gaur97shiv/playknow/internal/apperr"
	"github.com/Gaur97shiv/playknow/internal/model"
)

type evalScene struct {
	author, liker1, liker2 *model.User
	top, other, stale      *model.Post
	topComment             *model.Comment
}

// seedEvaluation builds one closed window with two posts. The first post has
// two likes, two comments and the larger pools, so it ranks first.
func seedEvaluation(f *fixture) evalScene {
	var s evalScene
	s.author = f.store.addUser(0, at(15, 7, 0))
	s.liker1 = f.store.addUser(0, at(15, 7, 0))
	s.liker2 = f.store.addUser(0, at(15, 7, 0))

	s.top = f.store.addPost(s.author.ID, at(15, 10, 0), 100, 10, s.liker1.ID, s.liker2.ID)
	s.topComment = f.store.addComment(s.top.ID, s.liker1.ID, at(15, 11, 0), s.author.ID)
	f.store.addComment(s.top.ID, s.liker2.ID, at(15, 12, 0))
	s.other = f.store.addPost(s.liker2.ID, at(15, 13, 0), 20, 0)
	s.stale = f.store.addPost(s.author.ID, at(14, 10, 0), 40, 0)

	f.store.pools["2024-01-15"] = &model.DailyPool{Date: "2024-01-15", TotalPoolCoins: 120}
	return s
}

func TestEvaluation_TopPostPayout(t *testing.T) {
	f := newFixture(at(16, 1, 0))
	s := seedEvaluation(f)

	result, err := f.eval.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.EvaluationCompleted, result.Status)
	assert.Equal(t, f.cal.CurrentFreezePeriod(f.now), result.FreezePeriod)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.TotalPostsEvaluated)
	assert.Equal(t, 2, result.TotalCommentsEvaluated)

	require.NotNil(t, result.TopPostWinner)
	assert.Equal(t, s.top.ID, result.TopPostWinner.PostID)
	assert.Equal(t, s.author.ID, result.TopPostWinner.UserID)
	assert.Equal(t, int64(50), result.TopPostWinner.Reward)

	require.Len(t, result.TopCommentWinners, 1)
	assert.Equal(t, s.topComment.ID, *result.TopCommentWinners[0].CommentID)
	assert.Equal(t, int64(5), result.TopCommentWinners[0].Reward)

	assert.Len(t, result.LikerRewards, 2)
	assert.Equal(t, int64(55), result.TotalPoolDistributed)
	assert.Equal(t, int64(2), result.TotalLikerRewardsDistributed)

	author := f.store.user(s.author.ID)
	assert.Equal(t, int64(50), author.Balance)
	assert.Equal(t, 1, author.TotalWins)
	assert.Equal(t, 55, author.Reputation)

	liker1 := f.store.user(s.liker1.ID)
	assert.Equal(t, int64(1+5), liker1.Balance)
	assert.Equal(t, 1, liker1.TotalWins)
	assert.Equal(t, 52, liker1.Reputation)
	assert.Equal(t, int64(1), f.store.user(s.liker2.ID).Balance)

	top := f.store.post(s.top.ID)
	assert.True(t, top.Evaluated)
	assert.True(t, top.IsWinner)
	assert.Equal(t, int64(50), top.WinnerReward)
	assert.NotZero(t, top.Score)
	for _, c := range top.Comments {
		assert.True(t, c.Evaluated)
	}
	assert.True(t, f.store.post(s.other.ID).Evaluated)
	assert.False(t, f.store.post(s.stale.ID).Evaluated, "posts outside the window stay open")

	pool, err := f.store.GetByDate(context.Background(), "2024-01-15")
	require.NoError(t, err)
	assert.True(t, pool.Distributed)
	require.NotNil(t, pool.WinnerPostID)
	assert.Equal(t, s.top.ID, *pool.WinnerPostID)

	for _, txn := range f.store.transactions(s.author.ID) {
		require.NotNil(t, txn.Metadata.Reward)
		assert.Equal(t, result.RunID, txn.Metadata.Reward.RunID)
	}
}

func TestEvaluation_RunTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(at(16, 1, 0))
	s := seedEvaluation(f)

	first, err := f.eval.Run(ctx)
	require.NoError(t, err)

	f.now = at(16, 2, 0)
	second, err := f.eval.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, int64(50), f.store.user(s.author.ID).Balance)
	assert.Equal(t, 1, f.store.user(s.author.ID).TotalWins)
	assert.Len(t, f.store.evals, 1)
}

func TestEvaluation_OutsideFreeze(t *testing.T) {
	f := newFixture(at(15, 10, 0))
	seedEvaluation(f)

	_, err := f.eval.Run(context.Background())
	assert.ErrorIs(t, err, ErrOutsideFreeze)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.store.evals)
}

func TestEvaluation_NoPosts(t *testing.T) {
	f := newFixture(at(16, 1, 0))

	result, err := f.eval.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.EvaluationCompleted, result.Status)
	assert.Zero(t, result.TotalPostsEvaluated)
	assert.Nil(t, result.TopPostWinner)
}

func TestEvaluation_EmptyPostPoolSkipsPayout(t *testing.T) {
	f := newFixture(at(16, 1, 0))
	author := f.store.addUser(0, at(15, 7, 0))
	liker := f.store.addUser(0, at(15, 7, 0))
	f.store.addPost(author.ID, at(15, 10, 0), 0, 0, liker.ID)

	result, err := f.eval.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result.TopPostWinner)
	assert.Empty(t, result.LikerRewards)
	assert.Equal(t, 1, result.TotalPostsEvaluated)
	assert.Equal(t, int64(0), f.store.user(liker.ID).Balance)
}

func TestEvaluation_LockHeld(t *testing.T) {
	ctx := context.Background()
	f := newFixture(at(16, 1, 0))
	seedEvaluation(f)

	running := &model.EvaluationResult{RunID: "other", FreezePeriod: f.cal.CurrentFreezePeriod(f.now), EvaluationDate: at(16, 0, 50)}
	require.NoError(t, f.store.Acquire(ctx, running))

	_, err := f.eval.Run(ctx)
	assert.ErrorIs(t, err, apperr.ErrInProgress)
}

func TestEvaluation_StaleLockExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(at(16, 1, 0))
	s := seedEvaluation(f)

	stale := &model.EvaluationResult{RunID: "crashed", FreezePeriod: f.cal.CurrentFreezePeriod(f.now), EvaluationDate: at(15, 23, 0)}
	require.NoError(t, f.store.Acquire(ctx, stale))

	result, err := f.eval.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.EvaluationCompleted, result.Status)
	assert.Equal(t, int64(50), f.store.user(s.author.ID).Balance)

	require.Len(t, f.store.evals, 2)
	old := f.store.evals[0]
	assert.Equal(t, model.EvaluationFailed, old.Status)
	require.NotNil(t, old.ErrorMessage)
	assert.Equal(t, staleLockMessage, *old.ErrorMessage)
}

func TestEvaluation_FailureRecordedAndRerunSafe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(at(16, 1, 0))
	s := seedEvaluation(f)
	f.store.saveErr = errors.New("disk full")

	result, err := f.eval.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.Equal(t, model.EvaluationFailed, result.Status)
	require.NotNil(t, result.ErrorMessage)
	assert.Equal(t, model.EvaluationFailed, f.store.evals[0].Status)

	f.store.saveErr = nil
	again, err := f.eval.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.EvaluationCompleted, again.Status)
	assert.NotEqual(t, result.RunID, again.RunID)

	// Rewards were keyed by period, so the retry pays nothing twice.
	assert.Equal(t, int64(50), f.store.user(s.author.ID).Balance)
	assert.Equal(t, 1, f.store.user(s.author.ID).TotalWins)

	// The completed record still describes the settlement that was paid.
	assertSettled(t, f, s, again)
	require.NotNil(t, result.TopPostWinner)
	assert.Equal(t, result.TopPostWinner.PostID, again.TopPostWinner.PostID)
	assert.Equal(t, result.TopPostWinner.Reward, again.TopPostWinner.Reward)
}

func TestEvaluation_RerunAfterMidLoopFailureKeepsWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(at(16, 1, 0))
	s := seedEvaluation(f)
	f.store.markFailAt = 2
	f.store.markErr = errors.New("connection reset")

	failed, err := f.eval.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, model.EvaluationFailed, failed.Status)
	assert.True(t, f.store.post(s.top.ID).Evaluated)
	assert.False(t, f.store.post(s.other.ID).Evaluated)
	require.NotNil(t, failed.TopPostWinner)

	f.now = at(16, 2, 0)
	again, err := f.eval.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.EvaluationCompleted, again.Status)

	assertSettled(t, f, s, again)
	assert.Equal(t, failed.TopPostWinner.PostID, again.TopPostWinner.PostID)
	assert.Equal(t, failed.TopPostWinner.UserID, again.TopPostWinner.UserID)
	assert.Equal(t, failed.TopPostWinner.Reward, again.TopPostWinner.Reward)

	assert.False(t, f.store.post(s.other.ID).IsWinner)
	assert.True(t, f.store.post(s.other.ID).Evaluated)
	assert.Equal(t, int64(50), f.store.user(s.author.ID).Balance)
	assert.Equal(t, 1, f.store.user(s.author.ID).TotalWins)
	assert.Equal(t, int64(1), f.store.user(s.liker2.ID).Balance, "author of the runner-up gets only a liker reward")
	assert.Equal(t, int64(1+5), f.store.user(s.liker1.ID).Balance)
}

// assertSettled checks a completed record against the seeded scene.
func assertSettled(t *testing.T, f *fixture, s evalScene, result *model.EvaluationResult) {
	t.Helper()
	require.NotNil(t, result.TopPostWinner)
	assert.Equal(t, s.top.ID, result.TopPostWinner.PostID)
	assert.Equal(t, int64(50), result.TopPostWinner.Reward)
	assert.Equal(t, 2, result.TotalPostsEvaluated)
	assert.Equal(t, 2, result.TotalCommentsEvaluated)
	assert.Equal(t, int64(55), result.TotalPoolDistributed)
	assert.Equal(t, int64(2), result.TotalLikerRewardsDistributed)
	assert.Len(t, result.LikerRewards, 2)
	require.Len(t, result.TopCommentWinners, 1)
	assert.Equal(t, s.topComment.ID, *result.TopCommentWinners[0].CommentID)

	winners := 0
	for _, id := range []int64{s.top.ID, s.other.ID} {
		if f.store.post(id).IsWinner {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "one top post per period")

	commentWinners := 0
	for _, c := range f.store.post(s.top.ID).Comments {
		if c.IsWinner {
			commentWinners++
		}
	}
	assert.Equal(t, 1, commentWinners)

	pool, err := f.store.GetByDate(context.Background(), "2024-01-15")
	require.NoError(t, err)
	assert.True(t, pool.Distributed)
	require.NotNil(t, pool.WinnerPostID)
	assert.Equal(t, s.top.ID, *pool.WinnerPostID)
}
