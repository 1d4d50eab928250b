// Package handler provides the operator bot command handlers.
package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/Gaur97shiv/playknow/internal/apperr"
	"github.com/Gaur97shiv/playknow/internal/model"
	"github.com/Gaur97shiv/playknow/internal/service"
)

// commandTimeout bounds read commands.
const commandTimeout = 10 * time.Second

// Reports is the read side used by the bot.
type Reports interface {
	LatestEvaluation(ctx context.Context) (*model.EvaluationResult, error)
	RecentWinners(ctx context.Context, limit int) ([]service.WinnerSummary, error)
	TodayPool(ctx context.Context, now time.Time) (*model.DailyPool, error)
	CycleStatus(ctx context.Context, now time.Time) (*service.CycleStatus, error)
}

// Evaluator settles the current freeze period.
type Evaluator interface {
	Run(ctx context.Context) (*model.EvaluationResult, error)
}

// Suspender suspends and restores users.
type Suspender interface {
	Suspend(ctx context.Context, id int64, until *time.Time, reason string) (*model.User, error)
	Unsuspend(ctx context.Context, id int64) (*model.User, error)
}

// FraudReview lists and resolves fraud logs.
type FraudReview interface {
	List(ctx context.Context, userID int64, limit int) ([]*model.FraudLog, error)
	Resolve(ctx context.Context, id int64, action string) (*model.FraudLog, error)
}

// userMessage renders err for a chat reply. Unexpected failures are logged
// and replaced by a generic line.
func userMessage(command string, err error) string {
	if apperr.IsExpected(err) {
		return "❌ " + err.Error()
	}
	log.Error().Err(err).Str("command", command).Msg("Bot command failed")
	return "❌ Internal error, please try again later"
}

func replyErr(c tele.Context, command string, err error) error {
	return c.Reply(userMessage(command, err))
}

const rule = "━━━━━━━━━━━━━━━"

func formatCycle(s *service.CycleStatus) string {
	var b strings.Builder
	b.WriteString("🕒 Economy cycle\n" + rule + "\n")
	if s.Cycle.IsFreezePeriod {
		fmt.Fprintf(&b, "❄️ Frozen, actions resume in %s\n", s.Cycle.Formatted)
	} else {
		fmt.Fprintf(&b, "✅ Active, freeze starts in %s\n", s.Cycle.Formatted)
	}
	fmt.Fprintf(&b, "Period: %s\n", s.Cycle.FreezePeriod)
	fmt.Fprintf(&b, "Fees: post %d, comment %d, like %d\n", s.Fees.Post, s.Fees.Comment, s.Fees.Like)
	fmt.Fprintf(&b, "Split: %d%% pool, %d%% platform, %d%% likers\n",
		s.Split.PrizePool, s.Split.PlatformFee, s.Split.LikerReserve)
	fmt.Fprintf(&b, "Daily limits: %d posts, %d comments, %d likes\n",
		s.Limits.MaxPostsPerDay, s.Limits.MaxCommentsPerDay, s.Limits.MaxLikesPerDay)
	if s.Pool != nil {
		fmt.Fprintf(&b, "Pool today: %d coins", s.Pool.TotalPoolCoins)
	}
	return b.String()
}

func formatPool(p *model.DailyPool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💰 Pool %s\n%s\n", p.Date, rule)
	fmt.Fprintf(&b, "Prize pool: %d\n", p.TotalPoolCoins)
	fmt.Fprintf(&b, "Platform fees: %d\n", p.PlatformFeeCoins)
	fmt.Fprintf(&b, "Liker reserve: %d\n", p.LikerReserveCoins)
	fmt.Fprintf(&b, "Activity: %d posts, %d comments, %d likes\n", p.PostsCount, p.CommentsCount, p.LikesCount)
	if p.Distributed {
		b.WriteString("Status: distributed")
		if p.WinnerPostID != nil {
			fmt.Fprintf(&b, " (post #%d won %d)", *p.WinnerPostID, p.WinnerReward)
		}
	} else {
		b.WriteString("Status: open")
	}
	return b.String()
}

func formatEvaluation(e *model.EvaluationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Evaluation %s\n%s\n", e.FreezePeriod, rule)
	fmt.Fprintf(&b, "Status: %s\n", e.Status)
	fmt.Fprintf(&b, "Evaluated: %d posts, %d comments\n", e.TotalPostsEvaluated, e.TotalCommentsEvaluated)
	fmt.Fprintf(&b, "Distributed: %d coins, likers %d\n", e.TotalPoolDistributed, e.TotalLikerRewardsDistributed)
	if w := e.TopPostWinner; w != nil {
		fmt.Fprintf(&b, "🏆 Top post #%d by user %d (score %.2f): +%d\n", w.PostID, w.UserID, w.Score, w.Reward)
	} else {
		b.WriteString("🏆 No top post\n")
	}
	if n := len(e.TopCommentWinners); n > 0 {
		fmt.Fprintf(&b, "💬 Comment winners: %d\n", n)
	}
	if e.ErrorMessage != nil {
		fmt.Fprintf(&b, "⚠️ %s\n", *e.ErrorMessage)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatWinners(ws []service.WinnerSummary) string {
	if len(ws) == 0 {
		return "🏆 No winners yet"
	}
	medals := []string{"🥇", "🥈", "🥉"}
	var b strings.Builder
	b.WriteString("🏆 Recent winners\n" + rule + "\n")
	for i, w := range ws {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		if w.TopPost == nil {
			fmt.Fprintf(&b, "%s %s: no top post\n", rank, w.FreezePeriod)
			continue
		}
		fmt.Fprintf(&b, "%s %s: user %d, post #%d, +%d\n", rank, w.FreezePeriod, w.TopPost.UserID, w.TopPost.PostID, w.TopPost.Reward)
	}
	b.WriteString(rule)
	return b.String()
}

func formatFraudLogs(logs []*model.FraudLog) string {
	if len(logs) == 0 {
		return "🛡 No fraud logs"
	}
	var b strings.Builder
	b.WriteString("🛡 Fraud logs\n" + rule + "\n")
	for _, l := range logs {
		state := "open"
		if l.Resolved {
			state = string(l.Action)
		}
		fmt.Fprintf(&b, "#%d user %d %s [%s] %s: %s\n",
			l.ID, l.UserID, l.Severity, strings.Join(l.Evidence.Flags, ","), state, l.CreatedAt.UTC().Format("01-02 15:04"))
	}
	b.WriteString(rule)
	return b.String()
}

const helpText = `🤖 Operator commands
/cycle - current phase, fees and limits
/pool - today's pool
/latest - latest evaluation
/winners [n] - recent winners
/evaluate - run the evaluation now (admin)
/suspend <user_id> <hours|0> <reason> - suspend a user (admin)
/unsuspend <user_id> - lift a suspension (admin)
/fraud [user_id] - open fraud logs, or one user's (admin)
/resolve <log_id> <action> - close a fraud log (admin)
/help - this message`
