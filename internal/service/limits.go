package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Gaur97shiv/playknow/internal/apperr"
	"github.com/Gaur97shiv/playknow/internal/config"
	"github.com/Gaur97shiv/playknow/internal/cycle"
	"github.com/Gaur97shiv/playknow/internal/model"
)

// CounterStore persists the daily counters.
type CounterStore interface {
	ResetDailyCounts(ctx context.Context, id int64, now, dayStart time.Time) (*model.User, bool, error)
	IncrementDailyCount(ctx context.Context, id int64, action model.ActionType) (int, error)
}

// LimitUsage is one counter's state.
type LimitUsage struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// Usage is the limits read projection.
type Usage struct {
	Posts     LimitUsage `json:"posts"`
	Comments  LimitUsage `json:"comments"`
	Likes     LimitUsage `json:"likes"`
	LastReset time.Time  `json:"lastReset"`
}

// LimitGate enforces per-user daily action limits with a lazy rollover.
type LimitGate struct {
	store  CounterStore
	cal    *cycle.Calculator
	limits config.LimitsConfig
}

// NewLimitGate creates a new LimitGate instance.
func NewLimitGate(store CounterStore, cal *cycle.Calculator, limits config.LimitsConfig) *LimitGate {
	return &LimitGate{store: store, cal: cal, limits: limits}
}

// Limit returns the daily maximum for an action.
func (g *LimitGate) Limit(action model.ActionType) int {
	switch action.Counter() {
	case model.ActionPost:
		return g.limits.MaxPostsPerDay
	case model.ActionComment:
		return g.limits.MaxCommentsPerDay
	case model.ActionLike:
		return g.limits.MaxLikesPerDay
	}
	return 0
}

func (g *LimitGate) needsRollover(user *model.User, now time.Time) bool {
	return user.LastDailyReset.Before(g.cal.StartOfDay(now))
}

// EnsureRollover zeroes the user's counters once per calendar day and
// returns the up-to-date user.
func (g *LimitGate) EnsureRollover(ctx context.Context, user *model.User, now time.Time) (*model.User, error) {
	if !g.needsRollover(user, now) {
		return user, nil
	}
	fresh, reset, err := g.store.ResetDailyCounts(ctx, user.ID, now, g.cal.StartOfDay(now))
	if err != nil {
		return nil, mapStoreErr("reset daily counts", err)
	}
	if reset {
		log.Debug().Int64("user_id", user.ID).Str("date", g.cal.DateKey(now)).Msg("Daily counters reset")
	}
	return fresh, nil
}

// Check refuses the action once the counter reached its limit.
func (g *LimitGate) Check(user *model.User, action model.ActionType) error {
	limit := g.Limit(action)
	current := user.DailyCount(action)
	if current >= limit {
		return &apperr.LimitError{Action: string(action.Counter()), Current: current, Limit: limit}
	}
	return nil
}

// Increment bumps the action's counter by one.
func (g *LimitGate) Increment(ctx context.Context, userID int64, action model.ActionType) error {
	if _, err := g.store.IncrementDailyCount(ctx, userID, action); err != nil {
		return mapStoreErr("increment daily count", err)
	}
	return nil
}

// Usage reports counters as they would read after a pending rollover,
// without writing it.
func (g *LimitGate) Usage(user *model.User, now time.Time) Usage {
	posts, comments, likes := user.DailyPostCount, user.DailyCommentCount, user.DailyLikeCount
	lastReset := user.LastDailyReset
	if g.needsRollover(user, now) {
		posts, comments, likes = 0, 0, 0
		lastReset = g.cal.StartOfDay(now)
	}
	return Usage{
		Posts:     usage(posts, g.limits.MaxPostsPerDay),
		Comments:  usage(comments, g.limits.MaxCommentsPerDay),
		Likes:     usage(likes, g.limits.MaxLikesPerDay),
		LastReset: lastReset,
	}
}

func usage(used, limit int) LimitUsage {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return LimitUsage{Used: used, Limit: limit, Remaining: remaining}
}
