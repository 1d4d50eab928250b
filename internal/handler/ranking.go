package handler

import (
	"context"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/Gaur97shiv/playknow/internal/service"
)

// RankingHandler serves the read commands.
type RankingHandler struct {
	reports Reports
	clock   func() time.Time
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(reports Reports, clock func() time.Time) *RankingHandler {
	if clock == nil {
		clock = time.Now
	}
	return &RankingHandler{reports: reports, clock: clock}
}

// HandleCycle handles /cycle.
func (h *RankingHandler) HandleCycle(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	status, err := h.reports.CycleStatus(ctx, h.clock())
	if err != nil {
		return replyErr(c, "cycle", err)
	}
	return c.Reply(formatCycle(status))
}

// HandlePool handles /pool.
func (h *RankingHandler) HandlePool(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	pool, err := h.reports.TodayPool(ctx, h.clock())
	if err != nil {
		return replyErr(c, "pool", err)
	}
	return c.Reply(formatPool(pool))
}

// HandleLatest handles /latest.
func (h *RankingHandler) HandleLatest(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := h.reports.LatestEvaluation(ctx)
	if err != nil {
		return replyErr(c, "latest", err)
	}
	return c.Reply(formatEvaluation(result))
}

// HandleWinners handles /winners [n].
func (h *RankingHandler) HandleWinners(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	limit := service.DefaultWinnersLimit
	if args := c.Args(); len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return c.Reply("❌ Usage: /winners [n]")
		}
		limit = n
	}

	winners, err := h.reports.RecentWinners(ctx, limit)
	if err != nil {
		return replyErr(c, "winners", err)
	}
	return c.Reply(formatWinners(winners))
}

// HandleHelp handles /help and /start.
func (h *RankingHandler) HandleHelp(c tele.Context) error {
	return c.Reply(helpText)
}
