package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// AdminHandler handles admin-only commands.
type AdminHandler struct {
	evaluator   Evaluator
	accounts    Suspender
	fraud       FraudReview
	evalTimeout time.Duration
	clock       func() time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(evaluator Evaluator, accounts Suspender, fraud FraudReview, evalTimeout time.Duration, clock func() time.Time) *AdminHandler {
	if clock == nil {
		clock = time.Now
	}
	if evalTimeout <= 0 {
		evalTimeout = 10 * time.Minute
	}
	return &AdminHandler{evaluator: evaluator, accounts: accounts, fraud: fraud, evalTimeout: evalTimeout, clock: clock}
}

// HandleEvaluate handles /evaluate.
func (h *AdminHandler) HandleEvaluate(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.evalTimeout)
	defer cancel()

	sender := c.Sender()
	if sender == nil {
		return nil
	}
	log.Info().Int64("admin_id", sender.ID).Str("operation", "evaluate").Msg("Admin operation requested")

	result, err := h.evaluator.Run(ctx)
	if err != nil {
		return replyErr(c, "evaluate", err)
	}
	return c.Reply("✅ Evaluation finished\n\n" + formatEvaluation(result))
}

type suspendArgs struct {
	userID int64
	until  *time.Time
	reason string
}

// parseSuspendArgs reads "<user_id> <hours|0> <reason...>". Zero hours means indefinite.
func parseSuspendArgs(args []string, now time.Time) (*suspendArgs, error) {
	if len(args) < 3 {
		return nil, errors.New("usage: /suspend <user_id> <hours|0> <reason>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid user id %q", args[0])
	}
	hours, err := strconv.Atoi(args[1])
	if err != nil || hours < 0 {
		return nil, fmt.Errorf("invalid hours %q", args[1])
	}
	out := &suspendArgs{userID: id, reason: strings.Join(args[2:], " ")}
	if hours > 0 {
		until := now.Add(time.Duration(hours) * time.Hour)
		out.until = &until
	}
	return out, nil
}

// HandleSuspend handles /suspend.
func (h *AdminHandler) HandleSuspend(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args, err := parseSuspendArgs(c.Args(), h.clock())
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}

	user, err := h.accounts.Suspend(ctx, args.userID, args.until, args.reason)
	if err != nil {
		return replyErr(c, "suspend", err)
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", args.userID).
		Str("operation", "suspend").
		Msg("Admin operation executed")

	until := "indefinitely"
	if user.SuspendedUntil != nil {
		until = "until " + user.SuspendedUntil.UTC().Format(time.RFC3339)
	}
	return c.Reply(fmt.Sprintf("✅ User %s (ID: %d) suspended %s", user.Username, user.ID, until))
}

// HandleUnsuspend handles /unsuspend <user_id>.
func (h *AdminHandler) HandleUnsuspend(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("❌ Usage: /unsuspend <user_id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return c.Reply("❌ Invalid user id")
	}

	user, err := h.accounts.Unsuspend(ctx, id)
	if err != nil {
		return replyErr(c, "unsuspend", err)
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", id).
		Str("operation", "unsuspend").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf("✅ User %s (ID: %d) restored", user.Username, user.ID))
}

// HandleFraud handles /fraud [user_id].
func (h *AdminHandler) HandleFraud(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var userID int64
	if args := c.Args(); len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return c.Reply("❌ Usage: /fraud [user_id]")
		}
		userID = id
	}

	logs, err := h.fraud.List(ctx, userID, 0)
	if err != nil {
		return replyErr(c, "fraud", err)
	}
	return c.Reply(formatFraudLogs(logs))
}

// HandleResolve handles /resolve <log_id> <action>.
func (h *AdminHandler) HandleResolve(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 2 {
		return c.Reply("❌ Usage: /resolve <log_id> <none|warning|reputation_penalty|temporary_suspension|permanent_ban>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return c.Reply("❌ Invalid log id")
	}

	l, err := h.fraud.Resolve(ctx, id, args[1])
	if err != nil {
		return replyErr(c, "resolve", err)
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("fraud_log_id", id).
		Str("operation", "resolve").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf("✅ Fraud log #%d resolved: %s", l.ID, l.Action))
}
