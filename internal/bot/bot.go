// Package bot runs the Telegram operator bot.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/Gaur97shiv/playknow/internal/config"
	"github.com/Gaur97shiv/playknow/internal/handler"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	rankingHandler *handler.RankingHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config    *config.Config
	Reports   handler.Reports
	Evaluator handler.Evaluator
	Accounts  handler.Suspender
	Fraud     handler.FraudReview
	Clock     func() time.Time
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Bot handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		rankingHandler: handler.NewRankingHandler(deps.Reports, deps.Clock),
		adminHandler:   handler.NewAdminHandler(deps.Evaluator, deps.Accounts, deps.Fraud, deps.Config.Evaluation.Timeout, deps.Clock),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.rankingHandler.HandleHelp)
	b.bot.Handle("/help", b.rankingHandler.HandleHelp)
	b.bot.Handle("/cycle", b.rankingHandler.HandleCycle)
	b.bot.Handle("/pool", b.rankingHandler.HandlePool)
	b.bot.Handle("/latest", b.rankingHandler.HandleLatest)
	b.bot.Handle("/winners", b.rankingHandler.HandleWinners)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/evaluate", b.adminHandler.HandleEvaluate)
	adminGroup.Handle("/suspend", b.adminHandler.HandleSuspend)
	adminGroup.Handle("/unsuspend", b.adminHandler.HandleUnsuspend)
	adminGroup.Handle("/fraud", b.adminHandler.HandleFraud)
	adminGroup.Handle("/resolve", b.adminHandler.HandleResolve)
}

// Start starts polling. It blocks until Stop.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
