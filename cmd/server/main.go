// Package main is the entry point for the playknow reward economy server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Gaur97shiv/playknow/internal/api"
	"github.com/Gaur97shiv/playknow/internal/bot"
	"github.com/Gaur97shiv/playknow/internal/config"
	"github.com/Gaur97shiv/playknow/internal/cycle"
	"github.com/Gaur97shiv/playknow/internal/economy"
	"github.com/Gaur97shiv/playknow/internal/fraud"
	"github.com/Gaur97shiv/playknow/internal/pkg/db"
	"github.com/Gaur97shiv/playknow/internal/pkg/lock"
	"github.com/Gaur97shiv/playknow/internal/repository"
	"github.com/Gaur97shiv/playknow/internal/scheduler"
	"github.com/Gaur97shiv/playknow/internal/service"
)

const evaluationJob = "daily-evaluation"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Log)
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	ledgerRepo := repository.NewLedgerRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	postRepo := repository.NewPostRepository(dbPool.Pool)
	poolRepo := repository.NewPoolRepository(dbPool.Pool)
	evalRepo := repository.NewEvaluationRepository(dbPool.Pool)
	fraudRepo := repository.NewFraudRepository(dbPool.Pool)
	activityRepo := repository.NewActivityRepository(dbPool.Pool)

	loc, err := cfg.Cycle.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid cycle timezone")
	}
	cal, err := cycle.New(cfg.Cycle.FreezeStartHour, cfg.Cycle.ActiveStartHour, loc)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid cycle configuration")
	}
	splitter, err := economy.NewSplitter(cfg.Economy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid economy configuration")
	}

	// Services
	userLock := lock.NewUserLock()
	detector := fraud.NewDetector(activityRepo, fraudRepo, userRepo, cfg.Fraud)
	ledgerService := service.NewLedgerService(userRepo, ledgerRepo, nil)
	limitGate := service.NewLimitGate(userRepo, cal, cfg.Limits)
	actionService := service.NewActionService(
		userRepo,
		postRepo,
		limitGate,
		detector,
		ledgerService,
		splitter,
		cal,
		userLock,
		cfg.Economy.LockTimeout,
		nil,
	)
	evaluationService := service.NewEvaluationService(
		evalRepo,
		postRepo,
		userRepo,
		poolRepo,
		ledgerService,
		cal,
		cfg.Economy,
		cfg.Evaluation.LockTTL,
		nil,
	)
	reportService := service.NewReportService(evalRepo, poolRepo, txRepo, userRepo, limitGate, splitter, cal, cfg.Limits)
	accountService := service.NewAccountService(userRepo, ledgerService, cfg.Economy.SignupBonus, nil)
	fraudReview := service.NewFraudReviewService(fraudRepo, nil)

	// Scheduler
	sched := scheduler.New(loc)
	if cfg.Evaluation.Enabled {
		err := sched.AddJob(evaluationJob, cfg.Evaluation.Schedule, cfg.Evaluation.Timeout, func(ctx context.Context) error {
			_, err := evaluationService.Run(ctx)
			return err
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule evaluation")
		}
	}
	sched.Start()
	for _, job := range sched.ListJobs() {
		log.Info().Str("job", job.Name).Str("schedule", job.Schedule).Time("next_run", job.NextRun).Msg("Job scheduled")
	}

	// Rate limiter
	var limiter *api.RateLimiter
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		if client := api.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); client != nil {
			redisClient = client
			limiter = api.NewRateLimiter(client, cfg.Redis.Limit, cfg.Redis.Window)
		}
	}

	// HTTP server
	if strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(actionService, reportService, evaluationService, accountService, fraudReview, cfg.Evaluation.Timeout, nil)
	router := api.NewRouter(api.Deps{
		Handler: handler,
		Health:  api.NewHealthHandler(dbPool, redisClient),
		Auth:    api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Admin.IDs),
		Limiter: limiter,
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Operator bot
	var operatorBot *bot.Bot
	if cfg.Bot.Token != "" {
		operatorBot, err = bot.New(&bot.Dependencies{
			Config:    cfg,
			Reports:   reportService,
			Evaluator: evaluationService,
			Accounts:  accountService,
			Fraud:     fraudReview,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to create bot, continuing without it")
		} else {
			go operatorBot.Start()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if operatorBot != nil {
		operatorBot.Stop()
	}
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("Timed out waiting for running jobs")
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	log.Info().Msg("Server stopped gracefully")
}

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
