package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/contentpilot-ai/contentpilot/internal/dispatch"
	"github.com/contentpilot-ai/contentpilot/internal/domain/repositories"
	"github.com/contentpilot-ai/contentpilot/internal/domain/services"
	"github.com/contentpilot-ai/contentpilot/internal/generation"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/config"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/database"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/logger"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/queue"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(cfg.App.Environment, cfg.App.Debug)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Msg("Starting dispatch worker")

	db, err := database.NewGormDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	queueClient := queue.NewClient(&cfg.Redis)
	defer queueClient.Close()

	scheduleRepo := repositories.NewScheduleRepository(db)
	subscriptionRepo := repositories.NewSubscriptionRepository(db)
	logRepo := repositories.NewGenerationLogRepository(db)

	var articles dispatch.ArticleStore
	if cfg.S3.Bucket != "" {
		store, err := storage.NewArticleStore(context.Background(), &cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize article store")
		}
		articles = store
	}

	creditSvc := services.NewCreditService(subscriptionRepo, scheduleRepo)
	genClient := generation.NewClient(&cfg.Generation)

	runner := dispatch.NewRunner(
		scheduleRepo,
		creditSvc,
		genClient,
		queueClient,
		logRepo,
		articles,
		cfg.Dispatch,
	)

	server := queue.NewServer(&cfg.Redis, cfg.Dispatch.MaxConcurrency)
	server.HandleFunc(queue.TypeScheduleDispatch, dispatch.TaskHandler(runner))

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start queue server")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down dispatch worker")
	server.Shutdown()
}
