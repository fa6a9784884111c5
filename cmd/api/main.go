package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/contentpilot-ai/contentpilot/internal/api"
	"github.com/contentpilot-ai/contentpilot/internal/dispatch"
	"github.com/contentpilot-ai/contentpilot/internal/domain/repositories"
	"github.com/contentpilot-ai/contentpilot/internal/domain/services"
	"github.com/contentpilot-ai/contentpilot/internal/generation"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/config"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/database"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/logger"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/queue"
	pkgredis "github.com/contentpilot-ai/contentpilot/internal/pkg/redis"
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
		Msg("Starting API server")

	db, err := database.NewGormDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	if err := database.SeedPlans(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed plans")
	}

	redisClient, err := pkgredis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	queueClient := queue.NewClient(&cfg.Redis)
	defer queueClient.Close()

	scheduleRepo := repositories.NewScheduleRepository(db)
	planRepo := repositories.NewPlanRepository(db)
	subscriptionRepo := repositories.NewSubscriptionRepository(db)
	logRepo := repositories.NewGenerationLogRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)

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

	scheduleSvc := services.NewScheduleService(
		scheduleRepo,
		logRepo,
		queueClient,
		planRepo,
		subscriptionRepo,
	)

	server := api.NewServer(cfg, &api.Dependencies{
		ScheduleSvc:   scheduleSvc,
		Runner:        runner,
		APIKeys:       apiKeyRepo,
		Plans:         planRepo,
		Subscriptions: subscriptionRepo,
		Redis:         redisClient,
		DB:            db,
	})

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with error")
	}

	log.Info().Msg("Server stopped")
}
