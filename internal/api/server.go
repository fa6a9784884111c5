package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/contentpilot-ai/contentpilot/internal/api/handlers"
	"github.com/contentpilot-ai/contentpilot/internal/api/middleware"
	"github.com/contentpilot-ai/contentpilot/internal/dispatch"
	"github.com/contentpilot-ai/contentpilot/internal/domain/repositories"
	"github.com/contentpilot-ai/contentpilot/internal/domain/services"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/config"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/metrics"
	pkgredis "github.com/contentpilot-ai/contentpilot/internal/pkg/redis"
	"github.com/contentpilot-ai/contentpilot/internal/webhook"
)

type Server struct {
	cfg        *config.Config
	router     *chi.Mux
	httpServer *http.Server
}

type Dependencies struct {
	ScheduleSvc   *services.ScheduleService
	Runner        *dispatch.Runner
	APIKeys       *repositories.APIKeyRepository
	Plans         *repositories.PlanRepository
	Subscriptions *repositories.SubscriptionRepository
	Redis         *pkgredis.Client
	DB            *gorm.DB
}

func NewServer(cfg *config.Config, deps *Dependencies) *Server {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger())
	router.Use(middleware.Recoverer())
	router.Use(chimiddleware.Timeout(5 * time.Minute))

	allowedOrigins := strings.Split(cfg.App.FrontendURL, ",")
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	router.Use(corsHandler.Handler)

	scheduleHandler := handlers.NewScheduleHandler(deps.ScheduleSvc)
	billingHandler := handlers.NewBillingHandler(deps.Plans, deps.Subscriptions)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis.Client)

	verifier := webhook.NewSignatureVerifier(cfg.Dispatch.WebhookSecret)
	dispatchHandler := handlers.NewDispatchHandler(deps.Runner, verifier, deps.Redis)

	authMiddleware := middleware.NewAuthMiddleware(deps.APIKeys)
	triggerAuth := middleware.NewTriggerAuth(cfg.Dispatch.TriggerToken)
	rateLimiter := middleware.NewRateLimiter(deps.Redis)

	router.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Group(func(r chi.Router) {
			r.Use(rateLimiter.Limit(100, time.Minute))

			r.Get("/health", healthHandler.Health)
			r.Get("/health/live", healthHandler.Live)
			r.Get("/health/ready", healthHandler.Ready)
			r.Get("/billing/plans", billingHandler.GetPlans)
		})

		// Owner-facing, API key required
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(rateLimiter.Limit(1000, time.Minute))

			r.Get("/schedules", scheduleHandler.List)
			r.Post("/schedules", scheduleHandler.Create)
			r.Post("/schedules/batch", scheduleHandler.CreateBatch)
			r.Get("/schedules/{scheduleID}", scheduleHandler.Get)
			r.Put("/schedules/{scheduleID}", scheduleHandler.Update)
			r.Delete("/schedules/{scheduleID}", scheduleHandler.Delete)
			r.Post("/schedules/{scheduleID}/pause", scheduleHandler.Pause)
			r.Post("/schedules/{scheduleID}/resume", scheduleHandler.Resume)
			r.Get("/schedules/{scheduleID}/history", scheduleHandler.History)

			r.Get("/billing/subscription", billingHandler.GetSubscription)
		})
	})

	// Publisher-signed dispatch webhook
	router.Post("/hooks/dispatch", dispatchHandler.Dispatch)

	// Internal polling trigger
	router.Group(func(r chi.Router) {
		r.Use(triggerAuth.Require)
		r.Get("/internal/cron/execute", dispatchHandler.Execute)
	})

	router.Handle("/metrics", metrics.Handler())

	return &Server{
		cfg:    cfg,
		router: router,
	}
}

func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until SIGINT/SIGTERM, then drains in-flight
// requests.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down HTTP server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}
