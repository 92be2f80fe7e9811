package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/civictrack/civictrack-backend/internal/capture"
	"github.com/civictrack/civictrack-backend/internal/classifier"
	directoryhandler "github.com/civictrack/civictrack-backend/internal/directory/handler"
	directoryrepo "github.com/civictrack/civictrack-backend/internal/directory/repository"
	directoryservice "github.com/civictrack/civictrack-backend/internal/directory/service"
	"github.com/civictrack/civictrack-backend/internal/location"
	"github.com/civictrack/civictrack-backend/internal/notification/consumers"
	notificationhandler "github.com/civictrack/civictrack-backend/internal/notification/handler"
	notificationservice "github.com/civictrack/civictrack-backend/internal/notification/service"
	"github.com/civictrack/civictrack-backend/internal/reportid"
	sessionhandler "github.com/civictrack/civictrack-backend/internal/session/handler"
	"github.com/civictrack/civictrack-backend/internal/session/jwt"
	sessionrepo "github.com/civictrack/civictrack-backend/internal/session/repository"
	sessionservice "github.com/civictrack/civictrack-backend/internal/session/service"
	"github.com/civictrack/civictrack-backend/internal/wizard"
	wizardhandler "github.com/civictrack/civictrack-backend/internal/wizard/handler"
	"github.com/civictrack/civictrack-backend/pkg/config"
	"github.com/civictrack/civictrack-backend/pkg/database"
	"github.com/civictrack/civictrack-backend/pkg/httputil"
	"github.com/civictrack/civictrack-backend/pkg/i18n"
	"github.com/civictrack/civictrack-backend/pkg/kvstore"
	"github.com/civictrack/civictrack-backend/pkg/logger"
	"github.com/civictrack/civictrack-backend/pkg/messaging"
)

const serviceName = "civictrack"

func main() {
	// Load configuration
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting CivicTrack")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Key-value store for sessions and notification feeds
	store, err := kvstore.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer store.Close()

	// Event transport: RabbitMQ when enabled, otherwise an in-process bus
	var (
		reportEvents messaging.EventPublisher
		pushEvents   messaging.EventPublisher
		rmq          *messaging.RabbitMQ
		consumer     *messaging.Consumer
		bus          *messaging.LocalBus
	)
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		reportPub, err := messaging.NewPublisher(rmq, messaging.ExchangeReports, serviceName, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create report publisher")
		}
		pushPub, err := messaging.NewPublisher(rmq, messaging.ExchangeNotifications, serviceName, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create notification publisher")
		}
		consumer, err = consumers.Subscribe(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe to report events")
		}
		reportEvents, pushEvents = reportPub, pushPub
	} else {
		bus = messaging.NewLocalBus(serviceName, log)
		reportEvents, pushEvents = bus, bus
	}

	// Notifications
	notifications := notificationservice.NewNotificationService(store, notificationservice.NewEventPusher(pushEvents), pushEvents, log)
	if consumer != nil {
		consumers.NewReportEventConsumer(consumer, notifications, log)
		if err := consumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start report event consumer")
		}
	} else {
		consumers.NewReportEventConsumer(bus, notifications, log)
	}

	// Sessions
	sessions := sessionservice.NewSessionService(
		sessionrepo.NewUserRepository(store),
		jwt.NewManager(&cfg.JWT),
		notifications,
		cfg.Wizard.AuthDelay,
		log,
	)
	notifications.UsePreferences(sessions)

	// Report directory
	var repo directoryservice.Repository
	var db *database.DB
	switch cfg.Directory.Driver {
	case config.DirectoryDriverPostgres:
		db, err = database.New(&cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		if _, err := db.ExecContext(ctx, directoryrepo.Schema); err != nil {
			log.Fatal().Err(err).Msg("failed to apply report schema")
		}
		repo = directoryrepo.NewPostgresRepository(db)
	default:
		mem := directoryrepo.NewMemoryRepository()
		if cfg.Directory.SeedMockReports {
			if err := directoryrepo.Seed(ctx, mem); err != nil {
				log.Fatal().Err(err).Msg("failed to seed reports")
			}
		}
		repo = mem
	}
	directory := directoryservice.NewDirectoryService(repo, reportEvents, log)

	ids := reportid.New(cfg.Wizard.IDScheme)
	if err := directory.ReserveIDs(ctx, ids); err != nil {
		log.Fatal().Err(err).Msg("failed to reserve report ids")
	}

	// Report wizards
	registry := wizard.NewRegistry(wizard.Dependencies{
		Classifier:   classifier.New(),
		IDs:          ids,
		Directory:    directory,
		Sink:         notifications,
		AnalyzeDelay: cfg.Wizard.AnalyzeDelay,
		SubmitDelay:  cfg.Wizard.SubmitDelay,
	}, cfg.Wizard.DraftTTL, log)
	if err := registry.StartSweeper(cfg.Wizard.SweepSchedule); err != nil {
		log.Fatal().Err(err).Msg("failed to start draft sweeper")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(i18n.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Accept-Language", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.Authenticate(sessions))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":  "healthy",
			"service": serviceName,
			"drafts":  registry.Len(),
		}
		if db != nil {
			health["database"] = db.Health(r.Context())
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/wizards", wizardhandler.NewWizardHandler(
			registry, capture.New(), location.NewResolver(nil, 5*time.Second, log), log,
		).Register)
		r.Route("/auth", sessionhandler.NewSessionHandler(sessions, log).Register)
		r.Route("/notifications", notificationhandler.NewNotificationHandler(notifications, log).Register)
		r.Route("/reports", directoryhandler.NewReportHandler(directory, log).Register)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	registry.Shutdown(shutdownCtx)

	log.Info().Msg("server stopped")
}
