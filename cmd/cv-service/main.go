package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authhandler "github.com/cvbank/cvbank-backend/internal/auth/handler"
	"github.com/cvbank/cvbank-backend/internal/auth/jwt"
	authrepo "github.com/cvbank/cvbank-backend/internal/auth/repository"
	authservice "github.com/cvbank/cvbank-backend/internal/auth/service"
	"github.com/cvbank/cvbank-backend/internal/cv/enricher"
	"github.com/cvbank/cvbank-backend/internal/cv/events"
	"github.com/cvbank/cvbank-backend/internal/cv/extractor"
	cvhandler "github.com/cvbank/cvbank-backend/internal/cv/handler"
	"github.com/cvbank/cvbank-backend/internal/cv/llm"
	cvrepo "github.com/cvbank/cvbank-backend/internal/cv/repository"
	"github.com/cvbank/cvbank-backend/internal/cv/scheduler"
	cvservice "github.com/cvbank/cvbank-backend/internal/cv/service"
	"github.com/cvbank/cvbank-backend/internal/cv/storage"
	"github.com/cvbank/cvbank-backend/pkg/config"
	"github.com/cvbank/cvbank-backend/pkg/database"
	"github.com/cvbank/cvbank-backend/pkg/httputil"
	"github.com/cvbank/cvbank-backend/pkg/logger"
	"github.com/cvbank/cvbank-backend/pkg/messaging"
	"github.com/cvbank/cvbank-backend/pkg/mongodb"
	"github.com/cvbank/cvbank-backend/pkg/redisconn"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
)

const serviceName = "cv-service"

func main() {
	// Load configuration
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(serviceName, cfg.Server.Environment)
	if err := log.SetLevel(cfg.Server.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("invalid server.log_level")
	}
	log.Info().Msg("starting CV Service")

	ctx := context.Background()

	// Connect to the record store
	var (
		cvRepo   cvrepo.CVRepository
		userRepo authrepo.UserRepository
		dbHealth func(context.Context) map[string]string
	)
	switch cfg.Database.Driver {
	case config.DriverMongo:
		mdb, err := mongodb.Connect(ctx, &cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mongo")
		}
		defer mdb.Close(context.Background())
		if err := mdb.EnsureIndexes(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to create mongo indexes")
		}
		cvRepo = cvrepo.NewMongoCVRepository(mdb.Database)
		userRepo = authrepo.NewMongoUserRepository(mdb.Database)
		dbHealth = mdb.Health
	default:
		if err := database.Migrate(cfg.Database.MigrationURL(), log); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		db, err := database.New(ctx, &cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		cvRepo = cvrepo.NewPostgresCVRepository(db)
		userRepo = authrepo.NewPostgresUserRepository(db)
		dbHealth = db.Health
	}

	// File storage
	var files storage.FileStore
	switch cfg.Storage.Backend {
	case config.StorageGCS:
		gcs, err := storage.NewGCS(ctx, cfg.Storage.GCSBucket, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create GCS client")
		}
		defer gcs.Close()
		files = gcs
	default:
		fs, err := storage.NewFilesystem(cfg.Storage.UploadDir, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to prepare upload directory")
		}
		files = fs
	}

	// Connect to RabbitMQ (optional)
	var (
		rmq       *messaging.RabbitMQ
		publisher events.EventPublisher
	)
	if cfg.RabbitMQ.URL != "" {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		pub, err := messaging.NewPublisher(rmq, cfg.RabbitMQ.Exchange, serviceName, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		publisher = pub
	} else {
		log.Warn().Msg("RabbitMQ not configured, events disabled")
	}
	cvEvents := events.New(publisher, log)

	// Connect to Redis (optional)
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = redisconn.New(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
	}

	// Enrichment pipeline
	completer, err := llm.New(ctx, cfg.AI, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create completion client")
	}
	ext := extractor.NewDefault(files, log)
	enr := enricher.New(completer, log)

	schedOpts := []scheduler.Option{scheduler.WithEvents(cvEvents)}
	if cfg.Enrichment.Lock == config.LockRedis {
		schedOpts = append(schedOpts, scheduler.WithLocker(scheduler.NewRedisLocker(rdb, cfg.Enrichment.LockTTL)))
	}
	sched := scheduler.New(&cfg.Enrichment, ext, enr, cvRepo, log, schedOpts...)

	consumeCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	var dispatcher cvservice.Dispatcher = sched
	var consumer *messaging.Consumer
	if cfg.Enrichment.Dispatch == config.DispatchRabbitMQ {
		consumer, err = messaging.NewConsumer(rmq, cfg.Enrichment.Queue, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create enrichment consumer")
		}
		if err := consumer.Subscribe(cfg.RabbitMQ.Exchange, messaging.EventCVEnrichmentRequested); err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe enrichment consumer")
		}
		consumer.RegisterHandler(messaging.EventCVEnrichmentRequested, sched.HandleEnrichmentRequested)
		if err := consumer.Start(consumeCtx); err != nil {
			log.Fatal().Err(err).Msg("failed to start enrichment consumer")
		}
		dispatcher = scheduler.NewQueueDispatcher(publisher)
	} else {
		sched.Start()
	}

	// Initialize services
	maxFileBytes, _ := cfg.Storage.MaxUploadBytes()
	jwtManager := jwt.NewManager(&cfg.JWT)
	authService := authservice.NewAuthService(userRepo, jwtManager, log, authservice.WithPublisher(publisher))
	cvService := cvservice.NewCVService(cvRepo, files, dispatcher, cvEvents, log)

	// Initialize handlers
	sameSite := http.SameSiteStrictMode
	if cfg.Server.IsDevelopment() {
		sameSite = http.SameSiteNoneMode
	}
	authHandler := authhandler.NewAuthHandler(authService, authhandler.CookieOptions{
		Secure:   cfg.JWT.SecureCookies,
		SameSite: sameSite,
	}, log)
	cvHandler := cvhandler.NewCVHandler(cvService, cvhandler.Limits{
		MaxFileBytes: maxFileBytes,
		MaxFiles:     cfg.Storage.MaxFiles,
	}, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": dbHealth(r.Context()),
		}
		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		if rdb != nil {
			status["redis"] = redisconn.Health(r.Context(), rdb)
		}
		httputil.JSON(w, http.StatusOK, status)
	})

	// Accounts
	r.Route("/api/users", authHandler.Routes)

	// CV bank (authenticated)
	r.Route("/api/cv-bank", func(r chi.Router) {
		r.Use(authHandler.Authenticate)
		cvHandler.Routes(r)
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

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	if consumer != nil {
		stopConsumer()
		<-consumer.Done()
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("enrichment scheduler did not drain in time")
	}

	log.Info().Msg("server stopped")
}
