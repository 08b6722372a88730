package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/outerfields/platform/pkg/admin"
	"github.com/outerfields/platform/pkg/catalog"
	"github.com/outerfields/platform/pkg/common/config"
	"github.com/outerfields/platform/pkg/common/database"
	"github.com/outerfields/platform/pkg/common/kafka"
	"github.com/outerfields/platform/pkg/common/logger"
	"github.com/outerfields/platform/pkg/gateway/auth"
	"github.com/outerfields/platform/pkg/gateway/middleware"
	"github.com/outerfields/platform/pkg/ingest"
	"github.com/outerfields/platform/pkg/observability/metrics"
	"github.com/outerfields/platform/pkg/playback"
	"github.com/outerfields/platform/pkg/stream"
	"github.com/outerfields/platform/pkg/video"
)

func main() {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}
	logger.Init("video-service")
	cfg := config.Load()

	db, err := database.OpenPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres(db)

	repo := video.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate video tables")
	}

	if cfg.SeriesCatalogPath != "" {
		cat, err := catalog.Load(cfg.SeriesCatalogPath)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to load series catalog")
		}
		n, err := catalog.Seed(context.Background(), repo, cat)
		if err != nil {
			logger.Log.WithError(err).Warn("some series could not be seeded")
		}
		logger.Log.WithField("count", n).Info("Series catalog seeded")
	}

	redisClient := database.OpenRedis(cfg)
	defer database.CloseRedis(redisClient)
	replay := stream.NewReplayCache(redisClient)

	// Left as a nil interface when Kafka is not configured.
	var events interface {
		ingest.EventPublisher
		admin.EventPublisher
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.VideoEventsTopic)
		defer producer.Close()
		events = producer
	} else {
		logger.Log.Info("Kafka not configured, video events disabled")
	}

	host, err := stream.NewClient(stream.Options{
		APIBaseURL:     cfg.StreamAPIBaseURL,
		AccountID:      cfg.StreamAccountID,
		APIToken:       cfg.StreamAPIToken,
		CustomerCode:   cfg.StreamCustomerCode,
		AllowedOrigins: cfg.StreamAllowedOrigins,
		Timeout:        cfg.StreamAPITimeout,
	})
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to configure stream client")
	}
	verifier := stream.NewVerifier(cfg.StreamWebhookSecret)
	if !verifier.Configured() {
		logger.Log.Warn("CLOUDFLARE_STREAM_WEBHOOK_SECRET is not set, webhooks will be rejected")
	}

	sessions, err := auth.NewJWTManager(cfg.SessionJWTSecret, cfg.SessionJWTIssuer, 0)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to configure session tokens")
	}
	admins := auth.NewAllowlist(cfg.AdminEmails)

	ingestSvc := ingest.NewService(ingest.NewValidator(), repo, host, events)
	webhooks := ingest.NewWebhookProcessor(verifier, replay, repo, events)
	playbackSvc := playback.NewService(repo, host, cfg.PlaybackTokenTTL)
	adminSvc := admin.NewService(repo, events)

	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	api.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	api.Use(middleware.Identify(sessions, admins))

	ingest.NewHTTPHandler(ingestSvc, webhooks, cfg.IngestAPIToken).Register(api)
	playback.NewHTTPHandler(playbackSvc).Register(api)
	admin.NewHandler(adminSvc).Register(api)
	catalog.NewHandler(repo).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      handlers.ProxyHeaders(middleware.CORS(cfg.StreamAllowedOrigins)(router)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Video Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Video Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Video Service stopped")
}
