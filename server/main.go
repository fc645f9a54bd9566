package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"summitpass/api/routes"
	"summitpass/internal/notifications"
	"summitpass/internal/reservations"
	"summitpass/internal/shared/config"
	"summitpass/internal/shared/database"
	"summitpass/pkg/logger"
	"summitpass/pkg/ratelimit"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Notification pipeline: producer for the reconciliation engine,
	// consumer group for SMTP delivery. The API stays up when Kafka is
	// down; completion flags keep retries pending.
	dispatcher, stopPipeline := setupNotificationPipeline(cfg, appLogger)
	defer stopPipeline()

	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewRateLimiter(db.GetRedisClient(), &ratelimit.Config{
			Enabled:          cfg.RateLimit.Enabled,
			WindowDuration:   cfg.RateLimit.WindowDuration,
			DefaultRequests:  cfg.RateLimit.DefaultRequests,
			PublicRequests:   cfg.RateLimit.PublicRequests,
			PurchaseRequests: cfg.RateLimit.PurchaseRequests,
			WebhookRequests:  cfg.RateLimit.WebhookRequests,
			AdminRequests:    cfg.RateLimit.AdminRequests,
			WhitelistedIPs:   cfg.RateLimit.WhitelistedIPs,
		})
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	appRouter := routes.NewRouter(cfg, db, dispatcher, appLogger)
	engine := setupEngine(cfg, appRouter, rateLimiter, appLogger)

	// Expiry sweep: released holds go back on sale without waiting for a
	// gateway signal.
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sweepJob := reservations.NewSweepJob(appRouter.ReservationService(), cfg.Tickets.SweepInterval, appLogger)
	sweepJob.Start(sweepCtx)
	defer sweepJob.Stop()

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("🚀 Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("version", cfg.APIVersion),
			slog.Bool("rate_limiting", cfg.RateLimit.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

// setupNotificationPipeline wires the Kafka producer and the SMTP consumer
// group. Returns a dispatcher (degraded stand-in if the broker is
// unreachable) and a stop function for shutdown.
func setupNotificationPipeline(cfg *config.Config, appLogger *logger.Logger) (notifications.Dispatcher, func()) {
	producer, err := notifications.NewKafkaNotificationProducer(cfg.Kafka)
	if err != nil {
		appLogger.Error("Failed to initialize notification producer, emails disabled", slog.Any("error", err))
		return notifications.NewDisabledDispatcher(), func() {}
	}

	emailService, err := notifications.NewSMTPEmailService(cfg.Email)
	if err != nil {
		appLogger.Error("Failed to initialize email service, emails disabled", slog.Any("error", err))
		_ = producer.Close()
		return notifications.NewDisabledDispatcher(), func() {}
	}

	consumer, err := notifications.NewKafkaNotificationConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.ConsumerGroup,
		cfg.Kafka.NotificationTopic,
		cfg.Kafka.DeadLetterTopic,
		emailService,
		appLogger,
	)
	if err != nil {
		appLogger.Error("Failed to initialize notification consumer, emails disabled", slog.Any("error", err))
		_ = producer.Close()
		return notifications.NewDisabledDispatcher(), func() {}
	}

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	go func() {
		if err := consumer.Start(consumerCtx); err != nil {
			appLogger.Error("Notification consumer stopped", slog.Any("error", err))
		}
	}()
	appLogger.Info("Notification pipeline started",
		slog.String("topic", cfg.Kafka.NotificationTopic),
		slog.String("group", cfg.Kafka.ConsumerGroup),
	)

	stop := func() {
		consumerCancel()
		if err := consumer.Stop(); err != nil {
			appLogger.Error("Error stopping notification consumer", slog.Any("error", err))
		}
		if err := producer.Close(); err != nil {
			appLogger.Error("Error closing notification producer", slog.Any("error", err))
		}
	}

	return notifications.NewDispatcher(producer), stop
}

func setupEngine(cfg *config.Config, appRouter *routes.Router, rateLimiter *ratelimit.RateLimiter, appLogger *logger.Logger) *gin.Engine {
	engine := gin.New()

	engine.Use(requestLoggerMiddleware(appLogger), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "x-nowpayments-sig"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter))
	}

	appRouter.SetupRoutes(engine)

	return engine
}

func requestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		l.LogHTTPRequest(c, duration)
	}
}
