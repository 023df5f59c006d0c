package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pixelbridge/conversion-bridge/internal/assembler"
	"github.com/pixelbridge/conversion-bridge/internal/config"
	"github.com/pixelbridge/conversion-bridge/internal/domain"
	"github.com/pixelbridge/conversion-bridge/internal/identity"
	"github.com/pixelbridge/conversion-bridge/internal/infrastructure/meta"
	"github.com/pixelbridge/conversion-bridge/internal/infrastructure/postgres"
	"github.com/pixelbridge/conversion-bridge/internal/infrastructure/rabbitmq"
	"github.com/pixelbridge/conversion-bridge/internal/infrastructure/redis"
	"github.com/pixelbridge/conversion-bridge/internal/pkg/logger"
	"github.com/pixelbridge/conversion-bridge/internal/security"
	"github.com/pixelbridge/conversion-bridge/internal/service"
	"github.com/pixelbridge/conversion-bridge/internal/token"
	"github.com/pixelbridge/conversion-bridge/internal/transport/rest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "conversion-bridge").
		Str("env", cfg.AppEnv).
		Logger()

	// Root ctx with signal cancellation
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres delivery log (optional) ----
	var repo domain.DeliveryRepository = postgres.Noop{}
	if cfg.DBDSN != "" {
		dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres pool create failed")
		}
		defer dbPool.Close()

		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		if err := dbPool.Ping(pingCtx); err != nil {
			cancel()
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		cancel()

		pgRepo := postgres.New(dbPool)
		if err := pgRepo.Migrate(rootCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres migrate failed")
		}
		repo = pgRepo
		log.Info().Msg("postgres connected")
	} else {
		log.Warn().Msg("DATABASE_URL not set, delivery log disabled")
	}

	// ---- Redis ----
	cache := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		// Best-effort ping; rate limiting fails open anyway
		if err := cache.Client.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
		cancel()
	}

	// ---- RabbitMQ publisher (optional) ----
	var publisher domain.EventPublisher = rabbitmq.NoopPublisher{}
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange, log)
		if err != nil {
			log.Fatal().Err(err).Msg("rabbitmq connect failed")
		}
		defer pub.Close()
		publisher = pub
		log.Info().Str("exchange", cfg.RabbitExchange).Msg("rabbitmq connected")
	} else {
		log.Info().Msg("RABBITMQ_URL not set, event publishing disabled")
	}

	// ---- Core pipeline ----
	cipher, err := token.New(cfg.SecretKey, token.Options{
		Version:  cfg.TokenVersion,
		RandomIV: cfg.TokenRandomIV,
		MaxAge:   cfg.TokenMaxAge,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("token cipher init failed")
	}

	asm := assembler.New(identity.NewEngine(cfg.DefaultCountryCode), cfg.DefaultCountryCode)
	sink := meta.NewClient(cfg.MetaBaseURL, cfg.MetaVersion, cfg.MetaTimeout)

	svc := service.NewTrackingService(cipher, asm, sink, repo, cache, publisher,
		cfg.PublicBaseURL, cfg.MetaTimeout)

	// ---- Operator auth ----
	verifier := security.NewHS256Verifier(cfg.OperatorJWTSecret, cfg.OperatorJWTIssuer)

	// ---- Router ----
	httpHandler := rest.NewRouter(rest.RouterDeps{
		Cache:    cache,
		Handler:  rest.NewHandler(svc, cfg.PublicBaseURL),
		Verifier: verifier,
		RateLimit: rest.RateLimitOptions{
			Enabled: cfg.RLEnabled,
			Limit:   cfg.RLLimit,
			Window:  cfg.RLWindow,
		},
	})

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	// Graceful shutdown: stop accepting requests, then drain the detached
	// webhook deliveries within the same deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if err := svc.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown deadline hit with deliveries still in flight")
	}
	log.Info().Msg("shutdown complete")
}
