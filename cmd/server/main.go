package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"authcore/internal/auth/handler"
	"authcore/internal/auth/service"
	"authcore/internal/config"
	"authcore/internal/db"
	rtrepo "authcore/internal/refreshtoken/repository"
	"authcore/internal/security"
	"authcore/internal/telemetry"
	"authcore/internal/telemetry/otel"
	userrepo "authcore/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx := context.Background()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "authcore", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shctx); err != nil {
			logger.Error("otel shutdown", "error", err)
		}
	}()

	metrics, err := telemetry.NewAuthMetrics(providers.MeterProvider.Meter("authcore"))
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	// User lookup always goes through Postgres, regardless of the refresh store.
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; the user directory requires Postgres")
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()
	users := userrepo.NewPostgresRepository(conn)

	var store rtrepo.Repository
	switch cfg.RefreshStore {
	case "postgres":
		store = rtrepo.NewPostgresRepository(conn)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		store = rtrepo.NewRedisRepository(client)
	case "memory":
		logger.Warn("using in-memory refresh store, tokens will not survive restarts")
		store = rtrepo.NewMemoryRepository()
	}

	// Redis reclaims expired keys through TTLs; the other backends need a sweep.
	if cfg.RefreshStore != "redis" {
		sweepCtx, stopSweep := context.WithCancel(ctx)
		defer stopSweep()
		go rtrepo.NewSweeper(store, time.Hour, logger).Run(sweepCtx)
	}

	signer, err := security.NewTokenSigner(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		log.Fatalf("signer: %v", err)
	}
	hasher := security.NewHasher(cfg.PBKDF2Iterations)

	auth, err := service.NewAuthenticator(
		users,
		store,
		hasher,
		signer,
		cfg.AccessTTL(),
		cfg.RefreshTTL(),
		cfg.PersistModeValue(),
		cfg.EnforceAccountStatus,
		logger,
		metrics,
	)
	if err != nil {
		log.Fatalf("authenticator: %v", err)
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	handler.NewAuthHandler(auth).Register(r)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "refresh_store", cfg.RefreshStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down http server")
	shctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shctx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("http server stopped")
}
