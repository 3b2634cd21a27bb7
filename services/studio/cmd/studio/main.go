package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"chapterquiz/internal/ratelimit"
	"chapterquiz/internal/util"
	"chapterquiz/pkg/ai"
	"chapterquiz/pkg/auth"
	"chapterquiz/pkg/storage"
	"chapterquiz/pkg/store"
	"chapterquiz/services/studio/internal/app"
	"chapterquiz/services/studio/internal/config"
	"chapterquiz/services/studio/internal/server"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("STUDIO_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = store.DefaultDSN
	}
	dataStore, err := store.NewGormStore(dsn)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer dataStore.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "err", err)
		}
		cancel()
	}

	var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
	if redisClient != nil {
		revoker = store.NewRedisTokenRevoker(redisClient, "")
	}
	sessions, err := store.NewJWTSessionStore(cfg.JWTSecret, time.Duration(cfg.SessionTTLMinutes)*time.Minute, revoker, store.JWTOptions{})
	if err != nil {
		log.Fatalf("failed to init sessions: %v", err)
	}

	hasher, err := auth.NewHasher(cfg.PasswordHash, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("failed to init password hasher: %v", err)
	}

	generator, closeGenerator := newGenerator(ctx, cfg)
	defer closeGenerator()

	var objects storage.ObjectStore
	if cfg.MinioEnabled() {
		minioStore, err := storage.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Warn("upload archive disabled", "err", err)
		} else {
			objects = minioStore
		}
	}

	appCfg := app.Config{
		Store:    dataStore,
		Sessions: sessions,
		Hasher:   hasher,
	}
	if generator != nil {
		appCfg.Generator = generator
	}
	if objects != nil {
		appCfg.Objects = objects
	}
	appCore, err := app.New(appCfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	httpServer, err := server.New(server.Config{
		App:            appCore,
		SignupLimiter:  newLimiter(redisClient, cfg.SignupRateLimitPerMinute),
		LoginLimiter:   newLimiter(redisClient, cfg.LoginRateLimitPerMinute),
		TrustedProxies: trusted,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// Generation may retry for up to the configured elapsed cap.
		WriteTimeout: time.Duration(cfg.GenerationMaxElapsedSec)*time.Second + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("studio server listening", "addr", addr, "generation", appCore.GenerationEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("studio server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

// newGenerator builds the configured provider wrapped in retries. A provider
// without credentials leaves generation disabled instead of failing startup.
func newGenerator(ctx context.Context, cfg config.FileConfig) (ai.Generator, func()) {
	noop := func() {}
	if !cfg.GenerationConfigured() {
		slog.Warn("generation API key not set, quiz and cheat sheet generation disabled",
			"provider", cfg.GenerationProvider)
		return nil, noop
	}
	provider, err := ai.NewGenerator(ctx, ai.ProviderConfig{
		Provider: cfg.GenerationProvider,
		APIKey:   cfg.GenerationAPIKey(),
		Model:    cfg.GenerationModel,
		BaseURL:  cfg.GenerationBaseURL,
	})
	if err != nil {
		slog.Warn("generation provider unavailable", "provider", cfg.GenerationProvider, "err", err)
		return nil, noop
	}
	closeFn := noop
	if closer, ok := provider.(io.Closer); ok {
		closeFn = func() { _ = closer.Close() }
	}
	policy := ai.DefaultRetryPolicy
	policy.MaxAttempts = uint(cfg.GenerationMaxAttempts)
	policy.AttemptTimeout = time.Duration(cfg.GenerationTimeoutSec) * time.Second
	policy.MaxElapsed = time.Duration(cfg.GenerationMaxElapsedSec) * time.Second
	return ai.NewRetryingGenerator(provider, cfg.GenerationProvider, policy), closeFn
}

// newLimiter prefers the shared Redis window and falls back to a
// per-process one. A zero limit disables limiting.
func newLimiter(client *redis.Client, perMinute int) ratelimit.Limiter {
	if perMinute <= 0 {
		return nil
	}
	if client != nil {
		limiter, err := ratelimit.NewRedisFixedWindow(client, ratelimit.DefaultPrefix, perMinute, time.Minute)
		if err == nil {
			return limiter
		}
		slog.Warn("redis rate limiter unavailable", "err", err)
	}
	limiter, err := ratelimit.NewMemoryFixedWindow(perMinute, time.Minute)
	if err != nil {
		slog.Warn("rate limiter disabled", "err", err)
		return nil
	}
	return limiter
}
