package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"mediaqueue/internal/http/handlers"
	httpapi "mediaqueue/internal/http/httpapi"
	"mediaqueue/internal/infra"
	"mediaqueue/internal/infra/credentials"
	"mediaqueue/internal/providers"
	"mediaqueue/internal/providers/dashscope"
	"mediaqueue/internal/providers/google"
	"mediaqueue/internal/scheduler"
	"mediaqueue/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Credential store: environment keys first, then an optional database row
	// per provider, then a watched credentials file that can rotate keys at
	// runtime.
	creds := credentials.NewStore()
	if cfg.GoogleAPIKey != "" {
		creds.Set(providers.ProviderGoogle, cfg.GoogleAPIKey)
	}
	if cfg.DashScopeAPIKey != "" {
		creds.Set(providers.ProviderDashScope, cfg.DashScopeAPIKey)
	}

	var credDB *credentials.PGStore
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		credDB = credentials.NewPGStore(pool)
		if err := credDB.Seed(ctx, creds, providers.Names()); err != nil {
			logger.Warn().Err(err).Msg("credential seed from database failed")
		}
	}

	if cfg.CredentialsFile != "" {
		if err := credentials.LoadFile(cfg.CredentialsFile, creds); err != nil {
			logger.Warn().Err(err).Str("path", cfg.CredentialsFile).Msg("credentials file load failed")
		}
		go func() {
			if err := credentials.Watch(cfg.CredentialsFile, creds, logger); err != nil {
				logger.Error().Err(err).Str("path", cfg.CredentialsFile).Msg("credentials watch stopped")
			}
		}()
	}

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	googleClient, err := google.NewClient(google.Options{
		BaseURL:      cfg.GoogleBaseURL,
		Logger:       &logger,
		PollInterval: cfg.VideoPollInterval,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize google client")
	}
	dashscopeClient, err := dashscope.NewClient(dashscope.Options{
		BaseURL: cfg.DashScopeBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize dashscope client")
	}
	dispatchers := map[string]providers.Dispatcher{
		providers.ProviderGoogle:    googleClient,
		providers.ProviderDashScope: dashscopeClient,
	}

	sched := scheduler.New(scheduler.Config{
		TickInterval:     cfg.TickInterval,
		ConcurrencyLimit: cfg.ConcurrencyLimit,
		RateLimit:        cfg.RateLimitCount,
		RateWindow:       cfg.RateLimitWindow,
		MaxRetries:       cfg.MaxRetries,
	}, creds, dispatchers, store, logger)

	// A fresh key lifts the quota halt for its provider.
	creds.OnUpdate(func(provider string) {
		sched.ClearQuota(provider)
	})

	go sched.Run(ctx)

	app := handlers.NewApp(sched, creds, credDB, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  strings.Split(getEnvDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ","),
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   getEnvDefault("DEFAULT_LOCALE", "en"),
		StaticRoot:      store.Root(),
	})

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
