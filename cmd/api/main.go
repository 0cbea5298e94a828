package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pixshop/internal/bootstrap"
	httpapi "pixshop/internal/http/httpapi"
	"pixshop/internal/infra"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.MigrateOnStart && cfg.DatabaseURL != "" {
		if err := infra.Migrate(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise services")
	}
	defer services.Close()
	services.StartRelay(ctx)

	router := httpapi.NewRouter(services.App(), httpapi.Options{
		Logger:             logger,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("backend", cfg.PresetBackend).
			Str("relay", cfg.EventRelay).
			Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, stopShutdown := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer stopShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
