package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/CedrosPay/cardcheckout/internal/config"
	"github.com/CedrosPay/cardcheckout/pkg/cardcheckout"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "path to YAML config (optional; CHECKOUT_* env vars override)")
		envFile = flag.String("env", ".env", "dotenv file loaded before the config")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal().Err(err).Str("file", *envFile).Msg("server.env_load_failed")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("server.config_invalid")
	}

	app, err := cardcheckout.NewApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("server.init_failed")
	}
	logger := app.Logger()

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      app.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("server.listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server.listen_failed")
		}
	case <-ctx.Done():
		logger.Info().Msg("server.shutting_down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server.shutdown_failed")
	}
	if err := app.Close(); err != nil {
		logger.Error().Err(err).Msg("server.close_failed")
	}
	logger.Info().Msg("server.stopped")
}
