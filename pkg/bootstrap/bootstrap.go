// Package bootstrap holds the startup sequence shared by the long-running
// binaries: environment, config, logger and signal handling.
package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// RunFunc is a binary's body. It returns when ctx is cancelled or on failure.
type RunFunc func(ctx context.Context, cfg *config.Config, logg *logger.Logger) error

// Load reads .env when present, loads the config and builds the logger for
// service. The returned config carries service as its kind. Production always
// logs JSON regardless of STOREFRONT_LOG_FORMAT.
func Load(service string) (*config.Config, *logger.Logger, error) {
	boot := logger.New(logger.Options{ServiceName: service})
	if err := godotenv.Load(); err != nil {
		boot.Debug(context.Background(), ".env not loaded, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, boot, err
	}
	cfg.Service.Kind = service

	format := cfg.App.LogFormat
	if cfg.App.IsProd() {
		format = "json"
	}
	logg := logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      format,
	})
	return cfg, logg, nil
}

// Main loads everything, runs fn until SIGINT or SIGTERM and exits non-zero
// when fn fails for any reason other than shutdown.
func Main(service string, fn RunFunc) {
	os.Exit(run(service, fn))
}

func run(service string, fn RunFunc) int {
	cfg, logg, err := Load(service)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fn(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(context.Background(), service+" stopped unexpectedly", err)
		return 1
	}
	return 0
}
