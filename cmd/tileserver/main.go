package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/skyatlas/hipscache/internal/app/server"
	"github.com/skyatlas/hipscache/internal/core/config"
	"github.com/skyatlas/hipscache/internal/logger"
	"github.com/skyatlas/hipscache/internal/observability"
)

// overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg := config.FromEnv()
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "tileserver",
	}, os.Stdout)

	observability.ExposeBuildInfo(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, &zl); err != nil {
		zl.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
	zl.Info().Msg("shutdown complete")
}
