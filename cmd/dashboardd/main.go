package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ncecere/insights_dashboard/internal/app"
	"github.com/ncecere/insights_dashboard/internal/config"
	"github.com/ncecere/insights_dashboard/internal/database"
	"github.com/ncecere/insights_dashboard/internal/httpserver"
	"github.com/ncecere/insights_dashboard/internal/logging"
	"github.com/ncecere/insights_dashboard/internal/redisclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if err := database.RunMigrations(ctx, cfg.Database); err != nil {
		logging.Fatal().Err(err).Msg("run migrations")
	}

	dbPool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("connect database")
	}
	defer dbPool.Close()

	redisClient, err := redisclient.Connect(ctx, cfg.Redis)
	if err != nil {
		logging.Fatal().Err(err).Msg("connect redis")
	}
	defer redisClient.Close()

	container, err := app.NewContainer(ctx, cfg, dbPool, redisClient)
	if err != nil {
		logging.Fatal().Err(err).Msg("build container")
	}
	defer func() {
		if err := container.Close(context.Background()); err != nil {
			logging.Warn().Err(err).Msg("shutdown observability")
		}
	}()

	server, err := httpserver.New(container)
	if err != nil {
		logging.Fatal().Err(err).Msg("construct server")
	}

	logging.Info().Str("addr", cfg.Server.ListenAddr).Msg("insights dashboard listening")
	if err := server.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
