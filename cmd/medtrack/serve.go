package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/franckalain/medtrack/internal/config"
	"github.com/franckalain/medtrack/internal/database"
	"github.com/franckalain/medtrack/internal/logger"
	"github.com/franckalain/medtrack/internal/metrics"
	"github.com/franckalain/medtrack/internal/recognition"
	"github.com/franckalain/medtrack/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func configPath(flags *GlobalFlags) string {
	if flags.ConfigPath != "" {
		return flags.ConfigPath
	}
	return config.GetConfigPath()
}

func createServeCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath(flags))
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if flags.DBPath != "" {
				cfg.Database.Path = flags.DBPath
			}
			if cfg.Server.Debug {
				cfg.Logging.Debug = true
			}
			if err := logger.Init(cfg.Logging); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("main")

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	db, err := database.NewSQLiteDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	provider, err := recognition.NewProvider(cfg.ML)
	if err != nil {
		return fmt.Errorf("failed to create recognition provider: %w", err)
	}
	if err := provider.Load(ctx); err != nil {
		return fmt.Errorf("failed to load recognition provider: %w", err)
	}
	defer provider.Close()

	log.Info().
		Str("database", cfg.Database.Path).
		Str("recognition", cfg.ML.Type).
		Msg("medtrack ready")

	srv := server.New(db, provider, server.Options{AcquireTimeout: cfg.AcquireTimeout()})
	return srv.Start(ctx, cfg.Server.Port, cfg.Server.StaticDir)
}
