package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vasiliy-maslov/account-service/internal/auth"
	"github.com/vasiliy-maslov/account-service/internal/config"
	"github.com/vasiliy-maslov/account-service/internal/db"
	"github.com/vasiliy-maslov/account-service/internal/metrics"
	"github.com/vasiliy-maslov/account-service/internal/transport"
	"github.com/vasiliy-maslov/account-service/internal/user"
)

const shutdownTimeout = 15 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger, err := setupLogger(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	logger.Info().Msg("Account service starting...")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	repo, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	issuer, err := auth.NewTokenIssuer(cfg.Auth.TokenKey, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	svc := user.NewService(repo, auth.NewBcryptHasher(), issuer, user.WithStrictSessions(cfg.Auth.StrictSessions))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      transport.NewRouter(logger, svc, m, reg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info().Stringer("signal", sig).Msg("Shutting down...")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info().Msg("Server stopped")

	return nil
}

// openStore connects the credential store selected by the DATABASE_URL
// scheme. The returned func releases it.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (user.Repository, func(), error) {
	driver, err := cfg.Driver()
	if err != nil {
		return nil, nil, err
	}

	switch driver {
	case config.DriverMongo:
		mongoDB, err := db.NewMongo(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		closeStore := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mongoDB.Close(closeCtx)
		}
		return user.NewMongoRepository(mongoDB.Users()), closeStore, nil

	default:
		if cfg.AutoMigrate {
			if err := migrateUp(cfg.URL); err != nil {
				return nil, nil, err
			}
		}

		pg, err := db.NewPostgres(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return user.NewPostgresRepository(pg.Pool), pg.Close, nil
	}
}

func migrateUp(databaseURL string) error {
	migrator, err := db.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close migrator")
		}
	}()

	return migrator.Up()
}
