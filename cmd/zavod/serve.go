package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/zavod/internal/api"
	"github.com/erazemk/zavod/internal/db"
	"github.com/erazemk/zavod/internal/metrics"
	"github.com/erazemk/zavod/internal/store"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
	cmd.Flags().StringP("db", "d", "", "SQLite database path (overrides database.path)")
	cmd.Flags().StringP("addr", "a", "", "listen address (overrides http.addr)")
	return cmd
}

func serve(ctx context.Context) error {
	if _, err := os.Stat(cfg.Database.Path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("database %s does not exist, run zavod init first", cfg.Database.Path)
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	slog.Info("database ready", "path", cfg.Database.Path)

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		// Persisted on first run so tokens survive restarts.
		jwtSecret, err = store.GetJWTSecret(ctx, database)
		if err != nil {
			return fmt.Errorf("getting JWT secret: %w", err)
		}
	}

	if n, err := store.PruneRevokedTokens(ctx, database); err != nil {
		slog.Warn("failed to prune revoked tokens", "error", err)
	} else if n > 0 {
		slog.Info("pruned revoked tokens", "count", n)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	router := api.NewRouter(api.Options{
		DB:                database,
		JWTSecret:         jwtSecret,
		TokenTTL:          cfg.Auth.TokenTTL,
		AllowSelfApproval: cfg.Requisitions.AllowSelfApproval,
		Paging: api.Paging{
			DefaultPerPage: cfg.Pagination.DefaultPerPage,
			MaxPerPage:     cfg.Pagination.MaxPerPage,
		},
		Metrics:       m,
		ExposeMetrics: cfg.Metrics.Addr == "",
	})

	servers := []*http.Server{{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}}
	if m != nil && cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			slog.Info("server started", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listening on %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	// Graceful shutdown on SIGINT/SIGTERM or when a listener fails.
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down", "timeout", cfg.HTTP.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("server forced to shutdown", "addr", srv.Addr, "error", err)
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped, closing database")
	return nil
}
