package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"

	"github.com/efreitasn/isinprofit/internal/handler"
	"github.com/efreitasn/isinprofit/internal/tracing"
)

type serveCmd struct {
	dbPath string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP profit service" }
func (*serveCmd) Usage() string {
	return `isinprofit serve [-db <path>]

  Serves the profit and ledger API on PORT until SIGINT or SIGTERM.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dbPath, "db", "", "SQLite ledger path, overrides DB_PATH (empty keeps the ledger in memory)")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap(os.Stdout, c.dbPath)
	if err != nil {
		slog.Error("failed to start", slog.String("error", err.Error()))
		return subcommands.ExitFailure
	}
	defer a.Close()
	logger := a.logger

	shutdownTracing, err := tracing.Init(ctx, a.cfg.TracingEnabled, os.Stderr)
	if err != nil {
		logger.Error("failed to init tracing", slog.String("error", err.Error()))
		return subcommands.ExitFailure
	}

	router := handler.NewRouter(a.profitSvc, a.ledgerSvc, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", a.cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.Bool("sqlite", a.cfg.DBPath != ""),
			slog.Int("match_workers", a.cfg.MatchWorkers),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	status := subcommands.ExitSuccess
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", slog.String("error", err.Error()))
		status = subcommands.ExitFailure
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return status
}
