package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/efreitasn/isinprofit/internal/config"
	"github.com/efreitasn/isinprofit/internal/engine"
	"github.com/efreitasn/isinprofit/internal/service"
	"github.com/efreitasn/isinprofit/internal/store"
)

// app is the wired dependency graph shared by every subcommand.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	ledger    store.Ledger
	profitSvc *service.ProfitService
	ledgerSvc *service.LedgerService
	closeFn   func() error
}

// bootstrap loads configuration and wires the ledger and services. Logs go
// to logOut as JSON. dbPath, when non-empty, overrides DB_PATH.
func bootstrap(logOut io.Writer, dbPath string) (*app, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ledger, closeFn, err := openLedger(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	matcher := engine.NewLotMatcher(ledger, cfg.EpochFloor, time.Now)
	profitSvc := service.NewProfitService(ledger, matcher, service.ProfitOptions{
		Workers:      cfg.MatchWorkers,
		MatchTimeout: cfg.MatchTimeout,
		MaxRangeDays: cfg.MaxRangeDays,
	}, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		ledger:    ledger,
		profitSvc: profitSvc,
		ledgerSvc: service.NewLedgerService(ledger, logger),
		closeFn:   closeFn,
	}, nil
}

func (a *app) Close() error {
	return a.closeFn()
}

// openLedger opens the SQLite ledger at path, or an in-memory ledger when
// path is empty.
func openLedger(path string) (store.Ledger, func() error, error) {
	if path == "" {
		return store.NewMemoryLedger(), func() error { return nil }, nil
	}
	ledger, err := store.OpenSQLLedger(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return ledger, ledger.Close, nil
}
