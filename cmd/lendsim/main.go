package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/odyssey-erp/lendsim/internal/app"
	jobmetrics "github.com/odyssey-erp/lendsim/internal/jobs"
	"github.com/odyssey-erp/lendsim/internal/lender"
	"github.com/odyssey-erp/lendsim/internal/merchant"
	"github.com/odyssey-erp/lendsim/internal/observability"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := applyFlags(cfg, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Default().Error("parse flags", slog.Any("error", err))
		os.Exit(2)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if _, err := run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Error("simulation run", slog.Any("error", err))
		os.Exit(1)
	}
}

// applyFlags lets command-line flags override the loaded configuration.
func applyFlags(cfg *app.Config, args []string) error {
	fs := flag.NewFlagSet("lendsim", flag.ContinueOnError)
	fs.IntVar(&cfg.Merchants, "merchants", cfg.Merchants, "number of merchants to simulate")
	fs.StringVar(&cfg.Product, "product", cfg.Product, "loan product to offer")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "population seed")
	fs.BoolVar(&cfg.Deterministic, "deterministic", cfg.Deterministic, "disable randomness")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "parallel simulations, 0 for GOMAXPROCS")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return cfg.Validate()
}

// run generates the population, simulates it under the configured product
// and writes the portfolio summary to out. The status server, when
// configured, serves for the duration of the run.
func run(ctx context.Context, cfg *app.Config, logger *slog.Logger, out io.Writer) (lender.Portfolio, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	metrics := observability.NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())

	merchants, err := merchant.GeneratePopulation(cfg.MerchantParams(), cfg.Seed, cfg.Deterministic, cfg.Merchants)
	if err != nil {
		return lender.Portfolio{}, fmt.Errorf("generate population: %w", err)
	}
	progress := app.NewProgress(len(merchants))
	metrics.ObserveProgress(0, len(merchants))

	if cfg.StatusAddr != "" {
		server := app.NewStatusServer(cfg, app.NewRouter(app.RouterParams{
			Logger:   logger,
			Config:   cfg,
			Metrics:  metrics,
			Progress: progress,
		}))
		go func() {
			logger.Info("status server listening", slog.String("addr", cfg.StatusAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("status server shutdown", slog.Any("error", err))
			}
		}()
	}

	opts := cfg.LenderOptions(logger, jobs, func(done, total int) {
		progress.Observe(done, total)
		metrics.ObserveProgress(done, total)
	})
	l, err := lender.New(merchants, opts)
	if err != nil {
		return lender.Portfolio{}, err
	}
	if _, err := l.Simulate(ctx); err != nil {
		return lender.Portfolio{}, err
	}
	portfolio, err := l.CalculateResults()
	if err != nil {
		return lender.Portfolio{}, err
	}
	progress.Finish()
	metrics.ObservePortfolio(string(portfolio.Product), portfolio.Figures())

	if err := printSummary(out, portfolio); err != nil {
		return lender.Portfolio{}, err
	}
	return portfolio, nil
}
