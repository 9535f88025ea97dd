// Package lender runs a loan product across a merchant population and
// reduces the per-merchant outcomes into portfolio economics.
package lender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/lendsim/internal/jobs"
	"github.com/odyssey-erp/lendsim/internal/loan"
	"github.com/odyssey-erp/lendsim/internal/merchant"
)

var (
	// ErrNoMerchants indicates an empty population.
	ErrNoMerchants = errors.New("lender: no merchants to simulate")
	// ErrNotSimulated indicates results were requested before Simulate completed.
	ErrNotSimulated = errors.New("lender: simulation has not completed")
)

// MerchantError ties a failed simulation to its merchant.
type MerchantError struct {
	MerchantID int
	Err        error
}

func (e *MerchantError) Error() string {
	return fmt.Sprintf("lender: merchant %d: %v", e.MerchantID, e.Err)
}

func (e *MerchantError) Unwrap() error {
	return e.Err
}

// Options configures a lender run.
type Options struct {
	// Workers bounds parallel simulations; zero uses GOMAXPROCS.
	Workers      int
	Product      loan.Product
	Config       loan.Config
	RiskFreeRate float64
	// Weighting selects how ratio fields are blended; empty means terminal
	// valuation.
	Weighting Weighting
	// Progress is called after each merchant completes. Calls are serialised.
	Progress func(done, total int)
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Lender owns one run of a product over a fixed population.
type Lender struct {
	id        uuid.UUID
	merchants []*merchant.Merchant
	policy    loan.Policy
	opts      Options
	logger    *slog.Logger

	results []loan.Result
	done    bool
}

// New prepares a run. Each merchant is mutated only by its own simulation,
// so a population can be simulated once.
func New(merchants []*merchant.Merchant, opts Options) (*Lender, error) {
	if len(merchants) == 0 {
		return nil, ErrNoMerchants
	}
	policy, err := loan.NewPolicy(opts.Product)
	if err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	opts.Metrics.Init(string(opts.Product))
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Lender{
		id:        uuid.New(),
		merchants: merchants,
		policy:    policy,
		opts:      opts,
		logger:    logger.With(slog.String("product", string(opts.Product))),
	}, nil
}

// ID identifies the run in logs.
func (l *Lender) ID() uuid.UUID { return l.id }

// Simulate runs every merchant on a bounded worker pool. Result i belongs to
// merchant i regardless of scheduling. The first merchant failure cancels
// the remaining work and is returned as a *MerchantError.
func (l *Lender) Simulate(ctx context.Context) ([]loan.Result, error) {
	total := len(l.merchants)
	l.logger.Info("lender run started",
		slog.String("run_id", l.id.String()),
		slog.Int("merchants", total),
		slog.Int("workers", l.opts.Workers),
	)

	results := make([]loan.Result, total)
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for i, m := range l.merchants {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := l.simulateOne(m)
			if err != nil {
				l.logger.Error("merchant simulation failed",
					slog.String("run_id", l.id.String()),
					slog.Int("merchant_id", m.ID),
					slog.String("merchant_ref", m.Ref.String()),
					slog.Any("error", err),
				)
				return err
			}
			results[i] = res
			if l.opts.Progress != nil {
				mu.Lock()
				done++
				l.opts.Progress(done, total)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.results = results
	l.done = true
	return append([]loan.Result(nil), results...), nil
}

// simulateOne runs a single merchant. A panic is converted into a
// MerchantError so it fails the run instead of crashing the process.
func (l *Lender) simulateOne(m *merchant.Merchant) (res loan.Result, err error) {
	tracker := l.opts.Metrics.Track(string(l.opts.Product))
	defer func() {
		if r := recover(); r != nil {
			err = &MerchantError{MerchantID: m.ID, Err: fmt.Errorf("panic: %v", r)}
		}
		if err == nil {
			tracker.Outcome(res.Funded, res.Bankrupt())
		}
		err = tracker.End(err)
	}()

	sim, err := loan.NewSimulation(m, l.policy, l.opts.Config)
	if err != nil {
		return loan.Result{}, &MerchantError{MerchantID: m.ID, Err: err}
	}
	res, err = sim.Simulate()
	if err != nil {
		return loan.Result{}, &MerchantError{MerchantID: m.ID, Err: err}
	}
	return res, nil
}

// Results returns the per-merchant results of the completed run.
func (l *Lender) Results() ([]loan.Result, error) {
	if !l.done {
		return nil, ErrNotSimulated
	}
	return append([]loan.Result(nil), l.results...), nil
}

// CalculateResults reduces the completed run into its portfolio.
func (l *Lender) CalculateResults() (Portfolio, error) {
	if !l.done {
		return Portfolio{}, ErrNotSimulated
	}
	p := NewPortfolio(l.opts.Product, l.results, l.opts.RiskFreeRate, l.opts.Weighting)
	l.logger.Info("lender run finished",
		slog.String("run_id", l.id.String()),
		slog.Int("funded", p.Funded),
		slog.Int("bankrupt", p.Bankrupt),
		slog.Float64("lender_profit", p.Aggregate.LenderProfit),
		slog.Float64("sharpe", p.Sharpe),
	)
	return p, nil
}
