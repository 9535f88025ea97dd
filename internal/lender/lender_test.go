package lender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/lendsim/internal/jobs"
	"github.com/odyssey-erp/lendsim/internal/loan"
	"github.com/odyssey-erp/lendsim/internal/merchant"
	"github.com/odyssey-erp/lendsim/internal/underwriting"
)

func population(t *testing.T, seed uint64, deterministic bool, n int) []*merchant.Merchant {
	t.Helper()
	p := merchant.DefaultParams()
	p.InitialCashRatio = 0.02
	merchants, err := merchant.GeneratePopulation(p, seed, deterministic, n)
	require.NoError(t, err)
	return merchants
}

func run(t *testing.T, merchants []*merchant.Merchant, opts Options) []loan.Result {
	t.Helper()
	l, err := New(merchants, opts)
	require.NoError(t, err)
	results, err := l.Simulate(context.Background())
	require.NoError(t, err)
	return results
}

func TestResultsIndependentOfWorkerCount(t *testing.T) {
	for _, deterministic := range []bool{true, false} {
		opts := Options{Product: loan.ProductLineOfCredit, Config: loan.DefaultConfig()}
		opts.Workers = 1
		single := run(t, population(t, 7, deterministic, 24), opts)
		opts.Workers = 8
		parallel := run(t, population(t, 7, deterministic, 24), opts)
		require.Equal(t, single, parallel)
		for i, r := range single {
			require.Equal(t, i+1, r.MerchantID)
		}
	}
}

func TestSimulateReportsProgress(t *testing.T) {
	var calls [][2]int
	opts := Options{
		Product: loan.ProductFlatFee,
		Config:  loan.DefaultConfig(),
		Workers: 4,
		Progress: func(done, total int) {
			calls = append(calls, [2]int{done, total})
		},
	}
	run(t, population(t, 3, false, 10), opts)
	require.Len(t, calls, 10)
	for i, c := range calls {
		require.Equal(t, [2]int{i + 1, 10}, c)
	}
}

func TestSimulateRecordsJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := Options{
		Product: loan.ProductFlatFee,
		Config:  loan.DefaultConfig(),
		Metrics: jobmetrics.NewMetrics(reg),
	}
	run(t, population(t, 11, false, 6), opts)

	count, err := testutil.GatherAndCount(reg, "lendsim_simulations_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	n, err := testutil.GatherAndCount(reg, "lendsim_funded_merchants_total", "lendsim_bankruptcies_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestMerchantPanicIsSurfaced(t *testing.T) {
	merchants := population(t, 1, true, 3)
	merchants = append(merchants, &merchant.Merchant{ID: 99, Inventories: []*merchant.Inventory{nil}})
	l, err := New(merchants, Options{Product: loan.ProductFlatFee, Config: loan.DefaultConfig(), Workers: 2})
	require.NoError(t, err)

	_, err = l.Simulate(context.Background())
	var merr *MerchantError
	require.ErrorAs(t, err, &merr)
	require.Equal(t, 99, merr.MerchantID)
	require.Contains(t, err.Error(), "panic")

	_, err = l.CalculateResults()
	require.ErrorIs(t, err, ErrNotSimulated)
	_, err = l.Results()
	require.ErrorIs(t, err, ErrNotSimulated)
}

func TestSimulateHonoursCancellation(t *testing.T) {
	l, err := New(population(t, 1, true, 4), Options{Product: loan.ProductNoCapital, Config: loan.DefaultConfig()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Simulate(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Options{Product: loan.ProductFlatFee})
	require.ErrorIs(t, err, ErrNoMerchants)
	_, err = New(population(t, 1, true, 1), Options{Product: "payday"})
	require.ErrorIs(t, err, loan.ErrUnknownProduct)
}

func TestCalculateResults(t *testing.T) {
	l, err := New(population(t, 21, false, 16), Options{Product: loan.ProductFlatFee, Config: loan.DefaultConfig(), RiskFreeRate: 0.04})
	require.NoError(t, err)
	results, err := l.Simulate(context.Background())
	require.NoError(t, err)

	p, err := l.CalculateResults()
	require.NoError(t, err)
	require.Equal(t, 16, p.Merchants)
	require.Equal(t, len(Funded(results)), p.Funded)
	require.Len(t, p.ProfitCorrelation, len(underwriting.Predictors()))
	require.Len(t, p.BankruptcyCorrelation, len(underwriting.Predictors()))
	for _, c := range p.ProfitCorrelation {
		require.GreaterOrEqual(t, c, -1.0)
		require.LessOrEqual(t, c, 1.0)
	}
	require.Equal(t, float64(p.Funded), p.Figures()["funded"])
}

func TestAggregateResults(t *testing.T) {
	results := []loan.Result{
		{LenderProfit: 0.1, TotalCredit: 100, APR: 0.2, RevenueCAGR: 0.1, InitialValuation: 3, Valuation: 1},
		{LenderProfit: 0.2, TotalCredit: 50, APR: 0.6, RevenueCAGR: -0.2, InitialValuation: 1, Valuation: 3},
		{LenderProfit: -5, TotalCredit: 20, APR: 0.9, RevenueCAGR: -1, BankruptcyRate: 0.5, InitialValuation: 4, BankruptcyDate: 180},
	}

	agg := AggregateResults(results, WeightingTerminalValuation)
	require.InDelta(t, -4.7, agg.LenderProfit, 1e-12)
	require.Equal(t, 170.0, agg.TotalCredit)
	require.Equal(t, 4.0, agg.Valuation)
	require.InDelta(t, (0.2+1.8)/4, agg.APR, 1e-12)
	require.InDelta(t, (0.1-0.6)/4, agg.RevenueCAGR, 1e-12)
	require.Zero(t, agg.BankruptcyRate)
	require.Equal(t, agg, AggregateResults(results, ""))

	initial := AggregateResults(results, WeightingInitialValuation)
	require.Equal(t, agg.LenderProfit, initial.LenderProfit)
	require.InDelta(t, (0.6+0.6+3.6)/8, initial.APR, 1e-12)
	require.InDelta(t, (0.3-0.2-4)/8, initial.RevenueCAGR, 1e-12)
	require.InDelta(t, 0.25, initial.BankruptcyRate, 1e-12)

	require.Zero(t, AggregateResults(nil, WeightingTerminalValuation).APR)
}

func TestPortfolioDefaultsToTerminalValuation(t *testing.T) {
	results := []loan.Result{
		{Funded: true, APR: 0.2, InitialValuation: 9, Valuation: 1},
		{Funded: true, APR: 0.4, InitialValuation: 1, Valuation: 1},
	}
	p := NewPortfolio(loan.ProductFlatFee, results, 0, "")
	require.Equal(t, WeightingTerminalValuation, p.Weighting)
	require.InDelta(t, 0.3, p.Aggregate.APR, 1e-12)

	p = NewPortfolio(loan.ProductFlatFee, results, 0, WeightingInitialValuation)
	require.InDelta(t, 0.22, p.Aggregate.APR, 1e-12)
}

func TestCalculateSharpe(t *testing.T) {
	same := []loan.Result{
		{Funded: true, APR: 0.1, Valuation: 1},
		{Funded: true, APR: 0.1, Valuation: 5},
		{Funded: true, APR: 0.1, Valuation: 2},
	}
	require.Zero(t, CalculateSharpe(same, 0.05, WeightingTerminalValuation))
	require.Zero(t, CalculateSharpe(nil, 0.05, WeightingTerminalValuation))

	mixed := []loan.Result{
		{Funded: true, APR: 0.1, Valuation: 1, InitialValuation: 1},
		{Funded: true, APR: 0.3, Valuation: 1, InitialValuation: 1},
		{Funded: false, APR: 0, Valuation: 1, InitialValuation: 1},
	}
	require.InDelta(t, 1.5, CalculateSharpe(mixed, 0.05, WeightingTerminalValuation), 1e-9)
	require.InDelta(t, 1.5, CalculateSharpe(mixed, 0.05, WeightingInitialValuation), 1e-9)
}

func TestCalculateCorrelation(t *testing.T) {
	scores := func(roas, margin float64) map[underwriting.Predictor]float64 {
		return map[underwriting.Predictor]float64{
			underwriting.PredictorROAS:         roas,
			underwriting.PredictorProfitMargin: margin,
			underwriting.PredictorOrganicRate:  1,
		}
	}
	results := []loan.Result{
		{Funded: true, LenderProfit: 100, InitialScores: scores(0.2, 0.9)},
		{Funded: true, LenderProfit: 200, InitialScores: scores(0.4, 0.6)},
		{Funded: true, LenderProfit: 300, InitialScores: scores(0.6, 0.3)},
		{Funded: false, LenderProfit: 0, InitialScores: scores(1, 1)},
	}
	corr, err := CalculateCorrelation(results, FieldLenderProfit)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, corr[underwriting.PredictorROAS], 1e-9)
	assert.InDelta(t, -1.0, corr[underwriting.PredictorProfitMargin], 1e-9)
	assert.Zero(t, corr[underwriting.PredictorOrganicRate])
	assert.Zero(t, corr[underwriting.PredictorOutOfStockRate])

	_, err = CalculateCorrelation(results, "ebitda")
	require.True(t, errors.Is(err, ErrUnknownField))
}

func TestFieldValue(t *testing.T) {
	v, err := FieldRevenueCAGR.Value(loan.Result{RevenueCAGR: 0.25})
	require.NoError(t, err)
	require.Equal(t, 0.25, v)
	_, err = Field("nope").Value(loan.Result{})
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestFailureLogCarriesPopulationRef(t *testing.T) {
	merchants := population(t, 4, false, 2)
	broken := &merchant.Merchant{ID: 3, Ref: uuid.New(), Inventories: []*merchant.Inventory{nil}}
	merchants = append(merchants, broken)

	var buf bytes.Buffer
	l, err := New(merchants, Options{
		Product: loan.ProductFlatFee,
		Config:  loan.DefaultConfig(),
		Workers: 1,
		Logger:  slog.New(slog.NewJSONHandler(&buf, nil)),
	})
	require.NoError(t, err)
	_, err = l.Simulate(context.Background())
	require.Error(t, err)

	var entry map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var e map[string]any
		require.NoError(t, json.Unmarshal(line, &e))
		if e["msg"] == "merchant simulation failed" {
			entry = e
		}
	}
	require.NotNil(t, entry)
	require.Equal(t, broken.Ref.String(), entry["merchant_ref"])
	require.Equal(t, float64(broken.ID), entry["merchant_id"])
}

func TestDefaultPopulationSeparatesProducts(t *testing.T) {
	portfolios := make(map[loan.Product]Portfolio, len(loan.Products()))
	for _, product := range loan.Products() {
		merchants, err := merchant.GeneratePopulation(merchant.DefaultParams(), 42, false, 60)
		require.NoError(t, err)
		l, err := New(merchants, Options{Product: product, Config: loan.DefaultConfig(), RiskFreeRate: 0.04})
		require.NoError(t, err)
		_, err = l.Simulate(context.Background())
		require.NoError(t, err)
		portfolios[product], err = l.CalculateResults()
		require.NoError(t, err)
	}

	baseline := portfolios[loan.ProductNoCapital]
	require.Zero(t, baseline.Funded)
	require.Zero(t, baseline.Aggregate.LenderProfit)

	flat := portfolios[loan.ProductFlatFee]
	require.Positive(t, flat.Funded)
	require.Less(t, flat.Funded, flat.Merchants)
	require.NotZero(t, flat.Aggregate.LenderProfit)
	require.NotEqual(t, baseline.Aggregate, flat.Aggregate)

	dynamic := portfolios[loan.ProductDynamicLineOfCredit]
	require.Positive(t, dynamic.Funded)
	require.Less(t, dynamic.Funded, dynamic.Merchants)
}
