package loan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/lendsim/internal/merchant"
)

func deterministicMerchant(t *testing.T, mutate func(*merchant.Params)) *merchant.Merchant {
	t.Helper()
	p := merchant.DefaultParams()
	if mutate != nil {
		mutate(&p)
	}
	merchants, err := merchant.GeneratePopulation(p, 1, true, 1)
	require.NoError(t, err)
	return merchants[0]
}

func randomMerchants(t *testing.T, seed uint64, n int) []*merchant.Merchant {
	t.Helper()
	merchants, err := merchant.GeneratePopulation(merchant.DefaultParams(), seed, false, n)
	require.NoError(t, err)
	return merchants
}

func lowCash(p *merchant.Params) {
	p.InitialCashRatio = 0.01
}

func newSimulation(t *testing.T, m *merchant.Merchant, policy Policy) *Simulation {
	t.Helper()
	s, err := NewSimulation(m, policy, DefaultConfig())
	require.NoError(t, err)
	return s
}

func TestCalculateCAGR(t *testing.T) {
	cases := []struct {
		first, last float64
		duration    int
		want        float64
	}{
		{0, 2, merchant.Year, 1},
		{1, 0, merchant.Year, -1},
		{0, 0, merchant.Year, 0},
		{-1, 0, merchant.Year, 0},
		{-1, 1, merchant.Year, 1},
		{-1, -2, merchant.Year, -1},
		{1, -1, merchant.Year, -1},
		{100, 121, 2 * merchant.Year, 0.1},
		{100, 110, merchant.Year, 0.1},
		{100, 110, 0, 0},
	}
	for _, tc := range cases {
		require.InDelta(t, tc.want, CalculateCAGR(tc.first, tc.last, tc.duration), 1e-9, "cagr(%v, %v, %d)", tc.first, tc.last, tc.duration)
	}
}

func TestMarketplacePayoutRepaysFromBalance(t *testing.T) {
	m := deterministicMerchant(t, func(p *merchant.Params) {
		p.MedianAnnualTopLine = 120000
		p.MinProducts = 1
		p.MaxProducts = 1
		p.InitialCashRatio = 0.01
		p.GrowthRateStd = 0
	})
	require.InDelta(t, 120000, m.AnnualTopLine(merchant.StartDate), 1e-6)
	require.InDelta(t, 1200, m.InitialCash(), 1e-6)

	s := newSimulation(t, m, FlatFee{})
	terms := DefaultTerms()
	amount := terms.LoanAmountPerMonthlyIncome * m.AnnualTopLine(merchant.StartDate) / 12
	require.NoError(t, s.AddDebt(amount))
	require.InDelta(t, 1200+amount, s.Cash(), 1e-6)
	require.InDelta(t, amount*(1+terms.Interest), s.OutstandingDebt(), 1e-6)

	for s.Today() < MarketplacePaymentCycle {
		require.NoError(t, s.SimulateDay())
		require.False(t, s.Bankrupt())
	}
	require.Equal(t, 1, s.Ledger().Count())

	s.policy.UpdateRepaymentRate(s)
	require.NoError(t, s.updateCredit())
	s.simulateSales()
	debt := s.OutstandingDebt()
	balance := s.MarketplaceBalance()
	cash := s.Cash()
	require.Positive(t, balance)

	s.marketplacePayout()
	repaid := balance * terms.DefaultRepaymentRate
	require.InDelta(t, debt-repaid, s.OutstandingDebt(), 1e-7)
	require.InDelta(t, cash+balance-repaid, s.Cash(), 1e-7)
	require.Zero(t, s.MarketplaceBalance())
}

func TestNoPayoutBetweenCycles(t *testing.T) {
	s := newSimulation(t, deterministicMerchant(t, nil), NoCapital{})
	for s.Today() < MarketplacePaymentCycle {
		require.NoError(t, s.SimulateDay())
	}
	require.Positive(t, s.MarketplaceBalance())
	require.NoError(t, s.SimulateDay())
	require.Zero(t, s.MarketplaceBalance())
}

func TestNoCapitalNeverLends(t *testing.T) {
	for _, m := range randomMerchants(t, 5, 12) {
		s := newSimulation(t, m, NoCapital{})
		r, err := s.Simulate()
		require.NoError(t, err)
		require.False(t, r.Funded)
		require.Zero(t, r.OutstandingDebt)
		require.Zero(t, r.TotalDebt)
		require.Zero(t, r.TotalCredit)
		require.Zero(t, r.APR)
		require.Zero(t, r.LenderProfit)
		require.Equal(t, ProductNoCapital, r.Product)
	}
}

func TestFlatFeeFundsCashGap(t *testing.T) {
	m := deterministicMerchant(t, lowCash)
	s := newSimulation(t, m, FlatFee{})
	require.Positive(t, s.CreditNeeded())
	require.True(t, s.Underwriting().Approved(merchant.StartDate))
	approved := s.ApprovedAmount()
	require.InDelta(t, m.AnnualTopLine(merchant.StartDate)/12, approved, 1e-6)

	r, err := s.Simulate()
	require.NoError(t, err)
	require.True(t, r.Funded)
	require.GreaterOrEqual(t, r.Loans, 1)
	require.InDelta(t, approved, s.Ledger().All()[0].Amount, 1e-6)
	require.Positive(t, r.Repaid)
	require.InDelta(t, r.TotalDebt, r.Repaid+r.OutstandingDebt, 1e-6)
	require.Positive(t, r.APR)
	require.InDelta(t, s.Ledger().OutstandingPrincipal(), r.Loss, 1e-9)
	require.InDelta(t, r.Repaid*r.APR-(r.Loss+r.CostOfCapital+DefaultTerms().CustomerAcquisitionCost), r.LenderProfit, 1e-6)

	_, err = s.Simulate()
	require.ErrorIs(t, err, ErrSimulationFinished)
}

func TestDebtIsConservedEveryDay(t *testing.T) {
	for _, policy := range []Policy{FlatFee{}, IncreasingRebate{}, LineOfCredit{}, DynamicLineOfCredit{}} {
		t.Run(string(policy.Product()), func(t *testing.T) {
			s := newSimulation(t, deterministicMerchant(t, lowCash), policy)
			for !s.Bankrupt() && s.Today() <= s.endDate {
				require.NoError(t, s.SimulateDay())
				lg := s.Ledger()
				require.InDelta(t, lg.TotalCreditExtended(), lg.OutstandingDebt()+lg.TotalRepaid(), 1e-6)
				for _, l := range lg.Closed() {
					require.Zero(t, l.OutstandingDebt)
				}
				for _, l := range lg.Active() {
					require.Positive(t, l.OutstandingDebt)
				}
			}
			require.Positive(t, s.Ledger().Count())
		})
	}
}

func TestDeterministicRunsAreIdentical(t *testing.T) {
	run := func() Result {
		s := newSimulation(t, deterministicMerchant(t, lowCash), LineOfCredit{})
		r, err := s.Simulate()
		require.NoError(t, err)
		return r
	}
	require.Equal(t, run(), run())
}

func TestBankruptcyTruncatesHorizon(t *testing.T) {
	s := newSimulation(t, deterministicMerchant(t, nil), NoCapital{})
	s.cash = -1
	require.NoError(t, s.SimulateDay())
	require.True(t, s.Bankrupt())
	require.Equal(t, merchant.StartDate, s.BankruptcyDate())

	r, err := s.Simulate()
	require.NoError(t, err)
	require.Equal(t, merchant.StartDate, r.BankruptcyDate)
	require.InDelta(t, 1.0, r.BankruptcyRate, 1e-12)
	require.Zero(t, r.Valuation)
	require.Equal(t, -1.0, r.RevenueCAGR)
}

func TestBankruptcyCrystallisesLoss(t *testing.T) {
	s := newSimulation(t, deterministicMerchant(t, nil), LineOfCredit{})
	require.NoError(t, s.AddDebt(1000))
	s.today = 100
	s.ledger.Repay(560, 50)
	s.bankruptcyDate = 100

	cac := DefaultTerms().CustomerAcquisitionCost
	r := s.CalculateResults()
	require.InDelta(t, 500, r.Loss, 1e-9)
	require.InDelta(t, 0.12*merchant.Year/100, r.APR, 1e-12)
	require.InDelta(t, float64(s.endDate-100+1)/merchant.Year, r.BankruptcyRate, 1e-12)
	require.InDelta(t, 560*r.APR-(500+r.CostOfCapital+cac), r.LenderProfit, 1e-9)

	s.terms.ProfitModel = ProfitFeeYield
	fy := s.CalculateResults()
	require.InDelta(t, 500, fy.Loss, 1e-9)
	require.InDelta(t, 60, s.feeIncome(), 1e-9)
	require.InDelta(t, 60-500-fy.CostOfCapital-cac, fy.LenderProfit, 1e-9)

	duration, err := s.LoanDuration()
	require.NoError(t, err)
	require.Equal(t, 100, duration)
}

func TestHorizonEndWritesOffOpenPrincipal(t *testing.T) {
	s := newSimulation(t, deterministicMerchant(t, nil), LineOfCredit{})
	require.NoError(t, s.AddDebt(1000))
	s.ledger.Repay(560, 14)
	s.today = s.endDate + 1
	cac := DefaultTerms().CustomerAcquisitionCost

	r := s.CalculateResults()
	require.False(t, r.Bankrupt())
	require.InDelta(t, 500, r.Loss, 1e-9)
	require.InDelta(t, 560, r.Repaid, 1e-9)
	require.InDelta(t, 0.12*merchant.Year/float64(s.endDate), r.APR, 1e-12)
	require.InDelta(t, r.Repaid*r.APR-(r.Loss+r.CostOfCapital+cac), r.LenderProfit, 1e-9)

	s.terms.ProfitModel = ProfitFeeYield
	fy := s.CalculateResults()
	require.Zero(t, fy.Loss)
	require.InDelta(t, 120, s.feeIncome(), 1e-9)
	require.InDelta(t, 120-fy.CostOfCapital-cac, fy.LenderProfit, 1e-9)
	require.Greater(t, fy.LenderProfit, r.LenderProfit)
}

func TestDynamicLineOfCreditFundsTopScorer(t *testing.T) {
	s := newSimulation(t, deterministicMerchant(t, lowCash), DynamicLineOfCredit{})
	DynamicLineOfCredit{}.UpdateRepaymentRate(s)
	require.InDelta(t, 1.0, s.Underwriting().AggregatedScoreOn(s.Today()), 1e-12)
	require.InDelta(t, DefaultTerms().MinRepaymentRate, s.RepaymentRate(), 1e-12)
	require.Positive(t, s.CreditNeeded())
	require.Positive(t, s.ApprovedAmount())

	plain := newSimulation(t, deterministicMerchant(t, lowCash), LineOfCredit{})
	amount := s.ApprovedAmount()
	require.InDelta(t, plain.ProjectedLenderProfit(amount), s.ProjectedLenderProfit(amount), 1e-9)

	r, err := s.Simulate()
	require.NoError(t, err)
	require.True(t, r.Funded)
	require.Positive(t, s.Ledger().Count())
}

func TestAddDebtRejectsNonPositive(t *testing.T) {
	s := newSimulation(t, deterministicMerchant(t, nil), FlatFee{})
	require.ErrorIs(t, s.AddDebt(0), ErrNonPositiveDebt)
	require.ErrorIs(t, s.AddDebt(-5), ErrNonPositiveDebt)
	_, err := s.LoanDuration()
	require.ErrorIs(t, err, ErrNoLoans)
}

func TestRejectedMerchantIsNotFunded(t *testing.T) {
	m := deterministicMerchant(t, func(p *merchant.Params) {
		lowCash(p)
		p.MedianROAS = 0.5
	})
	s := newSimulation(t, m, FlatFee{})
	require.False(t, s.Underwriting().Approved(merchant.StartDate))
	require.Zero(t, s.ApprovedAmount())
	require.NoError(t, s.SimulateDay())
	require.Zero(t, s.Ledger().Count())
}

func TestUnprofitableDrawIsDeclined(t *testing.T) {
	s := newSimulation(t, deterministicMerchant(t, lowCash), FlatFee{})
	s.terms.CustomerAcquisitionCost = 1e9
	require.Negative(t, s.ProjectedLenderProfit(1000))
	require.Zero(t, s.ApprovedAmount())
}

func TestCashHistoryRecordsEveryDay(t *testing.T) {
	s := newSimulation(t, deterministicMerchant(t, nil), NoCapital{})
	_, err := s.Simulate()
	require.NoError(t, err)
	history := s.CashHistory()
	if !s.Bankrupt() {
		require.Len(t, history, merchant.Year)
	}
	require.Equal(t, s.Cash(), history[s.lastDay()])
}
