package loan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/lendsim/internal/random"
)

func TestLedgerRepaysOldestFirst(t *testing.T) {
	var lg Ledger
	first := lg.Add(1, 0, 30, 1)
	second := lg.Add(1, 0, 30, 2)

	applied := lg.Repay(1.5, 10)
	require.Equal(t, 1.5, applied)
	require.True(t, first.Closed())
	require.Equal(t, 10, first.EndDate)
	require.InDelta(t, 0.5, second.OutstandingDebt, 1e-12)
	require.Len(t, lg.Closed(), 1)
	require.Len(t, lg.Active(), 1)
	require.Same(t, second, lg.Oldest())
}

func TestLedgerRepayCapsAtDebt(t *testing.T) {
	var lg Ledger
	lg.Add(100, 0.1, 30, 1)
	applied := lg.Repay(500, 5)
	require.InDelta(t, 110, applied, 1e-9)
	require.Zero(t, lg.OutstandingDebt())
	require.Nil(t, lg.Oldest())
	require.Zero(t, lg.Repay(10, 6))
}

func TestLedgerRepayingTotalDebtRetiresEveryLoan(t *testing.T) {
	for stream := uint64(0); stream < 2000; stream++ {
		rng := random.New(7, stream)
		var lg Ledger
		draws := 2 + int(rng.Uniform(0, 4))
		for i := 0; i < draws; i++ {
			lg.Add(rng.Uniform(0.01, 5000), rng.Uniform(0, 0.3), 90, i+1)
		}
		lg.Repay(rng.Uniform(0, lg.OutstandingDebt()), 20)

		lg.Repay(lg.OutstandingDebt(), 28)
		require.Empty(t, lg.Active(), "stream %d", stream)
		require.Zero(t, lg.OutstandingDebt())
		for _, l := range lg.Closed() {
			require.Zero(t, l.OutstandingDebt)
			require.Positive(t, l.EndDate)
		}
		require.InDelta(t, lg.TotalCreditExtended(), lg.TotalRepaid(), 1e-6)
	}
}

func TestLoanRetiresWithinTolerance(t *testing.T) {
	var lg Ledger
	l := lg.Add(0.1, 0.2, 30, 1)
	lg.Add(0.7, 0.12, 30, 2)

	applied := lg.Repay(l.TotalDebt()-1e-12, 14)
	require.InDelta(t, l.TotalDebt(), applied, 1e-9)
	require.True(t, l.Closed())
	require.Zero(t, l.OutstandingDebt)
	require.Equal(t, 14, l.EndDate)
	require.Equal(t, 14, l.RealizedDuration(28))
	require.Len(t, lg.Active(), 1)
}

func TestLedgerDebtConservation(t *testing.T) {
	var lg Ledger
	steps := []struct {
		draw  float64
		repay float64
	}{
		{draw: 100}, {repay: 30}, {draw: 50}, {repay: 90}, {repay: 0.5}, {draw: 10}, {repay: 1000},
	}
	for day, step := range steps {
		if step.draw > 0 {
			lg.Add(step.draw, 0.12, 90, day+1)
		}
		if step.repay > 0 {
			lg.Repay(step.repay, day+1)
		}
		var perLoan float64
		for _, l := range lg.All() {
			perLoan += l.OutstandingDebt + l.Repaid
		}
		require.InDelta(t, lg.TotalCreditExtended(), lg.OutstandingDebt()+lg.TotalRepaid(), 1e-9)
		require.InDelta(t, lg.TotalCreditExtended(), perLoan, 1e-9)
	}
	require.Equal(t, 3, lg.Count())
	require.InDelta(t, 160, lg.TotalPrincipal(), 1e-9)
}

func TestLoanEconomics(t *testing.T) {
	l := &Loan{Amount: 1000, Interest: 0.1, StartDate: 1}
	l.OutstandingDebt = l.TotalDebt()
	require.InDelta(t, 1100, l.TotalDebt(), 1e-9)
	require.InDelta(t, 1000, l.OutstandingPrincipal(), 1e-9)

	require.Equal(t, 365, l.RealizedDuration(365))
	require.InDelta(t, 0.1, l.APR(365), 1e-12)
	require.InDelta(t, 80, l.CostOfCapital(365, 0.08), 1e-9)

	l.repay(1100, 73)
	require.Equal(t, 73, l.RealizedDuration(365))
	require.InDelta(t, 0.5, l.APR(365), 1e-12)
}
