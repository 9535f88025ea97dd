package loan

import (
	"math"

	"github.com/odyssey-erp/lendsim/internal/merchant"
	"github.com/odyssey-erp/lendsim/internal/num"
	"github.com/odyssey-erp/lendsim/internal/underwriting"
)

// Result is the frozen outcome of one merchant simulation.
type Result struct {
	MerchantID       int
	Product          Product
	Funded           bool
	Loans            int
	TotalCredit      float64
	TotalDebt        float64
	Repaid           float64
	OutstandingDebt  float64
	Loss             float64
	CostOfCapital    float64
	LenderProfit     float64
	APR              float64
	RevenueCAGR      float64
	InventoryCAGR    float64
	NetCashflowCAGR  float64
	ValuationCAGR    float64
	DebtToValuation  float64
	BankruptcyDate   int
	BankruptcyRate   float64
	Valuation        float64
	InitialValuation float64
	InitialScores    map[underwriting.Predictor]float64
}

// Bankrupt reports whether the merchant became insolvent.
func (r Result) Bankrupt() bool {
	return r.BankruptcyDate > 0
}

// CalculateCAGR annualises growth from first to last over duration days.
// Non-positive endpoints map to sentinel rates instead of undefined values:
// a non-positive start returns the sign of last, a non-positive end from a
// positive start returns -1.
func CalculateCAGR(first, last float64, duration int) float64 {
	if duration <= 0 {
		return 0
	}
	if first <= 0 {
		return sign(last)
	}
	if last <= 0 {
		return -1
	}
	return math.Pow(last/first, float64(merchant.Year)/float64(duration)) - 1
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// CalculateResults derives the result bundle from the ledger and the
// terminal merchant state. Terminal revenue, inventory and valuation are
// zero for a bankrupt merchant.
func (s *Simulation) CalculateResults() Result {
	last := s.lastDay()
	duration := last - merchant.StartDate + 1

	var revenue, inventory, valuation float64
	if !s.Bankrupt() {
		revenue = s.merchant.AnnualTopLine(last)
		inventory = s.merchant.InventoryValue(last)
		valuation = s.Valuation(last)
	}

	r := Result{
		MerchantID:       s.merchant.ID,
		Product:          s.policy.Product(),
		Loans:            s.ledger.Count(),
		Funded:           s.ledger.Count() > 0,
		TotalCredit:      s.ledger.TotalPrincipal(),
		TotalDebt:        s.ledger.TotalCreditExtended(),
		Repaid:           s.ledger.TotalRepaid(),
		OutstandingDebt:  s.ledger.OutstandingDebt(),
		RevenueCAGR:      CalculateCAGR(s.initialRevenue, revenue, duration),
		InventoryCAGR:    CalculateCAGR(s.initialInventory, inventory, duration),
		NetCashflowCAGR:  CalculateCAGR(s.merchant.InitialCash(), s.cash-s.ledger.OutstandingDebt(), duration),
		ValuationCAGR:    CalculateCAGR(s.initialValuation, valuation, duration),
		BankruptcyDate:   s.bankruptcyDate,
		Valuation:        valuation,
		InitialValuation: s.initialValuation,
		InitialScores:    s.underwriting.InitialScores(),
	}
	if s.Bankrupt() {
		horizon := s.endDate - merchant.StartDate + 1
		r.BankruptcyRate = float64(s.endDate-s.bankruptcyDate+1) / float64(horizon)
	}
	if !r.Funded {
		return r
	}

	r.APR = s.WeightedAPR(last)
	r.Loss = s.Loss()
	r.CostOfCapital = s.TotalCostOfCapital(last)
	r.LenderProfit = s.income(r.APR) - (r.Loss + r.CostOfCapital + s.terms.CustomerAcquisitionCost)
	if s.initialValuation > 0 {
		r.DebtToValuation = r.TotalCredit / s.initialValuation
	}
	return r
}

// WeightedAPR is the principal-weighted APR of every draw as of day.
func (s *Simulation) WeightedAPR(day int) float64 {
	loans := s.ledger.All()
	aprs := make([]float64, len(loans))
	weights := make([]float64, len(loans))
	for i, l := range loans {
		aprs[i] = l.APR(day)
		weights[i] = l.Amount
	}
	return num.WeightedAverage(aprs, weights)
}

// Loss is the principal still owed when the run ends, by bankruptcy or at the
// horizon. ProfitFeeYield treats debt open at the horizon as collectable.
func (s *Simulation) Loss() float64 {
	if s.terms.ProfitModel == ProfitFeeYield && !s.Bankrupt() {
		return 0
	}
	return s.ledger.OutstandingPrincipal()
}

// income is the lender's gross return before losses and funding costs.
func (s *Simulation) income(apr float64) float64 {
	if s.terms.ProfitModel == ProfitFeeYield {
		return s.feeIncome()
	}
	return s.ledger.TotalRepaid() * apr
}

// TotalCostOfCapital sums each draw's funding cost over its realized duration.
func (s *Simulation) TotalCostOfCapital(day int) float64 {
	var total float64
	for _, l := range s.ledger.All() {
		total += l.CostOfCapital(day, s.terms.CostOfCapital)
	}
	return total
}

// feeIncome is the fee share of collected (or, absent bankruptcy,
// collectable) debt.
func (s *Simulation) feeIncome() float64 {
	var total float64
	for _, l := range s.ledger.All() {
		collected := l.Repaid
		if !s.Bankrupt() {
			collected += l.OutstandingDebt
		}
		total += collected * l.Interest / (1 + l.Interest)
	}
	return total
}
