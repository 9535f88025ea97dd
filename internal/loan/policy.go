package loan

import (
	"fmt"
	"math"

	"github.com/odyssey-erp/lendsim/internal/num"
)

// Policy supplies the product-specific behaviour of the simulation engine.
// Implementations are stateless; all state lives on the Simulation.
type Policy interface {
	Product() Product
	// CalculateAmount is the credit the product offers on the current day.
	CalculateAmount(s *Simulation) float64
	// RemainingCredit is how much more may be drawn right now.
	RemainingCredit(s *Simulation) float64
	// UpdateRepaymentRate adjusts the share of payouts withheld for repayment.
	UpdateRepaymentRate(s *Simulation)
	// DrawAmount sizes a draw from the approved amount and the cash gap.
	DrawAmount(approved, needed float64) float64
}

// NewPolicy returns the policy implementing product.
func NewPolicy(product Product) (Policy, error) {
	switch product {
	case ProductNoCapital:
		return NoCapital{}, nil
	case ProductFlatFee:
		return FlatFee{}, nil
	case ProductIncreasingRebate:
		return IncreasingRebate{}, nil
	case ProductLineOfCredit:
		return LineOfCredit{}, nil
	case ProductDynamicLineOfCredit:
		return DynamicLineOfCredit{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, product)
	}
}

// NoCapital never lends; it is the counterfactual baseline.
type NoCapital struct{}

func (NoCapital) Product() Product { return ProductNoCapital }
func (NoCapital) CalculateAmount(*Simulation) float64 { return 0 }
func (NoCapital) RemainingCredit(*Simulation) float64 { return 0 }
func (NoCapital) UpdateRepaymentRate(*Simulation) {}
func (NoCapital) DrawAmount(approved, needed float64) float64 { return 0 }

// FlatFee is revenue-based financing: a single disbursement sized to
// monthly income, repaid from payouts before a new one may be drawn.
type FlatFee struct{}

func (FlatFee) Product() Product { return ProductFlatFee }

func (FlatFee) CalculateAmount(s *Simulation) float64 {
	return s.terms.LoanAmountPerMonthlyIncome * s.merchant.AnnualTopLine(s.today) / 12
}

func (p FlatFee) RemainingCredit(s *Simulation) float64 {
	if !num.IsZero(s.ledger.OutstandingDebt()) {
		return 0
	}
	return p.CalculateAmount(s)
}

func (FlatFee) UpdateRepaymentRate(*Simulation) {}

// DrawAmount halves the draw when the approved amount is less than twice
// the cash gap.
func (FlatFee) DrawAmount(approved, needed float64) float64 {
	if approved < 2*needed {
		return approved / 2
	}
	return approved
}

// IncreasingRebate behaves like FlatFee until a loan outlives its nominal
// duration, then raises the repayment rate linearly toward the maximum.
type IncreasingRebate struct {
	FlatFee
}

func (IncreasingRebate) Product() Product { return ProductIncreasingRebate }

func (IncreasingRebate) UpdateRepaymentRate(s *Simulation) {
	t := s.terms
	rate := t.DefaultRepaymentRate
	if oldest := s.ledger.Oldest(); oldest != nil && t.DurationDays > 0 {
		overdue := s.today - oldest.StartDate - t.DurationDays
		if overdue > 0 {
			step := (t.MaxRepaymentRate - t.DefaultRepaymentRate) * float64(overdue) / float64(t.DurationDays)
			rate = math.Min(t.DefaultRepaymentRate+step, t.MaxRepaymentRate)
		}
	}
	s.repaymentRate = rate
}

// LineOfCredit allows revolving draws up to the approved limit.
type LineOfCredit struct{}

func (LineOfCredit) Product() Product { return ProductLineOfCredit }

func (LineOfCredit) CalculateAmount(s *Simulation) float64 {
	return s.terms.LoanAmountPerMonthlyIncome * s.merchant.AnnualTopLine(s.today) / 12
}

func (p LineOfCredit) RemainingCredit(s *Simulation) float64 {
	return math.Max(p.CalculateAmount(s)-s.ledger.OutstandingPrincipal(), 0)
}

func (LineOfCredit) UpdateRepaymentRate(*Simulation) {}

// DrawAmount draws only the gap.
func (LineOfCredit) DrawAmount(approved, needed float64) float64 {
	return math.Min(approved, needed)
}

// DynamicLineOfCredit ties the repayment rate to the underwriting score:
// better merchants repay a smaller share of each payout. Under revenue
// collateralization the rate is pinned at the maximum.
type DynamicLineOfCredit struct {
	LineOfCredit
}

func (DynamicLineOfCredit) Product() Product { return ProductDynamicLineOfCredit }

func (DynamicLineOfCredit) UpdateRepaymentRate(s *Simulation) {
	t := s.terms
	if t.RevenueCollateralization {
		s.repaymentRate = t.MaxRepaymentRate
		return
	}
	score := num.Clip(s.underwriting.AggregatedScoreOn(s.today), 0, 1)
	s.repaymentRate = t.MaxRepaymentRate - (t.MaxRepaymentRate-t.MinRepaymentRate)*score
}
