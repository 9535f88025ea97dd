// Package loan runs the day-stepped cash-flow simulation of one merchant
// under one credit product.
package loan

import (
	"fmt"
	"math"

	"github.com/odyssey-erp/lendsim/internal/merchant"
	"github.com/odyssey-erp/lendsim/internal/num"
	"github.com/odyssey-erp/lendsim/internal/underwriting"
)

// Simulation is the mutable state of one merchant's credit relationship.
// It is owned by a single goroutine for its whole lifetime.
type Simulation struct {
	terms        Terms
	policy       Policy
	merchant     *merchant.Merchant
	underwriting *underwriting.Underwriting
	ledger       Ledger

	endDate            int
	today              int
	cash               float64
	marketplaceBalance float64
	repaymentRate      float64
	bankruptcyDate     int
	finished           bool

	cashHistory map[int]float64

	initialRevenue   float64
	initialInventory float64
	initialValuation float64
	totalRevenue     float64
	totalProfit      float64
}

// NewSimulation prepares a simulation starting on merchant.StartDate with
// the merchant's initial cash and a freshly scored underwriting.
func NewSimulation(m *merchant.Merchant, policy Policy, cfg Config) (*Simulation, error) {
	uw, err := underwriting.New(cfg.Underwriting, m, merchant.StartDate)
	if err != nil {
		return nil, fmt.Errorf("loan: underwriting merchant %d: %w", m.ID, err)
	}
	horizon := cfg.HorizonDays
	if horizon <= 0 {
		horizon = merchant.Year
	}
	s := &Simulation{
		terms:         cfg.Terms,
		policy:        policy,
		merchant:      m,
		underwriting:  uw,
		endDate:       merchant.StartDate + horizon - 1,
		today:         merchant.StartDate,
		cash:          m.InitialCash(),
		repaymentRate: cfg.Terms.DefaultRepaymentRate,
		cashHistory:   make(map[int]float64, horizon),
	}
	s.initialRevenue = m.AnnualTopLine(merchant.StartDate)
	s.initialInventory = m.InventoryValue(merchant.StartDate)
	s.initialValuation = s.Valuation(merchant.StartDate)
	return s, nil
}

// Simulate runs every day of the horizon, stopping early on bankruptcy, and
// returns the result bundle.
func (s *Simulation) Simulate() (Result, error) {
	if s.finished {
		return Result{}, ErrSimulationFinished
	}
	for !s.Bankrupt() && s.today <= s.endDate {
		if err := s.SimulateDay(); err != nil {
			return Result{}, fmt.Errorf("loan: merchant %d day %d: %w", s.merchant.ID, s.today, err)
		}
	}
	s.finished = true
	return s.CalculateResults(), nil
}

// SimulateDay runs one day in strict order: credit, sales, payout, inventory
// purchase, bankruptcy check. The day advances unless the merchant went
// bankrupt.
func (s *Simulation) SimulateDay() error {
	s.policy.UpdateRepaymentRate(s)
	if err := s.updateCredit(); err != nil {
		return err
	}
	s.simulateSales()
	s.marketplacePayout()
	s.simulateInventoryPurchase()
	s.cashHistory[s.today] = s.cash
	if s.cash < -num.Epsilon {
		s.onBankruptcy()
		return nil
	}
	s.today++
	return nil
}

func (s *Simulation) updateCredit() error {
	if s.policy.RemainingCredit(s) <= 0 {
		return nil
	}
	needed := s.CreditNeeded()
	if needed <= 0 {
		return nil
	}
	amount := s.policy.DrawAmount(s.ApprovedAmount(), needed)
	if amount <= 0 {
		return nil
	}
	return s.AddDebt(amount)
}

// CreditNeeded is committed purchase-order obligations plus projected
// reorder cost within the lookahead, less cash on hand, floored at zero.
func (s *Simulation) CreditNeeded() float64 {
	committed := s.merchant.CommittedPurchaseOrderCost(s.today)
	projected := s.merchant.ProjectedCashNeed(s.today, s.terms.CreditLookaheadDays)
	return math.Max(committed+projected-s.cash, 0)
}

// ApprovedAmount is what the lender would disburse today: zero unless
// underwriting approves and the draw is projected to be profitable.
func (s *Simulation) ApprovedAmount() float64 {
	if !s.underwriting.Approved(s.today) {
		return 0
	}
	amount := math.Min(s.policy.CalculateAmount(s), s.policy.RemainingCredit(s))
	if amount <= 0 || s.ProjectedLenderProfit(amount) <= 0 {
		return 0
	}
	return amount
}

// ProjectedLenderProfit estimates the fee earned on drawing amount today less
// the funding cost over the projected payback and, for a first draw, the
// acquisition cost. Payback is projected at no less than the default
// repayment rate, so a score-based rate cut does not decline the merchants
// it rewards.
func (s *Simulation) ProjectedLenderProfit(amount float64) float64 {
	fee := amount * s.terms.Interest
	cac := 0.0
	if s.ledger.Count() == 0 {
		cac = s.terms.CustomerAcquisitionCost
	}
	rate := math.Max(s.repaymentRate, s.terms.DefaultRepaymentRate)
	dailyRepayment := s.expectedDailyGrossProfit() * rate
	if dailyRepayment <= 0 {
		return -(amount + cac)
	}
	days := amount * (1 + s.terms.Interest) / dailyRepayment
	costOfCapital := amount * (math.Pow(1+s.terms.CostOfCapital, days/merchant.Year) - 1)
	return fee - costOfCapital - cac
}

func (s *Simulation) expectedDailyGrossProfit() float64 {
	var total float64
	for _, inv := range s.merchant.Inventories {
		if b := inv.BatchAt(s.today); b != nil {
			total += b.AnnualTopLine() * b.GPMargin() / merchant.Year
		}
	}
	return total
}

// AddDebt records a draw: cash rises by amount, debt by amount plus fee.
func (s *Simulation) AddDebt(amount float64) error {
	if amount <= 0 || math.IsNaN(amount) {
		return fmt.Errorf("%w: %v", ErrNonPositiveDebt, amount)
	}
	s.ledger.Add(amount, s.terms.Interest, s.terms.DurationDays, s.today)
	s.cash += amount
	return nil
}

func (s *Simulation) simulateSales() {
	revenue := s.merchant.Revenue(s.today)
	s.totalRevenue += revenue
	s.totalProfit += s.merchant.Profit(s.today)
	s.marketplaceBalance += s.merchant.GrossProfit(s.today)
}

// isPayoutDay reports whether the marketplace pays out on day.
func isPayoutDay(day int) bool {
	return day%MarketplacePaymentCycle == 0
}

func (s *Simulation) marketplacePayout() {
	if !isPayoutDay(s.today) {
		return
	}
	repaid := s.loanRepayment()
	s.cash += s.marketplaceBalance - repaid
	s.marketplaceBalance = 0
}

// loanRepayment withholds min(debt, balance·rate) from the payout and
// applies it oldest loan first.
func (s *Simulation) loanRepayment() float64 {
	debt := s.ledger.OutstandingDebt()
	if debt <= 0 || s.marketplaceBalance <= 0 {
		return 0
	}
	amount := math.Min(debt, s.marketplaceBalance*s.repaymentRate)
	return s.ledger.Repay(amount, s.today)
}

func (s *Simulation) simulateInventoryPurchase() {
	s.cash -= s.merchant.InventoryCost(s.today, s.cash)
}

func (s *Simulation) onBankruptcy() {
	s.bankruptcyDate = s.today
}

// Bankrupt reports whether the merchant has become insolvent.
func (s *Simulation) Bankrupt() bool {
	return s.bankruptcyDate > 0
}

// Valuation is net cash plus the discounted inventory value on day.
func (s *Simulation) Valuation(day int) float64 {
	return s.cash + s.marketplaceBalance + s.merchant.InventoryValue(day) - s.ledger.OutstandingDebt()
}

// LoanDuration is the number of days since the first draw.
func (s *Simulation) LoanDuration() (int, error) {
	all := s.ledger.All()
	if len(all) == 0 {
		return 0, ErrNoLoans
	}
	first := all[0]
	for _, l := range all[1:] {
		if l.StartDate < first.StartDate {
			first = l
		}
	}
	return s.lastDay() - first.StartDate + 1, nil
}

// lastDay is the terminal simulated day.
func (s *Simulation) lastDay() int {
	if s.Bankrupt() {
		return s.bankruptcyDate
	}
	return min(s.today, s.endDate)
}

// Today returns the day being simulated.
func (s *Simulation) Today() int { return s.today }

// Cash returns the merchant's cash balance.
func (s *Simulation) Cash() float64 { return s.cash }

// MarketplaceBalance returns the uncollected marketplace receivable.
func (s *Simulation) MarketplaceBalance() float64 { return s.marketplaceBalance }

// RepaymentRate returns the current share of payouts withheld.
func (s *Simulation) RepaymentRate() float64 { return s.repaymentRate }

// OutstandingDebt returns the debt still owed across active loans.
func (s *Simulation) OutstandingDebt() float64 { return s.ledger.OutstandingDebt() }

// Ledger exposes the loan records.
func (s *Simulation) Ledger() *Ledger { return &s.ledger }

// BankruptcyDate returns the day of insolvency, 0 if none.
func (s *Simulation) BankruptcyDate() int { return s.bankruptcyDate }

// CashHistory returns a copy of the end-of-day cash balances.
func (s *Simulation) CashHistory() map[int]float64 {
	out := make(map[int]float64, len(s.cashHistory))
	for k, v := range s.cashHistory {
		out[k] = v
	}
	return out
}

// Underwriting exposes the merchant's risk scorer.
func (s *Simulation) Underwriting() *underwriting.Underwriting { return s.underwriting }

// Merchant returns the simulated merchant.
func (s *Simulation) Merchant() *merchant.Merchant { return s.merchant }
