package loan

import (
	"errors"

	"github.com/odyssey-erp/lendsim/internal/merchant"
	"github.com/odyssey-erp/lendsim/internal/underwriting"
)

// MarketplacePaymentCycle is the number of days between marketplace payouts.
const MarketplacePaymentCycle = 14

var (
	// ErrNonPositiveDebt indicates an attempt to draw a zero or negative amount.
	ErrNonPositiveDebt = errors.New("loan: debt amount must be positive")
	// ErrNoLoans indicates a loan-dependent figure was requested before any draw.
	ErrNoLoans = errors.New("loan: no loan has been drawn")
	// ErrSimulationFinished indicates Simulate was called twice.
	ErrSimulationFinished = errors.New("loan: simulation already finished")
	// ErrUnknownProduct indicates an unsupported loan product.
	ErrUnknownProduct = errors.New("loan: unknown product")
)

// Product enumerates the supported credit products.
type Product string

const (
	ProductNoCapital           Product = "no_capital"
	ProductFlatFee             Product = "flat_fee"
	ProductIncreasingRebate    Product = "increasing_rebate"
	ProductLineOfCredit        Product = "line_of_credit"
	ProductDynamicLineOfCredit Product = "dynamic_line_of_credit"
)

// Products lists every supported product.
func Products() []Product {
	return []Product{
		ProductNoCapital,
		ProductFlatFee,
		ProductIncreasingRebate,
		ProductLineOfCredit,
		ProductDynamicLineOfCredit,
	}
}

// ProfitModel selects how a funded merchant's lender profit and loss are
// derived from its ledger.
type ProfitModel string

const (
	// ProfitRepaidAPR earns the weighted APR on the repaid amount and writes
	// off principal still owed at default or horizon end.
	ProfitRepaidAPR ProfitModel = "repaid_apr"
	// ProfitFeeYield earns the fee share of collected debt. Debt open at
	// horizon end counts as collectable; only bankruptcy writes off principal.
	ProfitFeeYield ProfitModel = "fee_yield"
)

// Terms are the economic parameters of a loan product.
type Terms struct {
	Product                    Product
	Interest                   float64
	DurationDays               int
	LoanAmountPerMonthlyIncome float64
	DefaultRepaymentRate       float64
	MinRepaymentRate           float64
	MaxRepaymentRate           float64
	CostOfCapital              float64
	CustomerAcquisitionCost    float64
	CreditLookaheadDays        int
	RevenueCollateralization   bool
	ProfitModel                ProfitModel
}

// DefaultTerms returns a flat-fee revenue-based financing offer.
func DefaultTerms() Terms {
	return Terms{
		Product:                    ProductFlatFee,
		Interest:                   0.12,
		DurationDays:               180,
		LoanAmountPerMonthlyIncome: 1,
		DefaultRepaymentRate:       0.3,
		MinRepaymentRate:           0.1,
		MaxRepaymentRate:           0.5,
		CostOfCapital:              0.08,
		CustomerAcquisitionCost:    300,
		CreditLookaheadDays:        2 * MarketplacePaymentCycle,
		ProfitModel:                ProfitRepaidAPR,
	}
}

// Config groups everything a Simulation needs besides the merchant.
type Config struct {
	Terms        Terms
	Underwriting underwriting.Config
	HorizonDays  int
}

// DefaultConfig returns DefaultTerms with the default underwriting policy
// over a one-year horizon.
func DefaultConfig() Config {
	return Config{
		Terms:        DefaultTerms(),
		Underwriting: underwriting.DefaultConfig(),
		HorizonDays:  merchant.Year,
	}
}
