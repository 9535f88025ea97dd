package lender

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/lendsim/internal/loan"
	"github.com/odyssey-erp/lendsim/internal/num"
	"github.com/odyssey-erp/lendsim/internal/underwriting"
)

// ErrUnknownField indicates a result field without an accessor.
var ErrUnknownField = errors.New("lender: unknown result field")

// Field names a numeric column of loan.Result.
type Field string

const (
	FieldLenderProfit    Field = "lender_profit"
	FieldTotalCredit     Field = "total_credit"
	FieldTotalDebt       Field = "total_debt"
	FieldRepaid          Field = "repaid"
	FieldOutstandingDebt Field = "outstanding_debt"
	FieldLoss            Field = "loss"
	FieldCostOfCapital   Field = "cost_of_capital"
	FieldValuation       Field = "valuation"
	FieldAPR             Field = "apr"
	FieldRevenueCAGR     Field = "revenue_cagr"
	FieldInventoryCAGR   Field = "inventory_cagr"
	FieldNetCashflowCAGR Field = "net_cashflow_cagr"
	FieldValuationCAGR   Field = "valuation_cagr"
	FieldDebtToValuation Field = "debt_to_valuation"
	FieldBankruptcyRate  Field = "bankruptcy_rate"
)

var fields = map[Field]func(loan.Result) float64{
	FieldLenderProfit:    func(r loan.Result) float64 { return r.LenderProfit },
	FieldTotalCredit:     func(r loan.Result) float64 { return r.TotalCredit },
	FieldTotalDebt:       func(r loan.Result) float64 { return r.TotalDebt },
	FieldRepaid:          func(r loan.Result) float64 { return r.Repaid },
	FieldOutstandingDebt: func(r loan.Result) float64 { return r.OutstandingDebt },
	FieldLoss:            func(r loan.Result) float64 { return r.Loss },
	FieldCostOfCapital:   func(r loan.Result) float64 { return r.CostOfCapital },
	FieldValuation:       func(r loan.Result) float64 { return r.Valuation },
	FieldAPR:             func(r loan.Result) float64 { return r.APR },
	FieldRevenueCAGR:     func(r loan.Result) float64 { return r.RevenueCAGR },
	FieldInventoryCAGR:   func(r loan.Result) float64 { return r.InventoryCAGR },
	FieldNetCashflowCAGR: func(r loan.Result) float64 { return r.NetCashflowCAGR },
	FieldValuationCAGR:   func(r loan.Result) float64 { return r.ValuationCAGR },
	FieldDebtToValuation: func(r loan.Result) float64 { return r.DebtToValuation },
	FieldBankruptcyRate:  func(r loan.Result) float64 { return r.BankruptcyRate },
}

// Value reads the field from r.
func (f Field) Value(r loan.Result) (float64, error) {
	fn, ok := fields[f]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownField, f)
	}
	return fn(r), nil
}

// Weighting selects the per-merchant weight of ratio fields in an Aggregate.
type Weighting string

const (
	// WeightingTerminalValuation weights by valuation at the end of the run.
	// Bankrupt merchants end at zero and carry no weight.
	WeightingTerminalValuation Weighting = "terminal_valuation"
	// WeightingInitialValuation weights by valuation on the first day, so
	// merchants that fail still count.
	WeightingInitialValuation Weighting = "initial_valuation"
)

// Weights returns the weight of each result. An empty Weighting is
// WeightingTerminalValuation.
func (w Weighting) Weights(results []loan.Result) []float64 {
	weights := make([]float64, len(results))
	for i, r := range results {
		if w == WeightingInitialValuation {
			weights[i] = r.InitialValuation
		} else {
			weights[i] = r.Valuation
		}
	}
	return weights
}

// Aggregate is the cross-sectional reduction of a result set. Monetary
// totals are summed; ratios and rates are valuation-weighted.
type Aggregate struct {
	LenderProfit    float64
	TotalCredit     float64
	TotalDebt       float64
	Repaid          float64
	OutstandingDebt float64
	Loss            float64
	CostOfCapital   float64
	Valuation       float64

	APR             float64
	RevenueCAGR     float64
	InventoryCAGR   float64
	NetCashflowCAGR float64
	ValuationCAGR   float64
	DebtToValuation float64
	BankruptcyRate  float64
}

// AggregateResults sums the monetary fields exactly and valuation-weights the
// rest. Non-positive weights are skipped.
func AggregateResults(results []loan.Result, weighting Weighting) Aggregate {
	weights := weighting.Weights(results)
	sum := func(f Field) float64 {
		total := decimal.Zero
		for _, r := range results {
			total = total.Add(decimal.NewFromFloat(fields[f](r)))
		}
		return total.InexactFloat64()
	}
	weighted := func(f Field) float64 {
		values := make([]float64, len(results))
		for i, r := range results {
			values[i] = fields[f](r)
		}
		return num.WeightedAverage(values, weights)
	}
	return Aggregate{
		LenderProfit:    sum(FieldLenderProfit),
		TotalCredit:     sum(FieldTotalCredit),
		TotalDebt:       sum(FieldTotalDebt),
		Repaid:          sum(FieldRepaid),
		OutstandingDebt: sum(FieldOutstandingDebt),
		Loss:            sum(FieldLoss),
		CostOfCapital:   sum(FieldCostOfCapital),
		Valuation:       sum(FieldValuation),
		APR:             weighted(FieldAPR),
		RevenueCAGR:     weighted(FieldRevenueCAGR),
		InventoryCAGR:   weighted(FieldInventoryCAGR),
		NetCashflowCAGR: weighted(FieldNetCashflowCAGR),
		ValuationCAGR:   weighted(FieldValuationCAGR),
		DebtToValuation: weighted(FieldDebtToValuation),
		BankruptcyRate:  weighted(FieldBankruptcyRate),
	}
}

// Funded returns the results that drew at least one loan.
func Funded(results []loan.Result) []loan.Result {
	out := make([]loan.Result, 0, len(results))
	for _, r := range results {
		if r.Funded {
			out = append(out, r)
		}
	}
	return out
}

// CalculateSharpe is the excess APR of the funded portfolio over riskFree per
// unit of cross-merchant APR dispersion. Zero dispersion yields 0.
func CalculateSharpe(results []loan.Result, riskFree float64, weighting Weighting) float64 {
	funded := Funded(results)
	if len(funded) == 0 {
		return 0
	}
	aprs := make([]float64, len(funded))
	for i, r := range funded {
		aprs[i] = r.APR
	}
	std := num.StdDev(aprs)
	if num.IsZero(std) {
		return 0
	}
	return (AggregateResults(funded, weighting).APR - riskFree) / std
}

// CalculateCorrelation is the Pearson correlation, over the funded subset,
// between field and each predictor's initial underwriting score. Undefined
// correlations are reported as 0.
func CalculateCorrelation(results []loan.Result, field Field) (map[underwriting.Predictor]float64, error) {
	if _, ok := fields[field]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	funded := Funded(results)
	values := make([]float64, len(funded))
	for i, r := range funded {
		values[i] = fields[field](r)
	}
	out := make(map[underwriting.Predictor]float64, len(underwriting.Predictors()))
	for _, p := range underwriting.Predictors() {
		scores := make([]float64, len(funded))
		for i, r := range funded {
			scores[i] = r.InitialScores[p]
		}
		out[p] = num.Pearson(values, scores)
	}
	return out, nil
}

// Portfolio is the lender-level outcome of a run.
type Portfolio struct {
	Product   loan.Product
	Weighting Weighting
	Merchants int
	Funded    int
	Bankrupt  int
	Aggregate Aggregate
	Sharpe    float64
	// ProfitCorrelation and BankruptcyCorrelation relate outcomes of funded
	// merchants to their initial predictor scores.
	ProfitCorrelation     map[underwriting.Predictor]float64
	BankruptcyCorrelation map[underwriting.Predictor]float64
}

// NewPortfolio reduces results. It must only be called once every merchant
// simulation has finished.
func NewPortfolio(product loan.Product, results []loan.Result, riskFree float64, weighting Weighting) Portfolio {
	if weighting == "" {
		weighting = WeightingTerminalValuation
	}
	p := Portfolio{
		Product:   product,
		Weighting: weighting,
		Merchants: len(results),
		Aggregate: AggregateResults(results, weighting),
		Sharpe:    CalculateSharpe(results, riskFree, weighting),
	}
	for _, r := range results {
		if r.Funded {
			p.Funded++
		}
		if r.Bankrupt() {
			p.Bankrupt++
		}
	}
	p.ProfitCorrelation, _ = CalculateCorrelation(results, FieldLenderProfit)
	p.BankruptcyCorrelation, _ = CalculateCorrelation(results, FieldBankruptcyRate)
	return p
}

// Figures flattens the headline numbers for metrics export.
func (p Portfolio) Figures() map[string]float64 {
	return map[string]float64{
		"merchants":       float64(p.Merchants),
		"funded":          float64(p.Funded),
		"bankrupt":        float64(p.Bankrupt),
		"lender_profit":   p.Aggregate.LenderProfit,
		"total_credit":    p.Aggregate.TotalCredit,
		"loss":            p.Aggregate.Loss,
		"apr":             p.Aggregate.APR,
		"revenue_cagr":    p.Aggregate.RevenueCAGR,
		"bankruptcy_rate": p.Aggregate.BankruptcyRate,
		"sharpe":          p.Sharpe,
	}
}
