package underwriting

// Predictor names a merchant observable used for risk scoring.
type Predictor string

const (
	PredictorOrganicRate       Predictor = "organic_rate"
	PredictorROAS              Predictor = "roas"
	PredictorOutOfStockRate    Predictor = "out_of_stock_rate"
	PredictorInventoryTurnover Predictor = "inventory_turnover_ratio"
	PredictorProfitMargin      Predictor = "profit_margin"
)

// Observable is the merchant surface read by the scorer.
type Observable interface {
	OrganicRate(day int) float64
	ROAS(day int) float64
	OutOfStockRate(day int) float64
	InventoryTurnoverRatio(day int) float64
	ProfitMargin(day int) float64
}

// accessors maps each predictor to the observable it reads.
var accessors = map[Predictor]func(Observable, int) float64{
	PredictorOrganicRate:       Observable.OrganicRate,
	PredictorROAS:              Observable.ROAS,
	PredictorOutOfStockRate:    Observable.OutOfStockRate,
	PredictorInventoryTurnover: Observable.InventoryTurnoverRatio,
	PredictorProfitMargin:      Observable.ProfitMargin,
}

// Predictors lists every supported predictor in scoring order.
func Predictors() []Predictor {
	return []Predictor{
		PredictorOrganicRate,
		PredictorROAS,
		PredictorOutOfStockRate,
		PredictorInventoryTurnover,
		PredictorProfitMargin,
	}
}

// PredictorConfig configures one risk predictor.
type PredictorConfig struct {
	Name           Predictor
	HigherIsBetter bool
	Weight         float64
	Threshold      float64
	Benchmark      float64
}

// Config is the lender's underwriting policy.
type Config struct {
	Predictors        []PredictorConfig
	BenchmarkFactor   float64
	MinAggregateScore float64
	RescoreDaily      bool
}

// DefaultConfig returns benchmarks centred on a healthy e-commerce seller.
func DefaultConfig() Config {
	return Config{
		Predictors: []PredictorConfig{
			{Name: PredictorOrganicRate, HigherIsBetter: true, Weight: 1, Threshold: 0.2, Benchmark: 0.2},
			{Name: PredictorROAS, HigherIsBetter: true, Weight: 1, Threshold: 0.2, Benchmark: 4},
			{Name: PredictorOutOfStockRate, HigherIsBetter: false, Weight: 1, Threshold: 0.2, Benchmark: 0.1},
			{Name: PredictorInventoryTurnover, HigherIsBetter: true, Weight: 1, Threshold: 0.2, Benchmark: 4},
			{Name: PredictorProfitMargin, HigherIsBetter: true, Weight: 2, Threshold: 0.2, Benchmark: 0.1},
		},
		BenchmarkFactor:   1,
		MinAggregateScore: 0.95,
	}
}
