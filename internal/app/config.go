package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	jobmetrics "github.com/odyssey-erp/lendsim/internal/jobs"
	"github.com/odyssey-erp/lendsim/internal/lender"
	"github.com/odyssey-erp/lendsim/internal/loan"
	"github.com/odyssey-erp/lendsim/internal/merchant"
	"github.com/odyssey-erp/lendsim/internal/underwriting"
)

// Config holds runtime configuration for a simulation run. Values come from
// the environment and may be overlaid by a YAML scenario file.
type Config struct {
	AppEnv string `envconfig:"APP_ENV" default:"development" yaml:"-" validate:"oneof=development test production"`

	StatusAddr           string        `envconfig:"STATUS_ADDR" default:"" yaml:"-"`
	StatusReadTimeout    time.Duration `envconfig:"STATUS_READ_TIMEOUT" default:"5s" yaml:"-"`
	StatusWriteTimeout   time.Duration `envconfig:"STATUS_WRITE_TIMEOUT" default:"10s" yaml:"-"`
	StatusRequestTimeout time.Duration `envconfig:"STATUS_REQUEST_TIMEOUT" default:"10s" yaml:"-"`

	LogFormat    string `envconfig:"LOG_FORMAT" default:"pretty" yaml:"-" validate:"oneof=pretty json"`
	ScenarioFile string `envconfig:"SCENARIO_FILE" default:"" yaml:"-"`

	Merchants     int    `envconfig:"SIM_MERCHANTS" default:"100" yaml:"merchants" validate:"gte=1"`
	Seed          uint64 `envconfig:"SIM_SEED" default:"1" yaml:"seed"`
	Deterministic bool   `envconfig:"SIM_DETERMINISTIC" default:"false" yaml:"deterministic"`
	Workers       int    `envconfig:"SIM_WORKERS" default:"0" yaml:"workers" validate:"gte=0"`
	HorizonDays   int    `envconfig:"SIM_HORIZON_DAYS" default:"365" yaml:"horizon_days" validate:"gte=1"`

	InitialCashRatio     float64 `envconfig:"MERCHANT_INITIAL_CASH_RATIO" default:"0.03" yaml:"initial_cash_ratio" validate:"gte=0"`
	InitialCashRatioStd  float64 `envconfig:"MERCHANT_INITIAL_CASH_RATIO_STD" default:"0.6" yaml:"initial_cash_ratio_std" validate:"gte=0"`
	SuspensionChance     float64 `envconfig:"MERCHANT_SUSPENSION_CHANCE" default:"0.0005" yaml:"suspension_chance" validate:"gte=0,lte=1"`
	SuspensionTrigger    string  `envconfig:"MERCHANT_SUSPENSION_TRIGGER" default:"latest" yaml:"suspension_trigger" validate:"oneof=latest first"`
	ValuePendingOrders   bool    `envconfig:"MERCHANT_VALUE_PENDING_ORDERS" default:"false" yaml:"value_pending_orders"`
	AnnualDiscountRate   float64 `envconfig:"MERCHANT_ANNUAL_DISCOUNT_RATE" default:"0.2" yaml:"annual_discount_rate" validate:"gte=0"`
	MedianAnnualTopLine  float64 `envconfig:"MERCHANT_MEDIAN_ANNUAL_TOP_LINE" default:"250000" yaml:"median_annual_top_line" validate:"gt=0"`
	MerchantMaxProducts  int     `envconfig:"MERCHANT_MAX_PRODUCTS" default:"5" yaml:"max_products" validate:"gte=1"`
	MerchantGrowthStdDev float64 `envconfig:"MERCHANT_GROWTH_STD" default:"0.1" yaml:"growth_std" validate:"gte=0"`

	Product                    string  `envconfig:"LOAN_PRODUCT" default:"flat_fee" yaml:"product" validate:"oneof=no_capital flat_fee increasing_rebate line_of_credit dynamic_line_of_credit"`
	Interest                   float64 `envconfig:"LOAN_INTEREST" default:"0.12" yaml:"interest" validate:"gte=0"`
	DurationDays               int     `envconfig:"LOAN_DURATION_DAYS" default:"180" yaml:"duration_days" validate:"gt=0"`
	LoanAmountPerMonthlyIncome float64 `envconfig:"LOAN_AMOUNT_PER_MONTHLY_INCOME" default:"1" yaml:"amount_per_monthly_income" validate:"gt=0"`
	RepaymentRateDefault       float64 `envconfig:"REPAYMENT_RATE_DEFAULT" default:"0.3" yaml:"repayment_rate_default" validate:"gt=0,lte=1,gtefield=RepaymentRateMin,ltefield=RepaymentRateMax"`
	RepaymentRateMin           float64 `envconfig:"REPAYMENT_RATE_MIN" default:"0.1" yaml:"repayment_rate_min" validate:"gt=0,lte=1"`
	RepaymentRateMax           float64 `envconfig:"REPAYMENT_RATE_MAX" default:"0.5" yaml:"repayment_rate_max" validate:"gt=0,lte=1"`
	RevenueCollateralization   bool    `envconfig:"REVENUE_COLLATERALIZATION" default:"false" yaml:"revenue_collateralization"`
	CostOfCapital              float64 `envconfig:"COST_OF_CAPITAL" default:"0.08" yaml:"cost_of_capital" validate:"gte=0"`
	CustomerAcquisitionCost    float64 `envconfig:"CUSTOMER_ACQUISITION_COST" default:"300" yaml:"customer_acquisition_cost" validate:"gte=0"`
	RiskFreeRate               float64 `envconfig:"RISK_FREE_RATE" default:"0.04" yaml:"risk_free_rate" validate:"gte=0"`
	ProfitModel                string  `envconfig:"LOAN_PROFIT_MODEL" default:"repaid_apr" yaml:"profit_model" validate:"oneof=repaid_apr fee_yield"`
	PortfolioWeighting         string  `envconfig:"PORTFOLIO_WEIGHTING" default:"terminal_valuation" yaml:"portfolio_weighting" validate:"oneof=terminal_valuation initial_valuation"`

	MinAggregateScore float64 `envconfig:"MIN_AGGREGATE_SCORE" default:"0.95" yaml:"min_aggregate_score" validate:"gte=0,lte=1"`
	BenchmarkFactor   float64 `envconfig:"BENCHMARK_FACTOR" default:"1" yaml:"benchmark_factor" validate:"gt=0"`
	RescoreDaily      bool    `envconfig:"UNDERWRITING_RESCORE_DAILY" default:"false" yaml:"rescore_daily"`
}

// LoadConfig reads configuration from environment variables, applies the
// scenario file when one is configured and validates the result.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.ScenarioFile != "" {
		if err := cfg.ApplyScenario(cfg.ScenarioFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyScenario overlays the keys present in a YAML scenario file. Keys the
// file omits keep their current value.
func (c *Config) ApplyScenario(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scenario %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return nil
}

var validate = validator.New()

// Validate checks the configuration bounds.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %s=%s (value %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// MerchantParams derives the population generator parameters.
func (c *Config) MerchantParams() merchant.Params {
	p := merchant.DefaultParams()
	p.HorizonDays = c.HorizonDays
	p.InitialCashRatio = c.InitialCashRatio
	p.InitialCashRatioStd = c.InitialCashRatioStd
	p.AccountSuspensionChance = c.SuspensionChance
	p.SuspensionTrigger = merchant.SuspensionTrigger(c.SuspensionTrigger)
	p.IncludePendingOrdersInValuation = c.ValuePendingOrders
	p.AnnualDiscountRate = c.AnnualDiscountRate
	p.MedianAnnualTopLine = c.MedianAnnualTopLine
	p.MaxProducts = max(c.MerchantMaxProducts, p.MinProducts)
	p.GrowthRateStd = c.MerchantGrowthStdDev
	return p
}

// LoanConfig derives the loan terms and underwriting policy.
func (c *Config) LoanConfig() loan.Config {
	cfg := loan.DefaultConfig()
	cfg.HorizonDays = c.HorizonDays
	cfg.Terms.Product = loan.Product(c.Product)
	cfg.Terms.Interest = c.Interest
	cfg.Terms.DurationDays = c.DurationDays
	cfg.Terms.LoanAmountPerMonthlyIncome = c.LoanAmountPerMonthlyIncome
	cfg.Terms.DefaultRepaymentRate = c.RepaymentRateDefault
	cfg.Terms.MinRepaymentRate = c.RepaymentRateMin
	cfg.Terms.MaxRepaymentRate = c.RepaymentRateMax
	cfg.Terms.RevenueCollateralization = c.RevenueCollateralization
	cfg.Terms.CostOfCapital = c.CostOfCapital
	cfg.Terms.CustomerAcquisitionCost = c.CustomerAcquisitionCost
	cfg.Terms.ProfitModel = loan.ProfitModel(c.ProfitModel)
	cfg.Underwriting = c.UnderwritingConfig()
	return cfg
}

// UnderwritingConfig derives the underwriting policy from the defaults.
func (c *Config) UnderwritingConfig() underwriting.Config {
	cfg := underwriting.DefaultConfig()
	cfg.BenchmarkFactor = c.BenchmarkFactor
	cfg.MinAggregateScore = c.MinAggregateScore
	cfg.RescoreDaily = c.RescoreDaily
	return cfg
}

// LenderOptions derives the lender run options.
func (c *Config) LenderOptions(logger *slog.Logger, metrics *jobmetrics.Metrics, progress func(done, total int)) lender.Options {
	return lender.Options{
		Workers:      c.Workers,
		Product:      loan.Product(c.Product),
		Config:       c.LoanConfig(),
		RiskFreeRate: c.RiskFreeRate,
		Weighting:    lender.Weighting(c.PortfolioWeighting),
		Progress:     progress,
		Logger:       logger,
		Metrics:      metrics,
	}
}
