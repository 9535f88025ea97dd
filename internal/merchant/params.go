package merchant

import (
	"errors"
	"math"
)

const (
	// Year is the number of simulated days in a year.
	Year = 365
	// StartDate is the first simulated day.
	StartDate = 1
	// MarketplaceCommission is the share of gross sales kept by the marketplace.
	MarketplaceCommission = 0.15
	// AccountSuspensionDuration is the number of days revenue is frozen after a suspension.
	AccountSuspensionDuration = 60
)

// SuspensionTrigger selects which triggering day becomes the suspension start.
type SuspensionTrigger string

const (
	// SuspensionTriggerLatest keeps the last day of the first year whose draw
	// fired. The scan overwrites on every hit.
	SuspensionTriggerLatest SuspensionTrigger = "latest"
	// SuspensionTriggerFirst keeps the earliest firing day.
	SuspensionTriggerFirst SuspensionTrigger = "first"
)

// ErrNoInventories indicates a merchant was assembled without products.
var ErrNoInventories = errors.New("merchant: at least one inventory required")

// Params configures merchant generation. Medians are the centre of the
// lognormal-like ratio draws; the matching *Std fields are their volatility.
type Params struct {
	HorizonDays int

	MedianAnnualTopLine float64
	AnnualTopLineStd    float64
	MinProducts         int
	MaxProducts         int
	InitialCashRatio    float64
	InitialCashRatioStd float64

	MedianPrice      float64
	PriceStd         float64
	MedianCOGSMargin float64
	COGSMarginStd    float64
	CostVolatility   float64

	MedianManufacturingDays float64
	ManufacturingDaysStd    float64
	MedianShippingDays      float64
	ShippingDaysStd         float64

	MinPurchaseOrderValue     float64
	MinPurchaseOrderSize      int
	VolumeDiscount            float64
	UpfrontPurchaseOrderRatio float64

	MedianInventoryTurnover float64
	InventoryTurnoverStd    float64
	MedianOutOfStockRate    float64
	OutOfStockRateStd       float64
	MaxOutOfStockRate       float64
	MedianROAS              float64
	ROASStd                 float64
	MedianOrganicRate       float64
	OrganicRateStd          float64
	MedianGrowthRate        float64
	GrowthRateStd           float64
	SGNARate                float64

	AccountSuspensionChance float64
	SuspensionTrigger       SuspensionTrigger

	AnnualDiscountRate              float64
	IncludePendingOrdersInValuation bool
}

// DefaultParams returns the baseline e-commerce merchant profile.
func DefaultParams() Params {
	return Params{
		HorizonDays:               Year,
		MedianAnnualTopLine:       250000,
		AnnualTopLineStd:          0.5,
		MinProducts:               1,
		MaxProducts:               5,
		InitialCashRatio:          0.03,
		InitialCashRatioStd:       0.6,
		MedianPrice:               25,
		PriceStd:                  0.3,
		MedianCOGSMargin:          0.3,
		COGSMarginStd:             0.2,
		CostVolatility:            0.05,
		MedianManufacturingDays:   30,
		ManufacturingDaysStd:      7,
		MedianShippingDays:        20,
		ShippingDaysStd:           5,
		MinPurchaseOrderValue:     2000,
		MinPurchaseOrderSize:      50,
		VolumeDiscount:            0.05,
		UpfrontPurchaseOrderRatio: 0.3,
		MedianInventoryTurnover:   6,
		InventoryTurnoverStd:      0.2,
		MedianOutOfStockRate:      0.1,
		OutOfStockRateStd:         0.3,
		MaxOutOfStockRate:         0.9,
		MedianROAS:                4,
		ROASStd:                   0.2,
		MedianOrganicRate:         0.2,
		OrganicRateStd:            0.2,
		MedianGrowthRate:          0,
		GrowthRateStd:             0.1,
		SGNARate:                  0.1,
		AccountSuspensionChance:   0.0005,
		SuspensionTrigger:         SuspensionTriggerLatest,
		AnnualDiscountRate:        0.2,
	}
}

// EndDate is the last simulated day of the horizon.
func (p Params) EndDate() int {
	return StartDate + p.HorizonDays - 1
}

// DailyDiscountFactor converts the annual discount rate into a per-day NPV factor.
func (p Params) DailyDiscountFactor() float64 {
	return math.Pow(1/(1+p.AnnualDiscountRate), 1.0/Year)
}

// RevenueMargin is the share of gross sales paid out by the marketplace.
func RevenueMargin() float64 {
	return 1 - MarketplaceCommission
}
