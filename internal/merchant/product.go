package merchant

import (
	"math"

	"github.com/odyssey-erp/lendsim/internal/num"
	"github.com/odyssey-erp/lendsim/internal/random"
)

// minUnitCostFraction floors volume-discounted unit cost relative to list cost.
const minUnitCostFraction = 0.5

// Product holds the static economics of one merchant product. It is shared
// by every Batch of its Inventory and never mutated after generation.
type Product struct {
	ID                    int
	Price                 float64
	Cost                  float64
	COGSMargin            float64
	MinPurchaseOrderSize  int
	ManufacturingDuration int
	ShippingDuration      int
	CostVolatility        float64
	VolumeDiscount        float64
}

// GenerateProduct draws a product around the configured medians.
func GenerateProduct(ids *IDAllocator, rng *random.Generator, p Params) *Product {
	price := p.MedianPrice * rng.Ratio(p.PriceStd)
	cogs := num.Clip(p.MedianCOGSMargin*rng.Ratio(p.COGSMarginStd), 0.05, 0.9)
	manufacturing := int(math.Round(rng.NormalBounded(p.MedianManufacturingDays, p.ManufacturingDaysStd, 1, 3*p.MedianManufacturingDays)))
	shipping := int(math.Round(rng.NormalBounded(p.MedianShippingDays, p.ShippingDaysStd, 1, 3*p.MedianShippingDays)))
	product := &Product{
		ID:                    ids.Next("product"),
		Price:                 price,
		Cost:                  price * cogs,
		COGSMargin:            cogs,
		ManufacturingDuration: max(manufacturing, 1),
		ShippingDuration:      max(shipping, 1),
		CostVolatility:        p.CostVolatility,
		VolumeDiscount:        p.VolumeDiscount,
	}
	product.MinPurchaseOrderSize = product.minimumOrderSize(p)
	return product
}

// minimumOrderSize converts the minimum PO value into units of margin, never
// below the lead time or the global minimum.
func (p *Product) minimumOrderSize(params Params) int {
	size := params.MinPurchaseOrderSize
	if margin := p.Price - p.Cost; margin > 0 {
		size = max(size, num.Ceil(params.MinPurchaseOrderValue/margin))
	}
	return max(size, p.LeadTime())
}

// LeadTime is manufacturing plus shipping in days.
func (p *Product) LeadTime() int {
	return p.ManufacturingDuration + p.ShippingDuration
}

// UnitCost is the volume-discounted cost per unit for an order of size units.
// Orders at or below the minimum pay list cost; each doubling above it
// shaves roughly VolumeDiscount off.
func (p *Product) UnitCost(size float64) float64 {
	minSize := float64(max(p.MinPurchaseOrderSize, 1))
	if size <= minSize || p.VolumeDiscount <= 0 {
		return p.Cost
	}
	discounted := p.Cost * math.Pow(size/minSize, math.Log2(1-p.VolumeDiscount))
	return math.Max(discounted, p.Cost*minUnitCostFraction)
}

// GrossMargin is the per-unit margin before marketplace and marketing costs.
func (p *Product) GrossMargin() float64 {
	return p.Price - p.Cost
}
