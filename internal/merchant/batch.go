package merchant

import (
	"math"

	"github.com/odyssey-erp/lendsim/internal/num"
	"github.com/odyssey-erp/lendsim/internal/random"
)

const (
	// minInventoryTurnover caps an epoch at two years.
	minInventoryTurnover = 0.5
	// priceConvergence stops the volume-discount fixed point once the quoted
	// unit price moves less than this fraction between iterations.
	priceConvergence   = 0.05
	maxPriceIterations = 20
)

// Batch is one inventory epoch of a product: the stock on hand at StartDate
// is sold at a constant velocity until it runs out, and a purchase order for
// the next epoch is issued lead-time days before LastDate.
type Batch struct {
	ID      int
	Product *Product

	StartDate int
	Duration  int
	// Stock is the quantity on hand at StartDate.
	Stock int
	// PlannedStock is the demand of the epoch when fully funded. Sales
	// velocity derives from it, so an underfunded batch sells out early.
	PlannedStock int

	OutOfStockRate         float64
	InventoryTurnoverRatio float64
	ROAS                   float64
	OrganicRate            float64
	GrowthRate             float64
	SGNARate               float64
	UpfrontRatio           float64

	PurchaseOrder *PurchaseOrder
	Next          *Batch

	rng          *random.Generator
	orderHandled bool
}

// GenerateBatch draws a batch. The first batch of an inventory (previous nil)
// is centred on the medians and stocked to deliver annualTopLine; later
// batches perturb their predecessor's parameters and start empty until a
// purchase order fills them.
func GenerateBatch(ids *IDAllocator, rng *random.Generator, product *Product, p Params, previous *Batch, annualTopLine float64) *Batch {
	b := &Batch{
		ID:           ids.Next("batch"),
		Product:      product,
		SGNARate:     p.SGNARate,
		UpfrontRatio: p.UpfrontPurchaseOrderRatio,
		rng:          rng,
	}
	maxTurnover := float64(Year) / float64(max(product.LeadTime(), 1))
	minTurnover := math.Min(minInventoryTurnover, maxTurnover)
	if previous == nil {
		b.StartDate = StartDate
		b.InventoryTurnoverRatio = num.Clip(p.MedianInventoryTurnover*rng.Ratio(p.InventoryTurnoverStd), minTurnover, maxTurnover)
		b.OutOfStockRate = num.Clip(p.MedianOutOfStockRate*rng.Ratio(p.OutOfStockRateStd), 0, p.MaxOutOfStockRate)
		b.ROAS = p.MedianROAS * rng.Ratio(p.ROASStd)
		b.OrganicRate = num.Clip(p.MedianOrganicRate*rng.Ratio(p.OrganicRateStd), 0, 1)
		b.GrowthRate = rng.Normal(p.MedianGrowthRate, p.GrowthRateStd)
		b.Duration = epochDuration(b.InventoryTurnoverRatio)
		if denom := b.InventoryTurnoverRatio * product.Price; denom > 0 {
			b.Stock = int(math.Round(annualTopLine / denom))
		}
		b.PlannedStock = b.Stock
		return b
	}
	b.StartDate = previous.LastDate() + 1
	b.InventoryTurnoverRatio = num.Clip(previous.InventoryTurnoverRatio*rng.Ratio(p.InventoryTurnoverStd), minTurnover, maxTurnover)
	b.OutOfStockRate = num.Clip(previous.OutOfStockRate*rng.Ratio(p.OutOfStockRateStd), 0, p.MaxOutOfStockRate)
	b.ROAS = previous.ROAS * rng.Ratio(p.ROASStd)
	b.OrganicRate = num.Clip(previous.OrganicRate*rng.Ratio(p.OrganicRateStd), 0, 1)
	b.GrowthRate = previous.GrowthRate * rng.Ratio(p.GrowthRateStd)
	b.Duration = epochDuration(b.InventoryTurnoverRatio)
	growth := math.Pow(1+previous.GrowthRate, float64(previous.Duration)/Year)
	b.PlannedStock = int(math.Round(float64(previous.PlannedStock) * growth * float64(b.Duration) / float64(previous.Duration)))
	previous.Next = b
	return b
}

func epochDuration(turnover float64) int {
	if turnover <= 0 {
		return Year
	}
	return num.Ceil(Year / turnover)
}

// LastDate is the final day of the epoch.
func (b *Batch) LastDate() int {
	return b.StartDate + b.Duration - 1
}

// Contains reports whether day falls within the epoch.
func (b *Batch) Contains(day int) bool {
	return day >= b.StartDate && day <= b.LastDate()
}

// SalesVelocity is units sold per in-stock day.
func (b *Batch) SalesVelocity() float64 {
	inStockDays := float64(b.Duration) * (1 - b.OutOfStockRate)
	if inStockDays <= 0 {
		return 0
	}
	return float64(b.PlannedStock) / inStockDays
}

// DurationInStock is the number of days the batch's stock lasts.
func (b *Batch) DurationInStock() int {
	velocity := b.SalesVelocity()
	if velocity == 0 {
		if b.Stock > 0 {
			return b.Duration
		}
		return 0
	}
	return num.ClipInt(num.Ceil(float64(b.Stock)/velocity), 0, b.Duration)
}

// IsOutOfStock reports whether the stock has sold out by day.
func (b *Batch) IsOutOfStock(day int) bool {
	return day-b.StartDate >= b.DurationInStock()
}

// RemainingStock is the unsold quantity at the start of day.
func (b *Batch) RemainingStock(day int) float64 {
	sold := b.SalesVelocity() * float64(max(day-b.StartDate, 0))
	return math.Max(float64(b.Stock)-sold, 0)
}

// MarketingMargin is the advertising cost per unit of revenue.
func (b *Batch) MarketingMargin() float64 {
	if b.ROAS <= 0 {
		return RevenueMargin()
	}
	price := b.Product.Price
	return (price / b.ROAS) * (1 - b.OrganicRate) / price
}

// GPMargin is the share of gross sales left after commission, marketing and SG&A.
func (b *Batch) GPMargin() float64 {
	return math.Max(0, RevenueMargin()-b.MarketingMargin()-b.SGNARate)
}

// ProfitMargin deducts cost of goods from GPMargin. It can be negative.
func (b *Batch) ProfitMargin() float64 {
	return b.GPMargin() - b.Product.COGSMargin
}

// RevenuePerDay is marketplace revenue net of commission.
func (b *Batch) RevenuePerDay(day int) float64 {
	return b.salesPerDay(day) * RevenueMargin()
}

// GrossProfitPerDay is the cash contribution of sales before inventory cost.
func (b *Batch) GrossProfitPerDay(day int) float64 {
	return b.salesPerDay(day) * b.GPMargin()
}

// ProfitPerDay is GrossProfitPerDay minus the cost of goods sold.
func (b *Batch) ProfitPerDay(day int) float64 {
	return b.salesPerDay(day) * b.ProfitMargin()
}

func (b *Batch) salesPerDay(day int) float64 {
	if b.IsOutOfStock(day) {
		return 0
	}
	return b.SalesVelocity() * b.Product.Price
}

// AnnualTopLine is the yearly gross sales implied by the epoch.
func (b *Batch) AnnualTopLine() float64 {
	return b.InventoryTurnoverRatio * float64(b.Stock) * b.Product.Price
}

// PurchaseOrderDate is the reorder point: one lead time before the next epoch.
func (b *Batch) PurchaseOrderDate() int {
	return max(b.StartDate, b.LastDate()+1-b.Product.LeadTime())
}

// DesiredOrderStock is the quantity the next epoch needs on top of any leftover.
func (b *Batch) DesiredOrderStock() int {
	if b.Next == nil {
		return 0
	}
	leftover := int(math.Floor(b.RemainingStock(b.LastDate() + 1)))
	return max(b.Next.PlannedStock-leftover, 0)
}

// ExpectedOrderCost is the list cost of a fully funded reorder.
func (b *Batch) ExpectedOrderCost() float64 {
	desired := float64(b.DesiredOrderStock())
	return desired * b.Product.UnitCost(desired)
}

// OrderPending reports whether the reorder point is still ahead.
func (b *Batch) OrderPending() bool {
	return !b.orderHandled && b.Next != nil
}

// InitiatePurchaseOrder sizes the largest affordable order given cash for
// the upfront installment. Orders below the product minimum are not placed.
// The ordered stock, plus leftover, is handed to the next batch.
func (b *Batch) InitiatePurchaseOrder(cash float64) *PurchaseOrder {
	if b.orderHandled {
		return b.PurchaseOrder
	}
	b.orderHandled = true
	if b.Next == nil {
		return nil
	}
	leftover := int(math.Floor(b.RemainingStock(b.LastDate() + 1)))
	b.Next.Stock = leftover

	desired := float64(b.DesiredOrderStock())
	if desired <= 0 || cash <= 0 || b.UpfrontRatio <= 0 {
		return nil
	}
	budget := cash / b.UpfrontRatio
	volatility := b.rng.Ratio(b.Product.CostVolatility)
	unit := b.Product.UnitCost(desired) * volatility
	if unit <= 0 {
		return nil
	}
	for i := 0; i < maxPriceIterations; i++ {
		size := math.Min(desired, math.Floor(budget/unit))
		next := b.Product.UnitCost(size) * volatility
		change := math.Abs(next-unit) / unit
		unit = next
		if change < priceConvergence {
			break
		}
	}
	size := int(math.Min(desired, math.Floor(budget/unit)))
	if size < b.Product.MinPurchaseOrderSize {
		return nil
	}
	b.PurchaseOrder = newPurchaseOrder(b.ID, size, unit, b.UpfrontRatio, b.PurchaseOrderDate(), b.Product)
	b.Next.Stock = leftover + size
	return b.PurchaseOrder
}

// InventoryCost is the cash paid for inventory on day: the upfront
// installment on the reorder date and the remainder when manufacturing ends.
func (b *Batch) InventoryCost(day int, cash float64) float64 {
	if day == b.PurchaseOrderDate() && !b.orderHandled {
		if po := b.InitiatePurchaseOrder(cash); po != nil {
			return po.UpfrontCost
		}
		return 0
	}
	po := b.PurchaseOrder
	if po != nil && !po.Settled && day == po.ManufacturingDate {
		po.Settled = true
		return po.PostManufacturingCost
	}
	return 0
}

// CommittedCost is the unpaid part of an issued purchase order.
func (b *Batch) CommittedCost(day int) float64 {
	return b.PurchaseOrder.Outstanding(day)
}
