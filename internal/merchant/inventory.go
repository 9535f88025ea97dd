package merchant

import (
	"math"

	"github.com/odyssey-erp/lendsim/internal/random"
)

// Inventory is the ordered sequence of batches of one product. Batches are
// never removed so historical epochs stay available for valuation.
type Inventory struct {
	ID      int
	Product *Product
	Batches []*Batch

	discountFactor float64
	includePending bool
}

// GenerateInventory builds batches until one starts after the horizon, so
// every in-horizon batch has a successor to reorder for.
func GenerateInventory(ids *IDAllocator, rng *random.Generator, p Params, annualTopLine float64) *Inventory {
	product := GenerateProduct(ids, rng, p)
	inv := &Inventory{
		ID:             ids.Next("inventory"),
		Product:        product,
		discountFactor: p.DailyDiscountFactor(),
		includePending: p.IncludePendingOrdersInValuation,
	}
	batch := GenerateBatch(ids, rng, product, p, nil, annualTopLine)
	inv.Batches = append(inv.Batches, batch)
	for batch.StartDate <= p.EndDate() {
		batch = GenerateBatch(ids, rng, product, p, batch, 0)
		inv.Batches = append(inv.Batches, batch)
	}
	return inv
}

// NewInventory assembles an inventory from prepared batches, linking each to
// its successor.
func NewInventory(id int, product *Product, batches []*Batch, discountFactor float64, includePending bool) *Inventory {
	for i := 0; i+1 < len(batches); i++ {
		batches[i].Next = batches[i+1]
	}
	return &Inventory{
		ID:             id,
		Product:        product,
		Batches:        batches,
		discountFactor: discountFactor,
		includePending: includePending,
	}
}

// BatchAt returns the batch whose epoch contains day, or nil.
func (inv *Inventory) BatchAt(day int) *Batch {
	for _, b := range inv.Batches {
		if b.Contains(day) {
			return b
		}
	}
	return nil
}

// AnnualTopLine is the yearly gross sales of the batch active on day.
func (inv *Inventory) AnnualTopLine(day int) float64 {
	if b := inv.BatchAt(day); b != nil {
		return b.AnnualTopLine()
	}
	return 0
}

// DiscountedInventoryValue spreads stockValue evenly over durationToSell
// days, discounts each daily tranche and then discounts the whole stream
// by the remaining lead time.
func (inv *Inventory) DiscountedInventoryValue(stockValue float64, durationToSell, remainingLeadTime int) float64 {
	return DiscountedValue(stockValue, durationToSell, remainingLeadTime, inv.discountFactor)
}

// DiscountedValue computes Σ_{i<d} (v/d)·r^i · r^lead.
func DiscountedValue(stockValue float64, durationToSell, remainingLeadTime int, r float64) float64 {
	lead := math.Pow(r, float64(max(remainingLeadTime, 0)))
	if durationToSell <= 0 {
		return stockValue * lead
	}
	perDay := stockValue / float64(durationToSell)
	var total float64
	factor := 1.0
	for i := 0; i < durationToSell; i++ {
		total += perDay * factor
		factor *= r
	}
	return total * lead
}

// Valuation is the discounted cost value of stock on hand on day plus,
// when enabled, the incoming purchase order.
func (inv *Inventory) Valuation(day int) float64 {
	b := inv.BatchAt(day)
	if b == nil {
		return 0
	}
	remaining := b.RemainingStock(day)
	sellDays := max(b.DurationInStock()-(day-b.StartDate), 0)
	value := inv.DiscountedInventoryValue(remaining*b.Product.Cost, sellDays, 0)
	if inv.includePending && b.PurchaseOrder != nil && b.Next != nil {
		po := b.PurchaseOrder
		value += inv.DiscountedInventoryValue(float64(po.Stock)*po.UnitCost, b.Next.DurationInStock(), po.ArrivalDate-day)
	}
	return value
}

// InventoryCost forwards to the active batch.
func (inv *Inventory) InventoryCost(day int, cash float64) float64 {
	if b := inv.BatchAt(day); b != nil {
		return b.InventoryCost(day, cash)
	}
	return 0
}

// CommittedCost is the unpaid remainder of the active batch's purchase order.
func (inv *Inventory) CommittedCost(day int) float64 {
	if b := inv.BatchAt(day); b != nil {
		return b.CommittedCost(day)
	}
	return 0
}

// ProjectedOrderCost sums the expected cost of reorders falling in
// [day, day+window] that have not been placed yet.
func (inv *Inventory) ProjectedOrderCost(day, window int) float64 {
	var total float64
	for _, b := range inv.Batches {
		if b.StartDate > day+window {
			break
		}
		po := b.PurchaseOrderDate()
		if b.OrderPending() && po >= day && po <= day+window {
			total += b.ExpectedOrderCost()
		}
	}
	return total
}
