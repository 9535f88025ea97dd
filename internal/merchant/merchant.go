package merchant

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/odyssey-erp/lendsim/internal/num"
	"github.com/odyssey-erp/lendsim/internal/random"
)

// populationNamespace scopes the deterministic merchant references.
var populationNamespace = uuid.MustParse("5b1e4a52-6f0c-4b8e-9f57-2a1d3c7e9b10")

// Merchant aggregates the inventories of one seller. Membership is fixed at
// construction; the suspension window is the only derived state.
type Merchant struct {
	ID                      int
	Ref                     uuid.UUID
	Inventories             []*Inventory
	AccountSuspensionChance float64
	SuspensionStart         int
	InitialCashRatio        float64
}

// New assembles a merchant and samples its suspension start over the first
// year using rng.
func New(id int, inventories []*Inventory, rng *random.Generator, p Params) (*Merchant, error) {
	if len(inventories) == 0 {
		return nil, ErrNoInventories
	}
	m := &Merchant{
		ID:                      id,
		Inventories:             inventories,
		AccountSuspensionChance: p.AccountSuspensionChance,
		InitialCashRatio:        p.InitialCashRatio,
	}
	m.SuspensionStart = sampleSuspensionStart(rng, p.AccountSuspensionChance, p.SuspensionTrigger)
	return m, nil
}

// sampleSuspensionStart tests every day of the first year against chance.
// With SuspensionTriggerLatest every hit overwrites the previous one, so the
// last firing day wins; SuspensionTriggerFirst stops at the earliest.
func sampleSuspensionStart(rng *random.Generator, chance float64, trigger SuspensionTrigger) int {
	start := 0
	for day := StartDate; day < StartDate+Year; day++ {
		if rng.Random() < chance {
			start = day
			if trigger == SuspensionTriggerFirst {
				break
			}
		}
	}
	return start
}

// Generate draws a merchant: an annual top line split across a random number
// of products, and a starting cash ratio spread around the median.
func Generate(ids *IDAllocator, rng *random.Generator, p Params) (*Merchant, error) {
	topLine := p.MedianAnnualTopLine * rng.Ratio(p.AnnualTopLineStd)
	count := int(math.Round(rng.Uniform(float64(p.MinProducts), float64(p.MaxProducts))))
	count = max(count, 1)
	weights := make([]float64, count)
	var totalWeight float64
	for i := range weights {
		weights[i] = rng.Uniform(0.5, 1.5)
		totalWeight += weights[i]
	}
	inventories := make([]*Inventory, 0, count)
	for _, w := range weights {
		inventories = append(inventories, GenerateInventory(ids, rng, p, topLine*w/totalWeight))
	}
	m, err := New(ids.Next("merchant"), inventories, rng, p)
	if err != nil {
		return nil, err
	}
	m.InitialCashRatio = p.InitialCashRatio * rng.Ratio(p.InitialCashRatioStd)
	return m, nil
}

// GeneratePopulation draws n merchants. Merchant i uses its own generator
// seeded with (seed, i), so its content does not depend on how the
// population is later scheduled.
func GeneratePopulation(p Params, seed uint64, deterministic bool, n int) ([]*Merchant, error) {
	ids := NewIDAllocator()
	merchants := make([]*Merchant, 0, n)
	for i := 0; i < n; i++ {
		rng := random.NewDeterministic()
		if !deterministic {
			rng = random.New(seed, uint64(i))
		}
		m, err := Generate(ids, rng, p)
		if err != nil {
			return nil, fmt.Errorf("merchant: generate %d: %w", i, err)
		}
		m.Ref = uuid.NewSHA1(populationNamespace, fmt.Appendf(nil, "%d/%d", seed, i))
		merchants = append(merchants, m)
	}
	return merchants, nil
}

// IsSuspended reports whether day falls within the suspension window.
func (m *Merchant) IsSuspended(day int) bool {
	return m.SuspensionStart > 0 && day >= m.SuspensionStart && day <= m.SuspensionStart+AccountSuspensionDuration
}

func (m *Merchant) sum(day int, fn func(*Batch) float64) float64 {
	var total float64
	for _, inv := range m.Inventories {
		if b := inv.BatchAt(day); b != nil {
			total += fn(b)
		}
	}
	return total
}

// Revenue is the day's marketplace revenue across products.
func (m *Merchant) Revenue(day int) float64 {
	if m.IsSuspended(day) {
		return 0
	}
	return m.sum(day, func(b *Batch) float64 { return b.RevenuePerDay(day) })
}

// GrossProfit is the day's cash contribution before inventory purchases.
func (m *Merchant) GrossProfit(day int) float64 {
	if m.IsSuspended(day) {
		return 0
	}
	return m.sum(day, func(b *Batch) float64 { return b.GrossProfitPerDay(day) })
}

// Profit is GrossProfit net of cost of goods sold.
func (m *Merchant) Profit(day int) float64 {
	if m.IsSuspended(day) {
		return 0
	}
	return m.sum(day, func(b *Batch) float64 { return b.ProfitPerDay(day) })
}

// AnnualTopLine sums the inventories' annual top lines.
func (m *Merchant) AnnualTopLine(day int) float64 {
	var total float64
	for _, inv := range m.Inventories {
		total += inv.AnnualTopLine(day)
	}
	return total
}

// InitialCash is the cash balance the merchant starts the simulation with.
func (m *Merchant) InitialCash() float64 {
	return m.InitialCashRatio * m.AnnualTopLine(StartDate)
}

// InventoryValue sums the inventories' discounted valuations.
func (m *Merchant) InventoryValue(day int) float64 {
	var total float64
	for _, inv := range m.Inventories {
		total += inv.Valuation(day)
	}
	return total
}

// weighted averages fn over active batches using annual top line as weight.
func (m *Merchant) weighted(day int, fn func(*Batch) float64) float64 {
	values := make([]float64, 0, len(m.Inventories))
	weights := make([]float64, 0, len(m.Inventories))
	for _, inv := range m.Inventories {
		b := inv.BatchAt(day)
		if b == nil {
			continue
		}
		values = append(values, fn(b))
		weights = append(weights, b.AnnualTopLine())
	}
	return num.WeightedAverage(values, weights)
}

// OrganicRate is the revenue-weighted share of unpaid sales.
func (m *Merchant) OrganicRate(day int) float64 {
	return m.weighted(day, func(b *Batch) float64 { return b.OrganicRate })
}

// OutOfStockRate is the revenue-weighted out-of-stock rate.
func (m *Merchant) OutOfStockRate(day int) float64 {
	return m.weighted(day, func(b *Batch) float64 { return b.OutOfStockRate })
}

// ProfitMargin is the revenue-weighted profit margin.
func (m *Merchant) ProfitMargin(day int) float64 {
	return m.weighted(day, func(b *Batch) float64 { return b.ProfitMargin() })
}

// InventoryTurnoverRatio is the revenue-weighted turnover ratio.
func (m *Merchant) InventoryTurnoverRatio(day int) float64 {
	return m.weighted(day, func(b *Batch) float64 { return b.InventoryTurnoverRatio })
}

// ROAS is the revenue-weighted return on ad spend.
func (m *Merchant) ROAS(day int) float64 {
	return m.weighted(day, func(b *Batch) float64 { return b.ROAS })
}

// InventoryCost pays the day's inventory installments. Inventories are
// served in order from a running balance, so earlier products get first
// claim on shared cash.
func (m *Merchant) InventoryCost(day int, cash float64) float64 {
	var total float64
	for _, inv := range m.Inventories {
		cost := inv.InventoryCost(day, cash)
		cash -= cost
		total += cost
	}
	return total
}

// CommittedPurchaseOrderCost sums unpaid installments of issued orders.
func (m *Merchant) CommittedPurchaseOrderCost(day int) float64 {
	var total float64
	for _, inv := range m.Inventories {
		total += inv.CommittedCost(day)
	}
	return total
}

// ProjectedCashNeed sums the expected cost of reorders due within window days.
func (m *Merchant) ProjectedCashNeed(day, window int) float64 {
	var total float64
	for _, inv := range m.Inventories {
		total += inv.ProjectedOrderCost(day, window)
	}
	return total
}
