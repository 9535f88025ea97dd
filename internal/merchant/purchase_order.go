package merchant

// PurchaseOrder is a replenishment order placed at a batch's reorder point.
// It is paid in two installments: the upfront share when issued and the
// remainder when manufacturing completes.
type PurchaseOrder struct {
	ID                    int
	Stock                 int
	UnitCost              float64
	UpfrontCost           float64
	PostManufacturingCost float64
	StartDate             int
	ManufacturingDate     int
	ArrivalDate           int
	Settled               bool
}

// TotalCost is the sum of both installments.
func (po *PurchaseOrder) TotalCost() float64 {
	return po.UpfrontCost + po.PostManufacturingCost
}

// Outstanding returns the unpaid remainder as of day.
func (po *PurchaseOrder) Outstanding(day int) float64 {
	if po == nil || po.Settled || day > po.ManufacturingDate {
		return 0
	}
	return po.PostManufacturingCost
}

func newPurchaseOrder(id int, stock int, unitCost, upfrontRatio float64, start int, product *Product) *PurchaseOrder {
	total := float64(stock) * unitCost
	upfront := total * upfrontRatio
	return &PurchaseOrder{
		ID:                    id,
		Stock:                 stock,
		UnitCost:              unitCost,
		UpfrontCost:           upfront,
		PostManufacturingCost: total - upfront,
		StartDate:             start,
		ManufacturingDate:     start + product.ManufacturingDuration,
		ArrivalDate:           start + product.LeadTime(),
	}
}
