package loan

import (
	"math"

	"github.com/odyssey-erp/lendsim/internal/merchant"
	"github.com/odyssey-erp/lendsim/internal/num"
)

// Loan is one draw. The flat fee is charged at draw time, so the debt owed
// is Amount·(1+Interest) from the first day.
type Loan struct {
	ID              int
	Amount          float64
	Interest        float64
	DurationDays    int
	StartDate       int
	EndDate         int
	OutstandingDebt float64
	Repaid          float64
}

// TotalDebt is principal plus fee.
func (l *Loan) TotalDebt() float64 {
	return l.Amount * (1 + l.Interest)
}

// Closed reports whether the loan has been fully repaid.
func (l *Loan) Closed() bool {
	return num.IsZero(l.OutstandingDebt)
}

// OutstandingPrincipal is the principal share of the remaining debt.
func (l *Loan) OutstandingPrincipal() float64 {
	return l.OutstandingDebt / (1 + l.Interest)
}

// repay applies up to amount and returns what was used. A payment that
// covers the balance to within num.Epsilon settles it in full, so the loan
// retires with exactly zero debt.
func (l *Loan) repay(amount float64, day int) float64 {
	if amount <= 0 || l.Closed() {
		return 0
	}
	paid := math.Min(amount, l.OutstandingDebt)
	if num.IsZero(l.OutstandingDebt - paid) {
		paid = l.OutstandingDebt
		l.OutstandingDebt = 0
		l.EndDate = day
	} else {
		l.OutstandingDebt -= paid
	}
	l.Repaid += paid
	return paid
}

// RealizedDuration is the number of days the funds were deployed, counting
// open loans up to day.
func (l *Loan) RealizedDuration(day int) int {
	end := day
	if l.EndDate > 0 {
		end = l.EndDate
	}
	return max(end-l.StartDate+1, 1)
}

// APR annualises the flat fee over the realized duration.
func (l *Loan) APR(day int) float64 {
	return l.Interest * merchant.Year / float64(l.RealizedDuration(day))
}

// CostOfCapital is the funding cost of the principal over its realized
// duration at the annual rate.
func (l *Loan) CostOfCapital(day int, rate float64) float64 {
	years := float64(l.RealizedDuration(day)) / merchant.Year
	return l.Amount * (math.Pow(1+rate, years) - 1)
}

// Ledger tracks active draws in FIFO order and retains retired ones.
type Ledger struct {
	active []*Loan
	closed []*Loan
	nextID int
}

// Add records a new draw.
func (lg *Ledger) Add(amount, interest float64, durationDays, day int) *Loan {
	lg.nextID++
	l := &Loan{
		ID:           lg.nextID,
		Amount:       amount,
		Interest:     interest,
		DurationDays: durationDays,
		StartDate:    day,
	}
	l.OutstandingDebt = l.TotalDebt()
	lg.active = append(lg.active, l)
	return l
}

// Repay applies amount to the oldest loans first, retiring each as it
// reaches zero, and returns the amount actually applied.
func (lg *Ledger) Repay(amount float64, day int) float64 {
	var applied float64
	for len(lg.active) > 0 && amount > 0 {
		l := lg.active[0]
		paid := l.repay(amount, day)
		amount -= paid
		applied += paid
		if !l.Closed() {
			break
		}
		lg.closed = append(lg.closed, l)
		lg.active = lg.active[1:]
	}
	return applied
}

// Active returns the open loans, oldest first.
func (lg *Ledger) Active() []*Loan {
	return append([]*Loan(nil), lg.active...)
}

// Closed returns the retired loans in retirement order.
func (lg *Ledger) Closed() []*Loan {
	return append([]*Loan(nil), lg.closed...)
}

// All returns retired then active loans.
func (lg *Ledger) All() []*Loan {
	out := make([]*Loan, 0, len(lg.closed)+len(lg.active))
	out = append(out, lg.closed...)
	return append(out, lg.active...)
}

// Count is the number of draws ever recorded.
func (lg *Ledger) Count() int {
	return len(lg.closed) + len(lg.active)
}

// OutstandingDebt sums the remaining debt of active loans.
func (lg *Ledger) OutstandingDebt() float64 {
	var total float64
	for _, l := range lg.active {
		total += l.OutstandingDebt
	}
	return total
}

// OutstandingPrincipal sums the principal share of active debt.
func (lg *Ledger) OutstandingPrincipal() float64 {
	var total float64
	for _, l := range lg.active {
		total += l.OutstandingPrincipal()
	}
	return total
}

// TotalCreditExtended sums principal plus fee over every draw.
func (lg *Ledger) TotalCreditExtended() float64 {
	var total float64
	for _, l := range lg.All() {
		total += l.TotalDebt()
	}
	return total
}

// TotalPrincipal sums the principal of every draw.
func (lg *Ledger) TotalPrincipal() float64 {
	var total float64
	for _, l := range lg.All() {
		total += l.Amount
	}
	return total
}

// TotalRepaid sums repayments over every draw.
func (lg *Ledger) TotalRepaid() float64 {
	var total float64
	for _, l := range lg.All() {
		total += l.Repaid
	}
	return total
}

// Oldest returns the oldest active loan or nil.
func (lg *Ledger) Oldest() *Loan {
	if len(lg.active) == 0 {
		return nil
	}
	return lg.active[0]
}
