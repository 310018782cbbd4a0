package economy

import (
	"math"
)

// Loan is a fixed-payment amortizing loan.
type Loan struct {
	ID              string  `json:"id"`
	Principal       float64 `json:"principal"`
	AnnualRate      float64 `json:"annual_rate"`
	TermMonths      int     `json:"term_months"`
	RemainingMonths int     `json:"remaining_months"`
	Payment         float64 `json:"payment"` // Per month
	Balance         float64 `json:"balance"`
}

// MonthlyPayment is the annuity payment that retires principal over months
// at the given annual rate.
func MonthlyPayment(principal, annualRate float64, months int) float64 {
	if months <= 0 {
		return 0
	}
	r := annualRate / 12
	if r == 0 {
		return principal / float64(months)
	}
	return principal * r / (1 - math.Pow(1+r, -float64(months)))
}

// RemainingPayments is what is still owed under the fixed schedule.
func (l Loan) RemainingPayments() float64 { return l.Payment * float64(l.RemainingMonths) }

// pay makes one monthly payment and reports whether the loan is retired.
func (l *Loan) pay() bool {
	interest := l.Balance * l.AnnualRate / 12
	l.Balance -= l.Payment - interest
	l.RemainingMonths--
	if l.RemainingMonths <= 0 {
		l.Balance = 0
		return true
	}
	return false
}

// Bond is a coupon bond: interest every month, principal at maturity.
type Bond struct {
	ID              string  `json:"id"`
	Principal       float64 `json:"principal"`
	AnnualRate      float64 `json:"annual_rate"`
	TermMonths      int     `json:"term_months"`
	RemainingMonths int     `json:"remaining_months"`
}

// Coupon is the monthly interest payment.
func (b Bond) Coupon() float64 { return b.Principal * b.AnnualRate / 12 }

// rolling is a capped sample window.
type rolling struct {
	cap     int
	samples []float64
}

func (r *rolling) push(v float64) {
	r.samples = append(r.samples, v)
	if len(r.samples) > r.cap {
		r.samples = append([]float64(nil), r.samples[len(r.samples)-r.cap:]...)
	}
}

func (r *rolling) last() float64 {
	if len(r.samples) == 0 {
		return 0
	}
	return r.samples[len(r.samples)-1]
}

// change is the percent change of the newest sample against the one lag
// samples earlier. Until the window holds lag+1 samples, or when the earlier
// value is zero, it is 0.
func (r *rolling) change(lag int) float64 {
	n := len(r.samples)
	if lag <= 0 || n < lag+1 {
		return 0
	}
	prev := r.samples[n-1-lag]
	if prev == 0 {
		return 0
	}
	return (r.samples[n-1] - prev) / prev * 100
}
