package loan

import (
	"math"
	"time"

	"github.com/repslend/repslend/internal/settlement"
)

const (
	StatusActive    = "active"
	StatusClosed    = "closed"
	StatusDefaulted = "defaulted"
)

// Payment is one confirmed repayment. The payment log is append-only.
type Payment struct {
	ID     string    `json:"id"`
	Amount int64     `json:"amount"`
	At     time.Time `json:"at"`
}

// Loan is the funded side of an approved application. Remaining only ever
// decreases; Payments only ever grows.
type Loan struct {
	ID             string
	ApplicationID  string
	HolderKey      string
	LenderID       string
	ProductID      string
	Principal      int64
	Remaining      int64
	InterestRate   float64
	TermMonths     int
	MonthlyPayment int64
	Schedule       []settlement.Installment
	Payments       []Payment
	MissedCount    int
	Status         string
	CreatedAt      time.Time
}

// MonthlyPayment computes the fixed amortized installment for a principal in
// cents at the given annual rate over termMonths. A zero rate degrades to a
// straight division.
func MonthlyPayment(principal int64, annualRate float64, termMonths int) int64 {
	if termMonths <= 0 {
		return 0
	}
	if annualRate <= 0 {
		return int64(math.Ceil(float64(principal) / float64(termMonths)))
	}
	r := annualRate / 100 / 12
	p := float64(principal)
	factor := math.Pow(1+r, float64(termMonths))
	return int64(math.Round(p * r * factor / (factor - 1)))
}

// BuildSchedule produces the installment plan the settlement layer is
// instructed with. The final installment absorbs rounding so the schedule
// sums to principal plus total interest exactly.
func BuildSchedule(principal int64, annualRate float64, termMonths int, start time.Time) []settlement.Installment {
	monthly := MonthlyPayment(principal, annualRate, termMonths)
	total := totalPayable(principal, annualRate, termMonths, monthly)

	schedule := make([]settlement.Installment, 0, termMonths)
	due := start.UTC()
	remaining := total
	for seq := 1; seq <= termMonths; seq++ {
		due = due.AddDate(0, 1, 0)
		amount := monthly
		if seq == termMonths {
			amount = remaining
		}
		schedule = append(schedule, settlement.Installment{Seq: seq, Due: due, Amount: amount})
		remaining -= amount
	}
	return schedule
}

func totalPayable(principal int64, annualRate float64, termMonths int, monthly int64) int64 {
	if annualRate <= 0 {
		return principal
	}
	return monthly * int64(termMonths)
}
