package fees

import (
	"sort"

	"dhronas-fees/internal/domain"

	"github.com/shopspring/decimal"
)

// Allocate applies payment to the outstanding installments, earliest due
// date first (installment number breaks ties). It returns the installments it
// changed, with their new amount and status, and whatever part of the payment
// was left over. The input slice is not modified.
//
// A non-positive payment touches nothing and leaves no remainder.
func Allocate(installments []domain.Installment, payment decimal.Decimal) ([]domain.Installment, decimal.Decimal) {
	if !payment.IsPositive() {
		return nil, decimal.Zero
	}

	outstanding := make([]domain.Installment, 0, len(installments))
	for _, in := range installments {
		if in.Outstanding() {
			outstanding = append(outstanding, in)
		}
	}
	sort.SliceStable(outstanding, func(i, j int) bool {
		a, b := outstanding[i], outstanding[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.Number < b.Number
	})

	remaining := payment
	var touched []domain.Installment
	for _, in := range outstanding {
		if !remaining.IsPositive() {
			break
		}

		if remaining.GreaterThanOrEqual(in.Amount) {
			remaining = remaining.Sub(in.Amount)
			in.Amount = decimal.Zero
			in.Status = domain.InstallmentPaid
		} else {
			in.Amount = in.Amount.Sub(remaining)
			in.Status = domain.InstallmentPartiallyPaid
			remaining = decimal.Zero
		}
		touched = append(touched, in)
	}

	return touched, remaining
}

// Outstanding sums the amounts still owed on installments that are not paid.
func Outstanding(installments []domain.Installment) decimal.Decimal {
	sum := decimal.Zero
	for _, in := range installments {
		if in.Outstanding() {
			sum = sum.Add(in.Amount)
		}
	}
	return sum
}
