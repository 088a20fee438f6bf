package fees

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type ScheduledInstallment struct {
	Number  int
	Amount  decimal.Decimal
	DueDate time.Time
}

// MaxInstallments bounds the length of a schedule.
const MaxInstallments = 120

var (
	ErrTooManyInstallments = errors.New("number of installments cannot exceed 120")
	ErrInstallmentTooSmall = errors.New("each installment must be at least 0.01")
)

// CheckSchedule reports whether total can be split into count installments
// of at least one cent each. A non-positive total or count needs no schedule.
func CheckSchedule(total decimal.Decimal, count int) error {
	if count <= 0 || !total.IsPositive() {
		return nil
	}
	if count > MaxInstallments {
		return ErrTooManyInstallments
	}
	if total.Shift(2).LessThan(decimal.NewFromInt(int64(count))) {
		return ErrInstallmentTooSmall
	}
	return nil
}

// BuildSchedule splits total into count monthly installments, the first one
// due a month after start. Each installment gets total/count truncated to
// cents and the last one absorbs the residue, so the schedule sums to total.
// It returns nil when CheckSchedule rejects the split.
func BuildSchedule(total decimal.Decimal, count int, start time.Time) []ScheduledInstallment {
	if count <= 0 || !total.IsPositive() || CheckSchedule(total, count) != nil {
		return nil
	}

	each := total.Div(decimal.NewFromInt(int64(count))).Truncate(2)
	out := make([]ScheduledInstallment, 0, count)
	allocated := decimal.Zero
	for i := 1; i <= count; i++ {
		amount := each
		if i == count {
			amount = total.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		out = append(out, ScheduledInstallment{
			Number:  i,
			Amount:  amount,
			DueDate: start.AddDate(0, i, 0),
		})
	}
	return out
}
