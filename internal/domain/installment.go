package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type InstallmentStatus string

const (
	InstallmentPending       InstallmentStatus = "Pending"
	InstallmentPartiallyPaid InstallmentStatus = "Partially Paid"
	InstallmentPaid          InstallmentStatus = "Paid"
)

// Installment is one scheduled portion of a student's fees.
// Amount is what remains to be paid; OriginalAmount is what was scheduled.
type Installment struct {
	ID             int64             `json:"id"`
	StudentID      string            `json:"studentId"`
	Number         int               `json:"installmentNumber"`
	OriginalAmount decimal.Decimal   `json:"originalAmount"`
	Amount         decimal.Decimal   `json:"amount"`
	DueDate        time.Time         `json:"dueDate"`
	Status         InstallmentStatus `json:"status"`
	UpdatedAt      *time.Time        `json:"updatedAt,omitempty"`
}

func (i Installment) Outstanding() bool {
	return i.Status != InstallmentPaid
}
