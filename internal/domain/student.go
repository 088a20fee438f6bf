package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// Student is an enrolled learner (or an admin account, which shares the table).
// FeesPaid and DueAmount are the stored aggregate balance; the payment ledger
// can re-derive them, see PaymentService.Reconcile.
type Student struct {
	StudentID            string          `json:"studentId"`
	Name                 string          `json:"name"`
	Address              string          `json:"address"`
	Email                string          `json:"email"`
	PasswordHash         string          `json:"-"`
	Course               string          `json:"course"`
	TotalFees            decimal.Decimal `json:"Total_fees"`
	InitialPayment       decimal.Decimal `json:"initialPayment"`
	FeesPaid             decimal.Decimal `json:"feesPaid"`
	DueAmount            decimal.Decimal `json:"dueAmount"`
	DateJoined           time.Time       `json:"dateJoined"`
	Phone                string          `json:"phone"`
	BatchNo              string          `json:"batchNo"`
	Role                 Role            `json:"role"`
	HasInstallments      bool            `json:"hasInstallments"`
	FatherOrGuardianName string          `json:"fatherOrGuardianName"`
	DOB                  *time.Time      `json:"dob"`

	ResetTokenHash   *string    `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`

	// Version is bumped on every balance write and guards optimistic updates.
	Version int64 `json:"-"`
}

// RecomputeDue re-derives DueAmount from TotalFees and FeesPaid.
func (s *Student) RecomputeDue() {
	s.DueAmount = s.TotalFees.Sub(s.FeesPaid)
}
