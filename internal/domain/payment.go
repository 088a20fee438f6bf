package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Tax is the GST contained in a tax-inclusive amount, split into its
// central and state halves.
type Tax struct {
	Rate           decimal.Decimal `json:"gstRate"`
	TotalGSTAmount decimal.Decimal `json:"totalGSTAmount"`
	CGST           decimal.Decimal `json:"cgst"`
	SGST           decimal.Decimal `json:"sgst"`
}

type Payment struct {
	ID            string          `json:"id"`
	PaymentID     string          `json:"paymentId"`
	TransactionID string          `json:"transactionId"`
	StudentID     string          `json:"studentId"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
	PaymentDate   time.Time       `json:"paymentDate"`
	Description   string          `json:"description"`
	GST           *Tax            `json:"-"`
}

const (
	PaymentDescriptionInstallment = "Installment Payment"
	PaymentDescriptionInitial     = "Initial Payment"
	PaymentDescriptionDefault     = "Payment Received"
)

// MarshalJSON writes the payment in its reported shape, with the GST
// breakdown flattened next to the amount.
func (p Payment) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID             string           `json:"id"`
		PaymentID      string           `json:"paymentId"`
		TransactionID  string           `json:"transactionId"`
		StudentID      string           `json:"studentId"`
		PaidAmount     decimal.Decimal  `json:"PaidAmount"`
		GSTRate        *decimal.Decimal `json:"gstRate"`
		TotalGSTAmount *decimal.Decimal `json:"TotalGSTAmount"`
		CGST           *decimal.Decimal `json:"CGST"`
		SGST           *decimal.Decimal `json:"SGST"`
		PaymentDate    time.Time        `json:"paymentDate"`
		Description    string           `json:"description"`
	}
	w := wire{
		ID:            p.ID,
		PaymentID:     p.PaymentID,
		TransactionID: p.TransactionID,
		StudentID:     p.StudentID,
		PaidAmount:    p.PaidAmount,
		PaymentDate:   p.PaymentDate,
		Description:   p.Description,
	}
	if p.GST != nil {
		w.GSTRate = &p.GST.Rate
		w.TotalGSTAmount = &p.GST.TotalGSTAmount
		w.CGST = &p.GST.CGST
		w.SGST = &p.GST.SGST
	}
	return json.Marshal(w)
}
