// Package fees holds the money rules of the fee ledger: GST extraction,
// payment allocation across installments and installment scheduling.
// Everything here is pure and works on copies of its inputs.
package fees

import (
	"dhronas-fees/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// ComputeTax extracts the GST contained in a tax-inclusive gross amount.
// CGST and SGST are each rounded from half the total, so their sum may be
// off from the total by 0.01.
func ComputeTax(gross, ratePercent decimal.Decimal) domain.Tax {
	tax := domain.Tax{
		Rate:           ratePercent,
		TotalGSTAmount: decimal.Zero,
		CGST:           decimal.Zero,
		SGST:           decimal.Zero,
	}
	if !ratePercent.IsPositive() {
		return tax
	}

	total := gross.Mul(ratePercent).Div(hundred.Add(ratePercent)).Round(2)
	half := total.Div(two).Round(2)

	tax.TotalGSTAmount = total
	tax.CGST = half
	tax.SGST = half
	return tax
}
