package checkout

import (
	"errors"

	"github.com/shopspring/decimal"
)

// TaxRatePercent is hard-coded at 19% on purpose: the system this terminal
// replaces used the same constant everywhere instead of reading the tax
// catalog. Do not "fix" this without a backend contract change.
const TaxRatePercent = 19

var taxRate = decimal.New(TaxRatePercent, -2) // 0.19

// Totals is the fixed-order checkout computation. Pure data — recomputing
// from the same inputs always yields identical results.
type Totals struct {
	Subtotal              decimal.Decimal `json:"subtotal"`
	DiscountAmount        decimal.Decimal `json:"discount_amount"`
	SubtotalAfterDiscount decimal.Decimal `json:"subtotal_after_discount"`
	Tax                   decimal.Decimal `json:"tax"`
	Total                 decimal.Decimal `json:"total"`
}

// ComputeTotals applies the fixed order: discount on the subtotal, then 19%
// tax on the discounted subtotal.
func ComputeTotals(subtotal, discountPct decimal.Decimal) Totals {
	discountAmount := subtotal.Mul(discountPct.Div(decimal.NewFromInt(100)))
	after := subtotal.Sub(discountAmount)
	tax := after.Mul(taxRate)
	return Totals{
		Subtotal:              subtotal,
		DiscountAmount:        discountAmount,
		SubtotalAfterDiscount: after,
		Tax:                   tax,
		Total:                 after.Add(tax),
	}
}

// Payment methods accepted at checkout.
const (
	PaymentCash     = "cash"
	PaymentTransfer = "transfer"
)

// ErrInsufficientCash blocks submission before any network call is made.
var ErrInsufficientCash = errors.New("checkout: amount received is less than total")

// Payment is the resolved payment detail submitted with the sale.
type Payment struct {
	Method         string          `json:"method"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	Change         decimal.Decimal `json:"change"`
}

// ResolvePayment validates the payment input against the sale total.
// Cash requires amountReceived >= total and yields change; transfer always
// settles exactly (received = total, change = 0).
func ResolvePayment(method string, amountReceived, total decimal.Decimal) (Payment, error) {
	switch method {
	case PaymentCash:
		if amountReceived.LessThan(total) {
			return Payment{}, ErrInsufficientCash
		}
		return Payment{
			Method:         PaymentCash,
			AmountReceived: amountReceived,
			Change:         amountReceived.Sub(total),
		}, nil
	case PaymentTransfer:
		return Payment{
			Method:         PaymentTransfer,
			AmountReceived: total,
			Change:         decimal.Zero,
		}, nil
	default:
		return Payment{}, errors.New("checkout: unknown payment method " + method)
	}
}
