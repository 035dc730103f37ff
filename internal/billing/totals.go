package billing

import (
	"cravebiz/internal/models"

	"github.com/shopspring/decimal"
)

// TaxRate is the flat VAT applied to every invoice subtotal.
var TaxRate = decimal.RequireFromString("0.075")

const moneyPlaces = 2

// Totals holds the derived monetary amounts of an invoice.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals derives subtotal, tax and total from line items. Total is
// the rounded taxed sum and tax is whatever remains over the subtotal, so
// total always equals round(sum * (1 + TaxRate)).
// Items are assumed valid; see ValidateItems.
func ComputeTotals(items []models.InvoiceItem) Totals {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Amount())
	}
	subtotal := sum.Round(moneyPlaces)
	total := sum.Mul(decimal.NewFromInt(1).Add(TaxRate)).Round(moneyPlaces)

	return Totals{
		Subtotal: subtotal,
		Tax:      total.Sub(subtotal),
		Total:    total,
	}
}

// ApplyTotals overwrites inv.Total with the value derived from its items.
func ApplyTotals(inv *models.Invoice) Totals {
	t := ComputeTotals(inv.Items)
	inv.Total = t.Total
	return t
}
