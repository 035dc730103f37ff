package billing

import (
	"testing"

	"cravebiz/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func item(qty, price string) models.InvoiceItem {
	return models.InvoiceItem{
		Quantity: decimal.RequireFromString(qty),
		Price:    decimal.RequireFromString(price),
	}
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name         string
		items        []models.InvoiceItem
		wantSubtotal string
		wantTax      string
		wantTotal    string
	}{
		{
			name:         "empty invoice",
			items:        nil,
			wantSubtotal: "0",
			wantTax:      "0",
			wantTotal:    "0",
		},
		{
			name:         "single retainer",
			items:        []models.InvoiceItem{item("1", "75000")},
			wantSubtotal: "75000",
			wantTax:      "5625",
			wantTotal:    "80625",
		},
		{
			name:         "multiple lines",
			items:        []models.InvoiceItem{item("3", "1200.50"), item("2", "99.99")},
			wantSubtotal: "3801.48", // 3601.50 + 199.98
			wantTax:      "285.11",  // 285.111
			wantTotal:    "4086.59",
		},
		{
			name:         "sub-kobo sum rounds once",
			items:        []models.InvoiceItem{item("1", "0.333"), item("1", "0.333"), item("1", "0.333")},
			wantSubtotal: "1",
			wantTax:      "0.07", // 1.073925 -> 1.07
			wantTotal:    "1.07",
		},
		{
			name:         "free line",
			items:        []models.InvoiceItem{item("4", "0")},
			wantSubtotal: "0",
			wantTax:      "0",
			wantTotal:    "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotals(tt.items)
			assert.True(t, got.Subtotal.Equal(decimal.RequireFromString(tt.wantSubtotal)), "subtotal = %s", got.Subtotal)
			assert.True(t, got.Tax.Equal(decimal.RequireFromString(tt.wantTax)), "tax = %s", got.Tax)
			assert.True(t, got.Total.Equal(decimal.RequireFromString(tt.wantTotal)), "total = %s", got.Total)
		})
	}
}

func TestComputeTotals_OrderIndependent(t *testing.T) {
	items := []models.InvoiceItem{item("2", "19.99"), item("7", "3.33"), item("1", "1000")}
	reversed := []models.InvoiceItem{items[2], items[1], items[0]}

	assert.True(t, ComputeTotals(items).Total.Equal(ComputeTotals(reversed).Total))
}

func TestApplyTotals(t *testing.T) {
	inv := &models.Invoice{
		Items: []models.InvoiceItem{item("1", "75000")},
		Total: decimal.RequireFromString("1"),
	}
	ApplyTotals(inv)
	assert.True(t, inv.Total.Equal(decimal.RequireFromString("80625")))
}

func TestComputeTotals_TotalIsRoundedTaxedSum(t *testing.T) {
	sets := [][]models.InvoiceItem{
		{item("1", "0.333"), item("1", "0.333"), item("1", "0.333")},
		{item("3", "0.01"), item("1", "0.05")},
		{item("7", "13.37"), item("2", "0.99"), item("11", "1234.56")},
		{item("1", "0.07")},
		{item("3", "333.33"), item("11", "0.07"), item("1", "12.5")},
	}
	factor := decimal.RequireFromString("1.075")
	for _, items := range sets {
		sum := decimal.Zero
		for _, it := range items {
			sum = sum.Add(it.Quantity.Mul(it.Price))
		}
		got := ComputeTotals(items)
		assert.True(t, got.Total.Equal(sum.Mul(factor).Round(2)), "total = %s for sum %s", got.Total, sum)
		assert.True(t, got.Subtotal.Add(got.Tax).Equal(got.Total))
	}
}
