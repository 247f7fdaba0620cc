package product

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestProductPricing(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		discount decimal.NullDecimal
		hasDisc  bool
		final    string
		percent  int
	}{
		{name: "no discount", price: "200", final: "200"},
		{name: "lower discount", price: "200", discount: nullDec("150"), hasDisc: true, final: "150", percent: 25},
		{name: "equal discount ignored", price: "200", discount: nullDec("200"), final: "200"},
		{name: "higher discount ignored", price: "200", discount: nullDec("250"), final: "200"},
		{name: "rounds percent", price: "300", discount: nullDec("199"), hasDisc: true, final: "199", percent: 34},
		{name: "rounds half up", price: "8", discount: nullDec("7.96"), hasDisc: true, final: "7.96", percent: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Product{Price: decimal.RequireFromString(tt.price), DiscountPrice: tt.discount}
			assert.Equal(t, tt.hasDisc, p.HasDiscount())
			assert.True(t, decimal.RequireFromString(tt.final).Equal(p.FinalPrice()), "final price %s", p.FinalPrice())
			assert.Equal(t, tt.percent, p.DiscountPercentage())
			if p.HasDiscount() {
				assert.True(t, p.DiscountPrice.Decimal.LessThan(p.Price))
			}
		})
	}
}

func TestProductInStock(t *testing.T) {
	for _, qty := range []int{0, 1, 5} {
		p := Product{StockQuantity: qty, IsActive: true}
		assert.Equal(t, qty > 0, p.InStock(), "stock %d", qty)
	}

	p := Product{StockQuantity: 3, IsActive: true}
	assert.True(t, p.Available(3))
	assert.False(t, p.Available(4))

	p.IsActive = false
	assert.False(t, p.Available(1))
}

func TestParseSort(t *testing.T) {
	assert.Equal(t, SortPriceAsc, ParseSort("price_asc"))
	assert.Equal(t, SortPriceDesc, ParseSort("price_desc"))
	assert.Equal(t, SortName, ParseSort("name"))
	assert.Equal(t, SortNewest, ParseSort(""))
	assert.Equal(t, SortNewest, ParseSort("popularity"))
}

func TestStockError(t *testing.T) {
	err := errors.Wrap(&StockError{ProductID: 7, Available: 2}, "decrement")
	require.ErrorIs(t, err, ErrInsufficientStock)

	var se *StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Available)
	assert.Contains(t, err.Error(), "2 left")
}
