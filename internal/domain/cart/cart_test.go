package cart_test

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/memstore"
)

const userID = int64(1000)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testPricing() cart.Pricing {
	return cart.Pricing{
		FreeShippingThreshold: dec("1000"),
		ShippingCharge:        dec("50"),
		MinimumOrder:          dec("100"),
	}
}

func newCart(t *testing.T) (*cart.Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	st.PutCategory(product.Category{ID: 1, Name: "Spices", IsActive: true})
	return cart.NewService(st.Cart(), st.Products(), testPricing()), st
}

func putProduct(st *memstore.Store, name, price string, stock int) product.Product {
	return st.PutProduct(product.Product{
		CategoryID:    1,
		Name:          name,
		Price:         dec(price),
		StockQuantity: stock,
		IsActive:      true,
	})
}

func TestSummarize(t *testing.T) {
	turmeric := product.Product{ID: 1, Name: "Turmeric", Price: dec("200"), StockQuantity: 10, IsActive: true}
	saffron := product.Product{
		ID:            2,
		Name:          "Saffron",
		Price:         dec("500"),
		DiscountPrice: decimal.NewNullDecimal(dec("450")),
		StockQuantity: 1,
		IsActive:      true,
	}

	tests := []struct {
		name     string
		items    []cart.Item
		subtotal string
		discount string
		shipping string
		total    string
		minOK    bool
		oos      bool
	}{
		{
			name:     "below free shipping",
			items:    []cart.Item{{Product: turmeric, Quantity: 2}},
			subtotal: "400", discount: "0", shipping: "50", total: "450", minOK: true,
		},
		{
			name:     "exactly at threshold",
			items:    []cart.Item{{Product: turmeric, Quantity: 5}},
			subtotal: "1000", discount: "0", shipping: "0", total: "1000", minOK: true,
		},
		{
			name:     "discounted line",
			items:    []cart.Item{{Product: turmeric, Quantity: 1}, {Product: saffron, Quantity: 1}},
			subtotal: "650", discount: "50", shipping: "50", total: "700", minOK: true,
		},
		{
			name:     "out of stock line",
			items:    []cart.Item{{Product: saffron, Quantity: 3}},
			subtotal: "1350", discount: "150", shipping: "0", total: "1350", minOK: true, oos: true,
		},
		{
			name:     "empty",
			subtotal: "0", discount: "0", shipping: "50", total: "50",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := cart.Summarize(tt.items, testPricing())
			assert.True(t, dec(tt.subtotal).Equal(s.Subtotal), "subtotal %s", s.Subtotal)
			assert.True(t, dec(tt.discount).Equal(s.DiscountAmount), "discount %s", s.DiscountAmount)
			assert.True(t, dec(tt.shipping).Equal(s.Shipping), "shipping %s", s.Shipping)
			assert.True(t, dec(tt.total).Equal(s.Total), "total %s", s.Total)
			assert.Equal(t, tt.minOK, s.MeetsMinimumOrder)
			assert.Equal(t, tt.oos, s.HasOutOfStock)

			lines := decimal.Zero
			for _, it := range tt.items {
				lines = lines.Add(it.LineTotal())
			}
			assert.True(t, lines.Add(s.Shipping).Equal(s.Total))
			assert.Equal(t, s.Shipping.IsZero(), s.Subtotal.GreaterThanOrEqual(dec("1000")))
		})
	}
}

func TestService_AddItemMerges(t *testing.T) {
	ctx := context.Background()
	svc, st := newCart(t)
	p := putProduct(st, "Turmeric", "200", 5)

	require.NoError(t, svc.AddItem(ctx, userID, p.ID, 2))
	require.NoError(t, svc.AddItem(ctx, userID, p.ID, 3))

	items, err := svc.Items(ctx, userID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)

	n, err := svc.Count(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestService_AddItemUnavailable(t *testing.T) {
	ctx := context.Background()
	svc, st := newCart(t)
	p := putProduct(st, "Turmeric", "200", 3)

	require.NoError(t, svc.AddItem(ctx, userID, p.ID, 2))

	err := svc.AddItem(ctx, userID, p.ID, 2)
	var unavailable *cart.ProductUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 4, unavailable.Requested)
	assert.Equal(t, 3, unavailable.Available)
	assert.True(t, errors.Is(err, product.ErrInsufficientStock))

	n, err := svc.Count(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestService_AddItemInvalid(t *testing.T) {
	ctx := context.Background()
	svc, st := newCart(t)
	p := putProduct(st, "Turmeric", "200", 3)

	require.ErrorIs(t, svc.AddItem(ctx, userID, p.ID, 0), cart.ErrInvalidQuantity)
	require.ErrorIs(t, svc.AddItem(ctx, userID, 999, 1), product.ErrNotFound)

	hidden := st.PutProduct(product.Product{CategoryID: 1, Name: "Hidden", Price: dec("10"), StockQuantity: 5})
	require.ErrorIs(t, svc.AddItem(ctx, userID, hidden.ID, 1), product.ErrNotFound)
}

func TestService_UpdateItem(t *testing.T) {
	ctx := context.Background()
	svc, st := newCart(t)
	p := putProduct(st, "Turmeric", "200", 4)

	require.ErrorIs(t, svc.UpdateItem(ctx, userID, p.ID, 2), cart.ErrItemNotFound)

	require.NoError(t, svc.AddItem(ctx, userID, p.ID, 1))
	require.NoError(t, svc.UpdateItem(ctx, userID, p.ID, 4))
	require.ErrorIs(t, svc.UpdateItem(ctx, userID, p.ID, 5), product.ErrInsufficientStock)

	n, err := svc.Count(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, svc.UpdateItem(ctx, userID, p.ID, 0))
	n, err = svc.Count(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_RemoveItemTwice(t *testing.T) {
	ctx := context.Background()
	svc, st := newCart(t)
	p := putProduct(st, "Turmeric", "200", 4)

	require.NoError(t, svc.AddItem(ctx, userID, p.ID, 1))
	require.NoError(t, svc.RemoveItem(ctx, userID, p.ID))
	require.ErrorIs(t, svc.RemoveItem(ctx, userID, p.ID), cart.ErrItemNotFound)

	items, err := svc.Items(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestService_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		svc, _ := newCart(t)
		v, err := svc.Validate(ctx, userID)
		require.NoError(t, err)
		assert.False(t, v.Valid)
		assert.Equal(t, []string{"Your cart is empty"}, v.Errors)
	})

	t.Run("below minimum", func(t *testing.T) {
		svc, st := newCart(t)
		p := putProduct(st, "Cardamom", "40", 10)
		require.NoError(t, svc.AddItem(ctx, userID, p.ID, 2))

		v, err := svc.Validate(ctx, userID)
		require.NoError(t, err)
		assert.False(t, v.Valid)
		assert.Equal(t, []string{"Minimum order amount is 100.00"}, v.Errors)
	})

	t.Run("stock drifted", func(t *testing.T) {
		svc, st := newCart(t)
		p := putProduct(st, "Turmeric", "200", 5)
		q := putProduct(st, "Pepper", "300", 5)
		require.NoError(t, svc.AddItem(ctx, userID, p.ID, 3))
		require.NoError(t, svc.AddItem(ctx, userID, q.ID, 1))

		require.NoError(t, st.Products().UpdateStock(ctx, p.ID, -4))
		require.NoError(t, st.Products().UpdateStock(ctx, q.ID, -5))

		v, err := svc.Validate(ctx, userID)
		require.NoError(t, err)
		assert.False(t, v.Valid)
		assert.True(t, v.Summary.HasOutOfStock)
		assert.ElementsMatch(t, []string{"Only 1 of Turmeric available", "Pepper is out of stock"}, v.Errors)
	})

	t.Run("valid", func(t *testing.T) {
		svc, st := newCart(t)
		p := putProduct(st, "Turmeric", "200", 5)
		require.NoError(t, svc.AddItem(ctx, userID, p.ID, 2))

		v, err := svc.Validate(ctx, userID)
		require.NoError(t, err)
		assert.True(t, v.Valid)
		assert.Empty(t, v.Errors)
		assert.True(t, dec("450").Equal(v.Summary.Total))
	})
}
