package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
)

func money(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func timestamp(e *jx.Encoder, t time.Time) {
	if t.IsZero() {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeProduct(e *jx.Encoder, p *product.Product, imageBaseURL string) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("category_id")
	e.Int64(p.CategoryID)
	e.FieldStart("category_name")
	e.Str(p.CategoryName)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("slug")
	e.Str(p.Slug)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("image_url")
	e.Str(imageURL(imageBaseURL, p.ImageURL))
	e.FieldStart("price")
	money(e, p.Price)
	e.FieldStart("discount_price")
	if p.DiscountPrice.Valid {
		money(e, p.DiscountPrice.Decimal)
	} else {
		e.Null()
	}
	e.FieldStart("final_price")
	money(e, p.FinalPrice())
	e.FieldStart("has_discount")
	e.Bool(p.HasDiscount())
	e.FieldStart("discount_percentage")
	e.Int(p.DiscountPercentage())
	e.FieldStart("weight")
	e.Str(p.Weight)
	e.FieldStart("stock_quantity")
	e.Int(p.StockQuantity)
	e.FieldStart("in_stock")
	e.Bool(p.InStock())
	e.FieldStart("featured")
	e.Bool(p.Featured)
	e.FieldStart("created_at")
	timestamp(e, p.CreatedAt)
	e.ObjEnd()
}

func encodeProducts(e *jx.Encoder, ps []product.Product, imageBaseURL string) {
	e.ArrStart()
	for i := range ps {
		encodeProduct(e, &ps[i], imageBaseURL)
	}
	e.ArrEnd()
}

func encodeCategory(e *jx.Encoder, c *product.Category) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("description")
	e.Str(c.Description)
	e.FieldStart("sort_order")
	e.Int(c.SortOrder)
	e.FieldStart("product_count")
	e.Int(c.ProductCount)
	e.ObjEnd()
}

func encodePagination(e *jx.Encoder, total int, p paging.Page, hasMore bool) {
	e.ObjStart()
	e.FieldStart("total")
	e.Int(total)
	e.FieldStart("limit")
	e.Int(p.Limit)
	e.FieldStart("offset")
	e.Int(p.Offset)
	e.FieldStart("page")
	e.Int(p.Offset/p.Limit + 1)
	e.FieldStart("total_pages")
	e.Int((total + p.Limit - 1) / p.Limit)
	e.FieldStart("has_more")
	e.Bool(hasMore)
	e.ObjEnd()
}

func encodeProductPage(e *jx.Encoder, res paging.Result[product.Product], imageBaseURL string) {
	e.ObjStart()
	e.FieldStart("products")
	encodeProducts(e, res.Items, imageBaseURL)
	e.FieldStart("pagination")
	encodePagination(e, res.Total, res.Page, res.HasMore())
	e.ObjEnd()
}

func encodeCartItem(e *jx.Encoder, it *cart.Item, imageBaseURL string) {
	p := &it.Product
	e.ObjStart()
	e.FieldStart("product_id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("slug")
	e.Str(p.Slug)
	e.FieldStart("image_url")
	e.Str(imageURL(imageBaseURL, p.ImageURL))
	e.FieldStart("weight")
	e.Str(p.Weight)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.FieldStart("price")
	money(e, p.Price)
	e.FieldStart("final_price")
	money(e, p.FinalPrice())
	e.FieldStart("has_discount")
	e.Bool(p.HasDiscount())
	e.FieldStart("discount_percentage")
	e.Int(p.DiscountPercentage())
	e.FieldStart("line_total")
	money(e, it.LineTotal())
	e.FieldStart("stock_quantity")
	e.Int(p.StockQuantity)
	e.FieldStart("in_stock")
	e.Bool(it.InStock())
	e.ObjEnd()
}

func encodeCartItems(e *jx.Encoder, items []cart.Item, imageBaseURL string) {
	e.ArrStart()
	for i := range items {
		encodeCartItem(e, &items[i], imageBaseURL)
	}
	e.ArrEnd()
}

func encodeSummary(e *jx.Encoder, s cart.Summary) {
	e.ObjStart()
	e.FieldStart("item_count")
	e.Int(s.ItemCount)
	e.FieldStart("total_quantity")
	e.Int(s.TotalQuantity)
	e.FieldStart("mrp_total")
	money(e, s.MRPTotal)
	e.FieldStart("subtotal")
	money(e, s.Subtotal)
	e.FieldStart("discount_amount")
	money(e, s.DiscountAmount)
	e.FieldStart("shipping")
	money(e, s.Shipping)
	e.FieldStart("total_amount")
	money(e, s.Total)
	e.FieldStart("has_out_of_stock")
	e.Bool(s.HasOutOfStock)
	e.FieldStart("meets_minimum_order")
	e.Bool(s.MeetsMinimumOrder)
	e.FieldStart("free_shipping_threshold")
	money(e, s.FreeShippingThreshold)
	e.FieldStart("minimum_order")
	money(e, s.MinimumOrder)
	e.ObjEnd()
}

func encodeStrings(e *jx.Encoder, ss []string) {
	e.ArrStart()
	for _, s := range ss {
		e.Str(s)
	}
	e.ArrEnd()
}

func encodeOrderItem(e *jx.Encoder, it *order.Item) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(it.ID)
	e.FieldStart("product_id")
	e.Int64(it.ProductID)
	e.FieldStart("product_name")
	e.Str(it.ProductName)
	e.FieldStart("weight")
	e.Str(it.Weight)
	e.FieldStart("price")
	money(e, it.Price)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.FieldStart("total_amount")
	money(e, it.TotalAmount)
	e.ObjEnd()
}

// encodeOrder writes an order. Items are included when loaded.
func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("order_number")
	e.Str(o.Number)
	e.FieldStart("user_id")
	e.Int64(o.UserID)
	e.FieldStart("total_amount")
	money(e, o.TotalAmount)
	e.FieldStart("discount_amount")
	money(e, o.DiscountAmount)
	e.FieldStart("shipping_amount")
	money(e, o.ShippingAmount)
	e.FieldStart("final_amount")
	money(e, o.FinalAmount)
	e.FieldStart("payment_method")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("payment_status")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("can_cancel")
	e.Bool(o.Status.Cancellable())
	e.FieldStart("shipping_address")
	e.Str(o.ShippingAddress)
	e.FieldStart("notes")
	e.Str(o.Notes)
	e.FieldStart("item_count")
	if o.Items != nil {
		e.Int(len(o.Items))
	} else {
		e.Int(o.ItemCount)
	}
	e.FieldStart("created_at")
	timestamp(e, o.CreatedAt)
	e.FieldStart("updated_at")
	timestamp(e, o.UpdatedAt)
	if o.Items != nil {
		e.FieldStart("items")
		e.ArrStart()
		for i := range o.Items {
			encodeOrderItem(e, &o.Items[i])
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

func encodeOrderPage(e *jx.Encoder, res paging.Result[order.Order]) {
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for i := range res.Items {
		encodeOrder(e, &res.Items[i])
	}
	e.ArrEnd()
	e.FieldStart("pagination")
	encodePagination(e, res.Total, res.Page, res.HasMore())
	e.ObjEnd()
}

func encodeUser(e *jx.Encoder, u *auth.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(u.ID)
	e.FieldStart("mobile")
	e.Str(u.Mobile)
	e.FieldStart("email")
	if u.Email == "" {
		e.Null()
	} else {
		e.Str(u.Email)
	}
	e.FieldStart("name")
	e.Str(u.Name)
	e.FieldStart("address_line1")
	e.Str(u.AddressLine1)
	e.FieldStart("address_line2")
	e.Str(u.AddressLine2)
	e.FieldStart("city")
	e.Str(u.City)
	e.FieldStart("state")
	e.Str(u.State)
	e.FieldStart("pincode")
	e.Str(u.Pincode)
	e.FieldStart("is_verified")
	e.Bool(u.IsVerified)
	e.FieldStart("created_at")
	timestamp(e, u.CreatedAt)
	e.ObjEnd()
}

func encodeSession(e *jx.Encoder, u *auth.User, s *auth.Session) {
	e.ObjStart()
	e.FieldStart("user")
	encodeUser(e, u)
	e.FieldStart("token")
	e.Str(s.Token)
	e.FieldStart("expires_at")
	timestamp(e, s.ExpiresAt)
	e.ObjEnd()
}

func encodeMessage(e *jx.Encoder, msg string) {
	e.ObjStart()
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
}
