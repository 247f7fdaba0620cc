package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/paging"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// validNext lists the forward transitions allowed from each status.
var validNext = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch v := Status(s); v {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return v, nil
	default:
		return "", errors.Errorf("unknown order status %q", s)
	}
}

// CanTransition reports whether the state machine allows s -> to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range validNext[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s Status) Cancellable() bool {
	return s.CanTransition(StatusCancelled)
}

// PaymentStatus tracks settlement of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// ParsePaymentStatus validates a payment status string.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch v := PaymentStatus(s); v {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return v, nil
	default:
		return "", errors.Errorf("unknown payment status %q", s)
	}
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

// ParsePaymentMethod validates a payment method; empty means cash on delivery.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch v := PaymentMethod(strings.ToLower(s)); v {
	case "":
		return PaymentCOD, nil
	case PaymentCOD, PaymentOnline:
		return v, nil
	default:
		return "", errors.Errorf("unknown payment method %q", s)
	}
}

// Order is an immutable purchase record. Only Status, PaymentStatus and
// Notes change after creation.
type Order struct {
	ID     int64
	Number string
	UserID int64

	// TotalAmount is the gross amount at regular prices.
	TotalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	// ShippingAmount includes the cash-on-delivery surcharge.
	ShippingAmount decimal.Decimal
	FinalAmount    decimal.Decimal

	PaymentMethod   PaymentMethod
	Status          Status
	PaymentStatus   PaymentStatus
	ShippingAddress string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Items     []Item
	ItemCount int
}

// Item is a snapshot of a product line at the time the order was placed.
type Item struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Weight      string
	Price       decimal.Decimal
	Quantity    int
	TotalAmount decimal.Decimal
}

// FormatNumber builds the human-readable order number from a prefix, the
// order date and a database sequence value.
func FormatNumber(prefix string, at time.Time, seq int64) string {
	return fmt.Sprintf("%s%s%06d", prefix, at.Format("20060102"), seq)
}

// ListFilter narrows order listings. Zero values mean "no constraint".
type ListFilter struct {
	UserID int64
	Status Status
	Page   paging.Page
}

// Tx is the unit of work used for order mutations. All calls on one Tx
// commit or roll back together.
type Tx interface {
	NextSequence(ctx context.Context) (int64, error)
	// Insert stores o and sets its ID and timestamps.
	Insert(ctx context.Context, o *Order) error
	InsertItem(ctx context.Context, it *Item) error
	// AdjustStock applies a conditional stock delta. It returns
	// product.ErrInsufficientStock when stock would become negative.
	AdjustStock(ctx context.Context, productID int64, delta int) error
	ClearCart(ctx context.Context, userID int64) error
	// Lock reads an order row and holds it until the transaction ends.
	Lock(ctx context.Context, id int64) (*Order, error)
	Items(ctx context.Context, orderID int64) ([]Item, error)
	SetStatus(ctx context.Context, id int64, status Status, notes string) error
	SetPaymentStatus(ctx context.Context, id int64, status PaymentStatus) error
}

// Repository defines persistence operations for orders.
type Repository interface {
	// InTx runs fn in a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// GetByID returns the order with its items, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Order, error)
	// GetByNumber returns the order with its items, or ErrNotFound.
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// List returns orders newest first without items, and the total count.
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
}

// Notifier is told about order lifecycle events after they are committed.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *Order) error
	OrderCancelled(ctx context.Context, o *Order, reason string) error
	OrderStatusChanged(ctx context.Context, o *Order) error
}
