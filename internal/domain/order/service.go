package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
)

// Sentinel errors for order operations.
var (
	ErrNotFound          = errors.New("order not found")
	ErrNotCancellable    = errors.New("order cannot be cancelled")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrCreateFailed      = errors.New("failed to create order")
	ErrAddressRequired   = errors.New("shipping address is required")
)

// ValidationError carries the cart problems that blocked checkout.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Cart is the subset of the cart service used by checkout and reorder.
type Cart interface {
	Validate(ctx context.Context, userID int64) (*cart.Validation, error)
	AddItem(ctx context.Context, userID, productID int64, qty int) error
	Clear(ctx context.Context, userID int64) error
}

// Config holds order pricing and numbering settings.
type Config struct {
	NumberPrefix string
	CODCharge    decimal.Decimal
}

// CreateRequest is the checkout input.
type CreateRequest struct {
	ShippingAddress string
	PaymentMethod   PaymentMethod
	Notes           string
}

// ReorderResult summarizes a partial or full reorder.
type ReorderResult struct {
	Added   int
	Skipped []string
	Message string
}

// Option configures a Service.
type Option func(*Service)

// WithMeterProvider sets the meter provider for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider for order spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithClock overrides the time source used for order numbers and notes.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service encapsulates checkout and order lifecycle logic.
type Service struct {
	orders   Repository
	cart     Cart
	notifier Notifier
	cfg      Config
	now      func() time.Time

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	placed         metric.Int64Counter
	cancelled      metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(orders Repository, c Cart, notifier Notifier, cfg Config, opts ...Option) (*Service, error) {
	s := &Service{
		orders:   orders,
		cart:     c,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.meterProvider == nil {
		s.meterProvider = otel.GetMeterProvider()
	}
	if s.tracerProvider == nil {
		s.tracerProvider = otel.GetTracerProvider()
	}

	const name = "github.com/xenking/storefront/internal/domain/order"
	s.tracer = s.tracerProvider.Tracer(name)
	meter := s.meterProvider.Meter(name)

	var err error
	if s.placed, err = meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders successfully placed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	if s.cancelled, err = meter.Int64Counter("storefront.orders.cancelled",
		metric.WithDescription("Orders cancelled"),
	); err != nil {
		return nil, errors.Wrap(err, "orders cancelled counter")
	}
	return s, nil
}

// Create turns the user's validated cart into an order. Order and item rows,
// stock decrements and cart clearing are committed atomically.
func (s *Service) Create(ctx context.Context, userID int64, req CreateRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	if strings.TrimSpace(req.ShippingAddress) == "" {
		return nil, ErrAddressRequired
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = PaymentCOD
	}

	v, err := s.cart.Validate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "validate cart")
	}
	if !v.Valid {
		return nil, &ValidationError{Messages: v.Errors}
	}

	sum := v.Summary
	o := &Order{
		UserID:          userID,
		TotalAmount:     sum.MRPTotal,
		DiscountAmount:  sum.DiscountAmount,
		ShippingAmount:  sum.Shipping,
		PaymentMethod:   req.PaymentMethod,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		Notes:           strings.TrimSpace(req.Notes),
	}
	if o.PaymentMethod == PaymentCOD {
		o.ShippingAmount = o.ShippingAmount.Add(s.cfg.CODCharge)
	}
	o.FinalAmount = o.TotalAmount.Sub(o.DiscountAmount).Add(o.ShippingAmount)

	err = s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		seq, err := tx.NextSequence(ctx)
		if err != nil {
			return errors.Wrap(err, "next order number")
		}
		o.Number = FormatNumber(s.cfg.NumberPrefix, s.now(), seq)
		if err := tx.Insert(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}

		o.Items = make([]Item, 0, len(v.Items))
		for _, line := range v.Items {
			it := Item{
				OrderID:     o.ID,
				ProductID:   line.Product.ID,
				ProductName: line.Product.Name,
				Weight:      line.Product.Weight,
				Price:       line.Product.FinalPrice(),
				Quantity:    line.Quantity,
				TotalAmount: line.LineTotal(),
			}
			if err := tx.InsertItem(ctx, &it); err != nil {
				return errors.Wrapf(err, "insert item %d", it.ProductID)
			}
			if err := tx.AdjustStock(ctx, it.ProductID, -it.Quantity); err != nil {
				if errors.Is(err, product.ErrInsufficientStock) {
					unavailable := &cart.ProductUnavailableError{
						ProductID: it.ProductID,
						Name:      it.ProductName,
						Requested: it.Quantity,
					}
					var se *product.StockError
					if errors.As(err, &se) {
						unavailable.Available = se.Available
					}
					return unavailable
				}
				return errors.Wrapf(err, "decrement stock %d", it.ProductID)
			}
			o.Items = append(o.Items, it)
		}
		o.ItemCount = len(o.Items)

		if err := tx.ClearCart(ctx, userID); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order")
		if errors.Is(err, product.ErrInsufficientStock) {
			return nil, err
		}
		zctx.From(ctx).Error("Create order failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, ErrCreateFailed
	}

	span.SetAttributes(attribute.String("order.number", o.Number))
	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(o.PaymentMethod))))
	zctx.From(ctx).Info("Order placed",
		zap.String("order_number", o.Number),
		zap.Int64("user_id", userID),
		zap.String("final_amount", o.FinalAmount.StringFixed(2)),
	)
	if err := s.notifier.OrderPlaced(ctx, o); err != nil {
		zctx.From(ctx).Warn("Order placed notification failed", zap.String("order_number", o.Number), zap.Error(err))
	}
	return o, nil
}

// Cancel cancels an order owned by userID and restores its stock.
func (s *Service) Cancel(ctx context.Context, userID, orderID int64, reason string) (*Order, error) {
	return s.cancel(ctx, userID, orderID, reason)
}

// cancel restores stock and appends a note in one transaction. ownerID 0
// skips the ownership check.
func (s *Service) cancel(ctx context.Context, ownerID, orderID int64, reason string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Cancel", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Cancelled by customer"
	}

	var o *Order
	err := s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		o, err = tx.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		if ownerID != 0 && o.UserID != ownerID {
			return ErrNotFound
		}
		if !o.Status.Cancellable() {
			return ErrNotCancellable
		}

		items, err := tx.Items(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "order items")
		}
		for _, it := range items {
			if err := tx.AdjustStock(ctx, it.ProductID, it.Quantity); err != nil {
				return errors.Wrapf(err, "restore stock %d", it.ProductID)
			}
		}

		note := fmt.Sprintf("[%s] Cancelled: %s", s.now().Format("2006-01-02 15:04:05"), reason)
		if o.Notes != "" {
			note = o.Notes + "\n" + note
		}
		if err := tx.SetStatus(ctx, o.ID, StatusCancelled, note); err != nil {
			return errors.Wrap(err, "set status")
		}
		o.Status = StatusCancelled
		o.Notes = note

		if o.PaymentStatus == PaymentPaid {
			if err := tx.SetPaymentStatus(ctx, o.ID, PaymentRefunded); err != nil {
				return errors.Wrap(err, "set payment status")
			}
			o.PaymentStatus = PaymentRefunded
		}
		o.Items = items
		o.ItemCount = len(items)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cancelled.Add(ctx, 1)
	zctx.From(ctx).Info("Order cancelled", zap.String("order_number", o.Number), zap.String("reason", reason))
	if err := s.notifier.OrderCancelled(ctx, o, reason); err != nil {
		zctx.From(ctx).Warn("Order cancelled notification failed", zap.String("order_number", o.Number), zap.Error(err))
	}
	return o, nil
}

// Reorder replaces the user's cart with the lines of a past order. Lines
// that can no longer be fulfilled are skipped and named in the result.
func (s *Service) Reorder(ctx context.Context, userID, orderID int64) (*ReorderResult, error) {
	o, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.cart.Clear(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}

	res := &ReorderResult{}
	for _, it := range o.Items {
		err := s.cart.AddItem(ctx, userID, it.ProductID, it.Quantity)
		switch {
		case err == nil:
			res.Added++
		case errors.Is(err, product.ErrInsufficientStock), errors.Is(err, product.ErrNotFound):
			res.Skipped = append(res.Skipped, it.ProductName)
		default:
			return nil, errors.Wrapf(err, "add product %d", it.ProductID)
		}
	}

	switch {
	case len(res.Skipped) == 0:
		res.Message = fmt.Sprintf("%d item(s) added to cart", res.Added)
	case res.Added == 0:
		res.Message = "None of the items are currently available: " + strings.Join(res.Skipped, ", ")
	default:
		res.Message = fmt.Sprintf("%d item(s) added to cart. Unavailable: %s", res.Added, strings.Join(res.Skipped, ", "))
	}
	return res, nil
}

// UpdateStatus moves an order forward through the state machine. Moving to
// cancelled restores stock like a customer cancellation.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, to Status) (*Order, error) {
	if to == StatusCancelled {
		return s.cancel(ctx, 0, orderID, "Cancelled by store")
	}

	var o *Order
	err := s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		o, err = tx.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransition(to) {
			return &TransitionError{From: o.Status, To: to}
		}
		if err := tx.SetStatus(ctx, o.ID, to, o.Notes); err != nil {
			return errors.Wrap(err, "set status")
		}
		o.Status = to
		// Cash is collected on delivery.
		if to == StatusDelivered && o.PaymentMethod == PaymentCOD && o.PaymentStatus == PaymentPending {
			if err := tx.SetPaymentStatus(ctx, o.ID, PaymentPaid); err != nil {
				return errors.Wrap(err, "set payment status")
			}
			o.PaymentStatus = PaymentPaid
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.OrderStatusChanged(ctx, o); err != nil {
		zctx.From(ctx).Warn("Order status notification failed", zap.String("order_number", o.Number), zap.Error(err))
	}
	return o, nil
}

// UpdatePaymentStatus records a payment settlement change.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID int64, ps PaymentStatus) (*Order, error) {
	var o *Order
	err := s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		o, err = tx.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.SetPaymentStatus(ctx, o.ID, ps); err != nil {
			return errors.Wrap(err, "set payment status")
		}
		o.PaymentStatus = ps
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Get returns an order owned by userID.
func (s *Service) Get(ctx context.Context, userID, orderID int64) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// Track looks up an order owned by userID by its order number.
func (s *Service) Track(ctx context.Context, userID int64, number string) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListByUser returns one page of the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64, page paging.Page) (paging.Result[Order], error) {
	return s.List(ctx, ListFilter{UserID: userID, Page: page})
}

// List returns one page of orders across all users.
func (s *Service) List(ctx context.Context, f ListFilter) (paging.Result[Order], error) {
	f.Page = paging.New(f.Page.Limit, f.Page.Offset)
	items, total, err := s.orders.List(ctx, f)
	if err != nil {
		return paging.Result[Order]{}, errors.Wrap(err, "list orders")
	}
	return paging.Result[Order]{Items: items, Total: total, Page: f.Page}, nil
}
