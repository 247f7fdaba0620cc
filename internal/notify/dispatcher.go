package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/contact"
	"github.com/xenking/storefront/internal/domain/order"
)

var (
	_ order.Notifier   = (*Dispatcher)(nil)
	_ contact.Notifier = (*Dispatcher)(nil)
)

// UserLookup resolves the customer an order belongs to.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*auth.User, error)
}

// Dispatcher fans domain events out to the configured channels. Every
// channel is attempted; errors are combined.
type Dispatcher struct {
	users    UserLookup
	sms      *SMS
	mail     *Mailer
	tg       *Telegram
	timeout  time.Duration
	currency string
}

// NewDispatcher creates a Dispatcher. Each send is bounded by timeout.
func NewDispatcher(users UserLookup, sms *SMS, mail *Mailer, tg *Telegram, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		users:    users,
		sms:      sms,
		mail:     mail,
		tg:       tg,
		timeout:  timeout,
		currency: "Rs.",
	}
}

type orderMail struct {
	Name     string
	Order    *order.Order
	Reason   string
	Currency string
}

// OrderPlaced notifies the customer by SMS and email and alerts the admin.
func (d *Dispatcher) OrderPlaced(ctx context.Context, o *order.Order) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var errs error
	u, err := d.users.GetByID(ctx, o.UserID)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else {
		text := fmt.Sprintf("Your order %s for %s %s has been placed. Payment: %s.",
			o.Number, d.currency, o.FinalAmount.StringFixed(2), strings.ToUpper(string(o.PaymentMethod)))
		_, err := d.sms.Send(ctx, u.Mobile, text)
		errs = multierr.Append(errs, err)

		if u.Email != "" {
			errs = multierr.Append(errs, d.mail.Send(ctx, u.Email, "Order confirmation "+o.Number, "order_placed",
				orderMail{Name: u.Name, Order: o, Currency: d.currency}))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🛒 <b>New order %s</b>\n", html.EscapeString(o.Number))
	if u != nil {
		fmt.Fprintf(&b, "Customer: %s (%s)\n", html.EscapeString(u.Name), html.EscapeString(u.Mobile))
	}
	for _, it := range o.Items {
		fmt.Fprintf(&b, "• %s × %d = %s\n", html.EscapeString(it.ProductName), it.Quantity, it.TotalAmount.StringFixed(2))
	}
	fmt.Fprintf(&b, "Total: <b>%s %s</b> (%s)", d.currency, o.FinalAmount.StringFixed(2), o.PaymentMethod)
	errs = multierr.Append(errs, d.tg.SendToAdmin(ctx, b.String()))
	return errs
}

// OrderCancelled notifies the customer and the admin.
func (d *Dispatcher) OrderCancelled(ctx context.Context, o *order.Order, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var errs error
	u, err := d.users.GetByID(ctx, o.UserID)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else {
		_, err := d.sms.Send(ctx, u.Mobile, fmt.Sprintf("Your order %s has been cancelled.", o.Number))
		errs = multierr.Append(errs, err)
		if u.Email != "" {
			errs = multierr.Append(errs, d.mail.Send(ctx, u.Email, "Order cancelled "+o.Number, "order_cancelled",
				orderMail{Name: u.Name, Order: o, Reason: reason, Currency: d.currency}))
		}
	}
	errs = multierr.Append(errs, d.tg.SendToAdmin(ctx, fmt.Sprintf("❌ <b>Order %s cancelled</b>\nReason: %s",
		html.EscapeString(o.Number), html.EscapeString(reason))))
	return errs
}

// OrderStatusChanged tells the customer about the new status by SMS.
func (d *Dispatcher) OrderStatusChanged(ctx context.Context, o *order.Order) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	u, err := d.users.GetByID(ctx, o.UserID)
	if err != nil {
		return err
	}
	_, err = d.sms.Send(ctx, u.Mobile, fmt.Sprintf("Your order %s is now %s.", o.Number, o.Status))
	return err
}

// ContactReceived mails the message to the store admin and posts an alert.
func (d *Dispatcher) ContactReceived(ctx context.Context, m *contact.Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var errs error
	if to := d.mail.AdminEmail(); to != "" {
		errs = multierr.Append(errs, d.mail.Send(ctx, to, "Contact: "+m.Subject, "contact", m))
	}
	errs = multierr.Append(errs, d.tg.SendToAdmin(ctx, fmt.Sprintf("✉️ <b>%s</b>\nFrom: %s &lt;%s&gt;\n%s",
		html.EscapeString(m.Subject), html.EscapeString(m.Name), html.EscapeString(m.Email), html.EscapeString(m.Message))))
	return errs
}
