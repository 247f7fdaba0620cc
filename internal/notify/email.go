package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
)

// MailConfig configures the SMTP mailer.
type MailConfig struct {
	Host       string `default:"" usage:"SMTP host, empty disables email"`
	Port       int    `default:"587"`
	Username   string `default:""`
	Password   string `default:""`
	From       string `default:"orders@storefront.local"`
	FromName   string `default:"Storefront"`
	AdminEmail string `default:"" usage:"Address that receives contact form messages"`
}

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`
{{define "order_placed"}}<html><body style="font-family:sans-serif">
<h2>Thank you for your order, {{.Name}}!</h2>
<p>Your order <strong>{{.Order.Number}}</strong> has been placed.</p>
<table cellpadding="6" style="border-collapse:collapse">
<tr><th>#</th><th align="left">Item</th><th>Qty</th><th align="right">Total</th></tr>
{{range $i, $it := .Order.Items}}<tr><td>{{inc $i}}</td><td>{{$it.ProductName}}{{if $it.Weight}} ({{$it.Weight}}){{end}}</td><td align="center">{{$it.Quantity}}</td><td align="right">{{$.Currency}} {{$it.TotalAmount.StringFixed 2}}</td></tr>
{{end}}</table>
<p>Items: {{$.Currency}} {{.Order.TotalAmount.StringFixed 2}}<br>
Discount: {{$.Currency}} {{.Order.DiscountAmount.StringFixed 2}}<br>
Shipping: {{$.Currency}} {{.Order.ShippingAmount.StringFixed 2}}<br>
<strong>Total: {{$.Currency}} {{.Order.FinalAmount.StringFixed 2}}</strong></p>
<p>Payment: {{.Order.PaymentMethod}}</p>
<p>Ship to:<br>{{.Order.ShippingAddress}}</p>
</body></html>{{end}}

{{define "order_cancelled"}}<html><body style="font-family:sans-serif">
<h2>Order {{.Order.Number}} cancelled</h2>
<p>Hi {{.Name}}, your order has been cancelled.</p>
{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
</body></html>{{end}}

{{define "contact"}}<html><body style="font-family:sans-serif">
<h2>New contact message</h2>
<p><strong>From:</strong> {{.Name}} &lt;{{.Email}}&gt;{{if .Phone}}, {{.Phone}}{{end}}</p>
<p><strong>Subject:</strong> {{.Subject}}</p>
<p>{{.Message}}</p>
</body></html>{{end}}
`))

// Mailer sends HTML email over SMTP.
type Mailer struct {
	cfg  MailConfig
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewMailer creates a Mailer.
func NewMailer(cfg MailConfig) *Mailer {
	var d net.Dialer
	return &Mailer{cfg: cfg, dial: d.DialContext}
}

// Enabled reports whether an SMTP host is configured.
func (m *Mailer) Enabled() bool { return m.cfg.Host != "" }

// AdminEmail returns the address for admin mail, if any.
func (m *Mailer) AdminEmail() string { return m.cfg.AdminEmail }

// Send renders the named template with data and mails it to one recipient.
func (m *Mailer) Send(ctx context.Context, to, subject, name string, data any) error {
	if !m.Enabled() {
		zctx.From(ctx).Debug("SMTP not configured, email dropped")
		return nil
	}
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name, data); err != nil {
		return errors.Wrapf(err, "render %s", name)
	}
	msg := m.compose(to, subject, body.Bytes(), time.Now())
	if err := m.deliver(ctx, to, msg); err != nil {
		return errors.Wrapf(err, "send %s to %s", name, to)
	}
	return nil
}

func (m *Mailer) compose(to, subject string, html []byte, now time.Time) []byte {
	var b bytes.Buffer
	from := m.cfg.From
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", m.cfg.FromName), m.cfg.From)
	}
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.NewString(), m.cfg.Host)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.Write(html)
	return b.Bytes()
}

func (m *Mailer) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	conn, err := m.dial(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "handshake")
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return errors.Wrap(err, "starttls")
		}
	}
	if m.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
				return errors.Wrap(err, "auth")
			}
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return errors.Wrap(err, "mail from")
	}
	if err := c.Rcpt(to); err != nil {
		return errors.Wrap(err, "rcpt")
	}
	w, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "data")
	}
	if _, err := w.Write(msg); err != nil {
		return errors.Wrap(err, "write body")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "close body")
	}
	return c.Quit()
}
