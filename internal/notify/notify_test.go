package notify_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/contact"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/notify"
	"github.com/xenking/storefront/internal/storage/memstore"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

type gateway struct {
	mu   sync.Mutex
	reqs []recorded
	srv  *httptest.Server
}

func newGateway(t *testing.T, status int, reply string) *gateway {
	t.Helper()
	g := &gateway{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.reqs = append(g.reqs, recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		g.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *gateway) requests() []recorded {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]recorded(nil), g.reqs...)
}

func field(t *testing.T, body, key string) string {
	t.Helper()
	var out string
	err := jx.DecodeStr(body).ObjBytes(func(d *jx.Decoder, k []byte) error {
		if string(k) != key {
			return d.Skip()
		}
		raw, err := d.Raw()
		out = raw.String()
		return err
	})
	require.NoError(t, err)
	return out
}

func TestSMS_Send(t *testing.T) {
	g := newGateway(t, http.StatusOK, `{"message_id":"m-1","extra":true}`)
	sms := notify.NewSMS(notify.SMSConfig{URL: g.srv.URL, APIKey: "k", SenderID: "SHOP", Timeout: time.Second}, nil)

	id, err := sms.Send(context.Background(), "9876543210", "hello")
	require.NoError(t, err)
	assert.Equal(t, "m-1", id)

	reqs := g.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/send", reqs[0].Path)
	assert.Equal(t, "Bearer k", reqs[0].Auth)
	assert.Equal(t, `"SHOP"`, field(t, reqs[0].Body, "sender"))
	assert.Equal(t, `"9876543210"`, field(t, reqs[0].Body, "to"))
	assert.Equal(t, `"hello"`, field(t, reqs[0].Body, "message"))
}

func TestSMS_SendBulk(t *testing.T) {
	g := newGateway(t, http.StatusOK, `{"accepted":2}`)
	sms := notify.NewSMS(notify.SMSConfig{URL: g.srv.URL, Timeout: time.Second}, nil)

	n, err := sms.SendBulk(context.Background(), []string{"9876543210", "9123456789"}, "sale")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	reqs := g.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/bulk", reqs[0].Path)
	assert.Equal(t, `["9876543210","9123456789"]`, field(t, reqs[0].Body, "to"))

	n, err = sms.SendBulk(context.Background(), nil, "sale")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, g.requests(), 1)
}

func TestSMS_DeliveryStatus(t *testing.T) {
	g := newGateway(t, http.StatusOK, `{"id":"m 1","status":"delivered"}`)
	sms := notify.NewSMS(notify.SMSConfig{URL: g.srv.URL + "/", Timeout: time.Second}, nil)

	status, err := sms.DeliveryStatus(context.Background(), "m 1")
	require.NoError(t, err)
	assert.Equal(t, "delivered", status)

	reqs := g.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "/status", reqs[0].Path)
	assert.Equal(t, "id=m+1", reqs[0].Query)
}

func TestSMS_GatewayError(t *testing.T) {
	g := newGateway(t, http.StatusBadGateway, `upstream down`)
	sms := notify.NewSMS(notify.SMSConfig{URL: g.srv.URL, Timeout: time.Second}, nil)

	err := sms.SendOTP(context.Background(), "9876543210", "123456", 10*time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSMS_SendOTPText(t *testing.T) {
	g := newGateway(t, http.StatusOK, `{}`)
	sms := notify.NewSMS(notify.SMSConfig{URL: g.srv.URL, Timeout: time.Second}, nil)

	require.NoError(t, sms.SendOTP(context.Background(), "9876543210", "482913", 10*time.Minute))
	reqs := g.requests()
	require.Len(t, reqs, 1)
	msg := field(t, reqs[0].Body, "message")
	assert.Contains(t, msg, "482913")
	assert.Contains(t, msg, "10 minutes")
}

func TestSMS_Disabled(t *testing.T) {
	sms := notify.NewSMS(notify.SMSConfig{}, nil)
	assert.False(t, sms.Enabled())

	id, err := sms.Send(context.Background(), "9876543210", "hi")
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = sms.DeliveryStatus(context.Background(), "x")
	assert.Error(t, err)
}

func TestTelegram_SendToAdmin(t *testing.T) {
	g := newGateway(t, http.StatusOK, `{"ok":true}`)
	tg := notify.NewTelegram(notify.TelegramConfig{
		BotToken:    "123:abc",
		AdminChatID: "-100",
		BaseURL:     g.srv.URL,
		Timeout:     time.Second,
	}, nil)

	require.NoError(t, tg.SendToAdmin(context.Background(), "<b>hi</b>"))
	reqs := g.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/bot123:abc/sendMessage", reqs[0].Path)
	assert.Equal(t, `"-100"`, field(t, reqs[0].Body, "chat_id"))
	assert.Equal(t, `"HTML"`, field(t, reqs[0].Body, "parse_mode"))
}

func TestTelegram_ErrorHidesToken(t *testing.T) {
	g := newGateway(t, http.StatusUnauthorized, `{"ok":false}`)
	tg := notify.NewTelegram(notify.TelegramConfig{BotToken: "secret-token", AdminChatID: "1", BaseURL: g.srv.URL}, nil)

	err := tg.SendToAdmin(context.Background(), "x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestTelegram_Disabled(t *testing.T) {
	tg := notify.NewTelegram(notify.TelegramConfig{BotToken: "t"}, nil)
	assert.False(t, tg.Enabled())
	assert.NoError(t, tg.SendToAdmin(context.Background(), "x"))
}

// smtpServer is a minimal SMTP server that accepts one message per
// connection and records it.
type smtpServer struct {
	ln   net.Listener
	mu   sync.Mutex
	rcpt []string
	data []string
}

func newSMTPServer(t *testing.T) *smtpServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &smtpServer{ln: ln}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *smtpServer) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *smtpServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *smtpServer) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = io.WriteString(conn, line+"\r\n") }

	reply("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			s.mu.Lock()
			s.rcpt = append(s.rcpt, strings.TrimSpace(line[len("RCPT TO:"):]))
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = append(s.data, b.String())
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func (s *smtpServer) messages() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.rcpt...), append([]string(nil), s.data...)
}

func sampleOrder() *order.Order {
	return &order.Order{
		ID:              1,
		Number:          "ORD20240102000001",
		UserID:          1,
		TotalAmount:     decimal.RequireFromString("600"),
		DiscountAmount:  decimal.RequireFromString("60"),
		ShippingAmount:  decimal.Zero,
		FinalAmount:     decimal.RequireFromString("540"),
		PaymentMethod:   order.PaymentCOD,
		Status:          order.StatusPending,
		ShippingAddress: "12 MG Road, Pune",
		Items: []order.Item{{
			ProductName: "Turmeric <Organic>",
			Weight:      "200g",
			Price:       decimal.RequireFromString("180"),
			Quantity:    3,
			TotalAmount: decimal.RequireFromString("540"),
		}},
	}
}

func TestMailer_Send(t *testing.T) {
	srv := newSMTPServer(t)
	m := notify.NewMailer(notify.MailConfig{
		Host:     "127.0.0.1",
		Port:     srv.port(),
		From:     "shop@example.com",
		FromName: "Spice Shop",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := m.Send(ctx, "asha@example.com", "Order confirmation", "order_placed", struct {
		Name     string
		Order    *order.Order
		Reason   string
		Currency string
	}{Name: "Asha", Order: sampleOrder(), Currency: "Rs."})
	require.NoError(t, err)

	rcpt, data := srv.messages()
	require.Len(t, data, 1)
	assert.Equal(t, []string{"<asha@example.com>"}, rcpt)
	assert.Contains(t, data[0], "To: asha@example.com")
	assert.Contains(t, data[0], "Content-Type: text/html")
	assert.Contains(t, data[0], "ORD20240102000001")
	assert.Contains(t, data[0], "Rs. 540.00")
	assert.Contains(t, data[0], "Turmeric &lt;Organic&gt;")
}

func TestMailer_UnknownTemplate(t *testing.T) {
	m := notify.NewMailer(notify.MailConfig{Host: "127.0.0.1", Port: 1})
	err := m.Send(context.Background(), "a@example.com", "x", "missing", nil)
	assert.Error(t, err)
}

func TestMailer_Disabled(t *testing.T) {
	m := notify.NewMailer(notify.MailConfig{})
	assert.False(t, m.Enabled())
	assert.NoError(t, m.Send(context.Background(), "a@example.com", "x", "missing", nil))
}

func TestDispatcher(t *testing.T) {
	store := memstore.New()
	users := store.Users()
	u := &auth.User{Mobile: "9876543210", Email: "asha@example.com", Name: "Asha", IsVerified: true}
	require.NoError(t, users.Create(context.Background(), u))

	smsGW := newGateway(t, http.StatusOK, `{"message_id":"m"}`)
	tgGW := newGateway(t, http.StatusOK, `{"ok":true}`)
	smtpSrv := newSMTPServer(t)

	d := notify.NewDispatcher(users,
		notify.NewSMS(notify.SMSConfig{URL: smsGW.srv.URL, Timeout: time.Second}, nil),
		notify.NewMailer(notify.MailConfig{Host: "127.0.0.1", Port: smtpSrv.port(), From: "shop@example.com", AdminEmail: "admin@example.com"}),
		notify.NewTelegram(notify.TelegramConfig{BotToken: "t", AdminChatID: "1", BaseURL: tgGW.srv.URL}, nil),
		5*time.Second,
	)

	t.Run("OrderPlaced", func(t *testing.T) {
		o := sampleOrder()
		o.UserID = u.ID
		require.NoError(t, d.OrderPlaced(context.Background(), o))

		sms := smsGW.requests()
		require.Len(t, sms, 1)
		assert.Equal(t, `"9876543210"`, field(t, sms[0].Body, "to"))
		assert.Contains(t, field(t, sms[0].Body, "message"), "ORD20240102000001")

		tg := tgGW.requests()
		require.Len(t, tg, 1)
		assert.Contains(t, field(t, tg[0].Body, "text"), "Turmeric &lt;Organic&gt;")

		rcpt, _ := smtpSrv.messages()
		assert.Equal(t, []string{"<asha@example.com>"}, rcpt)
	})

	t.Run("ContactReceived", func(t *testing.T) {
		err := d.ContactReceived(context.Background(), &contact.Message{
			Name: "Ravi", Email: "ravi@example.com", Subject: "Bulk order", Message: "Need 10kg",
		})
		require.NoError(t, err)

		rcpt, data := smtpSrv.messages()
		require.Len(t, rcpt, 2)
		assert.Equal(t, "<admin@example.com>", rcpt[1])
		assert.Contains(t, data[1], "Need 10kg")
	})

	t.Run("UnknownUser", func(t *testing.T) {
		o := sampleOrder()
		o.UserID = 999
		before := len(tgGW.requests())
		err := d.OrderCancelled(context.Background(), o, "Cancelled by store")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
		// Admin alert still goes out.
		assert.Len(t, tgGW.requests(), before+1)
	})

	t.Run("StatusChanged", func(t *testing.T) {
		o := sampleOrder()
		o.UserID = u.ID
		o.Status = order.StatusShipped
		before := len(smsGW.requests())
		require.NoError(t, d.OrderStatusChanged(context.Background(), o))
		sms := smsGW.requests()
		require.Len(t, sms, before+1)
		assert.Contains(t, field(t, sms[before].Body, "message"), "shipped")
	})
}
