// Package notify delivers customer and admin notifications over SMS,
// email and Telegram.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
)

var _ auth.SMSSender = (*SMS)(nil)

// SMSConfig configures the SMS gateway.
type SMSConfig struct {
	URL      string        `default:"" usage:"SMS gateway base URL, empty disables SMS"`
	APIKey   string        `default:"" usage:"SMS gateway API key"`
	SenderID string        `default:"STORE" usage:"SMS sender id"`
	Timeout  time.Duration `default:"10s" usage:"SMS gateway request timeout"`
}

// SMS is a client for a JSON SMS gateway with single send, bulk send and
// delivery status endpoints.
type SMS struct {
	cfg    SMSConfig
	client *http.Client
}

// NewSMS creates an SMS client. A nil transport uses the default one.
func NewSMS(cfg SMSConfig, transport http.RoundTripper) *SMS {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &SMS{
		cfg: cfg,
		client: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   cfg.Timeout,
		},
	}
}

// Enabled reports whether a gateway is configured.
func (s *SMS) Enabled() bool { return s.cfg.URL != "" }

// Send sends text to one mobile number and returns the gateway message id.
func (s *SMS) Send(ctx context.Context, mobile, text string) (string, error) {
	if !s.Enabled() {
		zctx.From(ctx).Info("SMS gateway not configured, message dropped", zap.String("mobile", mask(mobile)))
		return "", nil
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("sender")
	e.Str(s.cfg.SenderID)
	e.FieldStart("to")
	e.Str(mobile)
	e.FieldStart("message")
	e.Str(text)
	e.ObjEnd()

	var id string
	err := s.do(ctx, http.MethodPost, "/send", e.Bytes(), func(d *jx.Decoder) error {
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "message_id" {
				return d.Skip()
			}
			v, err := d.Str()
			id = v
			return err
		})
	})
	if err != nil {
		return "", errors.Wrap(err, "send sms")
	}
	return id, nil
}

// SendBulk sends the same text to many numbers and returns how many the
// gateway accepted.
func (s *SMS) SendBulk(ctx context.Context, mobiles []string, text string) (int, error) {
	if len(mobiles) == 0 {
		return 0, nil
	}
	if !s.Enabled() {
		zctx.From(ctx).Info("SMS gateway not configured, bulk message dropped", zap.Int("recipients", len(mobiles)))
		return 0, nil
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("sender")
	e.Str(s.cfg.SenderID)
	e.FieldStart("to")
	e.ArrStart()
	for _, m := range mobiles {
		e.Str(m)
	}
	e.ArrEnd()
	e.FieldStart("message")
	e.Str(text)
	e.ObjEnd()

	var accepted int
	err := s.do(ctx, http.MethodPost, "/bulk", e.Bytes(), func(d *jx.Decoder) error {
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "accepted" {
				return d.Skip()
			}
			v, err := d.Int()
			accepted = v
			return err
		})
	})
	if err != nil {
		return 0, errors.Wrap(err, "send bulk sms")
	}
	return accepted, nil
}

// DeliveryStatus returns the gateway status for a sent message.
func (s *SMS) DeliveryStatus(ctx context.Context, messageID string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("sms gateway not configured")
	}
	var status string
	err := s.do(ctx, http.MethodGet, "/status?id="+url.QueryEscape(messageID), nil, func(d *jx.Decoder) error {
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "status" {
				return d.Skip()
			}
			v, err := d.Str()
			status = v
			return err
		})
	})
	if err != nil {
		return "", errors.Wrapf(err, "delivery status %s", messageID)
	}
	return status, nil
}

// SendOTP sends a login or registration code.
func (s *SMS) SendOTP(ctx context.Context, mobile, code string, ttl time.Duration) error {
	text := fmt.Sprintf("Your verification code is %s. It is valid for %d minutes. Do not share it with anyone.",
		code, int(ttl.Minutes()))
	_, err := s.Send(ctx, mobile, text)
	return err
}

func (s *SMS) do(ctx context.Context, method, path string, body []byte, decode func(*jx.Decoder) error) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(s.cfg.URL, "/")+path, r)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if decode == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := decode(jx.DecodeBytes(data)); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// mask hides all but the last four digits of a mobile number.
func mask(mobile string) string {
	if len(mobile) <= 4 {
		return mobile
	}
	return strings.Repeat("*", len(mobile)-4) + mobile[len(mobile)-4:]
}
