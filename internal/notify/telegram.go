package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TelegramConfig configures admin alerts through the Telegram Bot API.
type TelegramConfig struct {
	BotToken    string        `default:"" usage:"Telegram bot token, empty disables admin alerts"`
	AdminChatID string        `default:"" usage:"Telegram chat id that receives admin alerts"`
	BaseURL     string        `default:"https://api.telegram.org" usage:"Telegram Bot API base URL"`
	Timeout     time.Duration `default:"10s"`
}

// Telegram posts HTML formatted messages to an admin chat.
type Telegram struct {
	cfg    TelegramConfig
	client *http.Client
}

// NewTelegram creates a Telegram client. A nil transport uses the default one.
func NewTelegram(cfg TelegramConfig, transport http.RoundTripper) *Telegram {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	return &Telegram{
		cfg: cfg,
		client: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   cfg.Timeout,
		},
	}
}

// Enabled reports whether both the token and the admin chat are set.
func (t *Telegram) Enabled() bool { return t.cfg.BotToken != "" && t.cfg.AdminChatID != "" }

// SendToAdmin sends text to the admin chat.
func (t *Telegram) SendToAdmin(ctx context.Context, text string) error {
	if !t.Enabled() {
		zctx.From(ctx).Debug("Telegram not configured, admin alert dropped")
		return nil
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("chat_id")
	e.Str(t.cfg.AdminChatID)
	e.FieldStart("text")
	e.Str(text)
	e.FieldStart("parse_mode")
	e.Str("HTML")
	e.ObjEnd()

	endpoint := strings.TrimRight(t.cfg.BaseURL, "/") + "/bot" + t.cfg.BotToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(e.Bytes()))
	if err != nil {
		return errors.Wrap(err, "build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL embeds the bot token.
		return errors.New("telegram request failed")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}
