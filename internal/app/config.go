package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/notify"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `default:"" usage:"Redis connection URL (STORE_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (STORE_API_KEY_PEPPER)" flag:"api-key-pepper"`

	Session  SessionConfig
	OTP      OTPConfig
	Pricing  PricingConfig
	Orders   OrdersConfig
	SMS      notify.SMSConfig
	Mail     notify.MailConfig
	Telegram notify.TelegramConfig
	Notify   NotifyConfig

	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// SessionConfig controls login sessions.
type SessionConfig struct {
	Secret       string        `usage:"HMAC secret for session tokens (STORE_SESSION_SECRET)"`
	TTL          time.Duration `default:"720h" usage:"Session lifetime"`
	CookieName   string        `default:"storefront_session" usage:"Session cookie name"`
	CookieSecure bool          `default:"false" usage:"Mark the session cookie Secure" flag:"cookie-secure"`
}

// OTPConfig controls one-time passwords.
type OTPConfig struct {
	Length     int           `default:"6"`
	Expiry     time.Duration `default:"5m"`
	RateLimit  int           `default:"3" usage:"OTP requests allowed per mobile per window"`
	RateWindow time.Duration `default:"1h"`
	Expose     bool          `default:"false" usage:"Return OTP codes in API responses (development only)" flag:"otp-expose"`
}

// PricingConfig holds store-wide cart thresholds in rupees.
type PricingConfig struct {
	FreeShippingThreshold string `default:"500" usage:"Subtotal at which shipping becomes free"`
	ShippingCharge        string `default:"50" usage:"Flat shipping charge below the threshold"`
	MinimumOrder          string `default:"100" usage:"Minimum subtotal for checkout"`
}

// OrdersConfig holds order numbering and payment settings.
type OrdersConfig struct {
	NumberPrefix string `default:"ORD" usage:"Order number prefix"`
	CODCharge    string `default:"0" usage:"Cash on delivery surcharge"`
}

// NotifyConfig controls outbound notification calls.
type NotifyConfig struct {
	Timeout time.Duration `default:"10s" usage:"Upper bound for one notification fan-out"`
}

// RateLimitConfig controls the per-client API rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
	Shared bool          `default:"false" usage:"Count requests in Redis across instances"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// Money holds parsed pricing amounts.
type Money struct {
	FreeShippingThreshold decimal.Decimal
	ShippingCharge        decimal.Decimal
	MinimumOrder          decimal.Decimal
	CODCharge             decimal.Decimal
}

// LoadConfig loads configuration from a .env file, environment variables,
// YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if c.RedisURL == "" {
		return errors.New("redis URL is required: set STORE_REDIS_URL or REDIS_URL")
	}
	if len(c.Session.Secret) < 32 {
		return errors.New("session secret must be at least 32 bytes: set STORE_SESSION_SECRET")
	}
	if _, err := c.Money(); err != nil {
		return err
	}
	return nil
}

// Money parses the configured amounts.
func (c *Config) Money() (Money, error) {
	var (
		m   Money
		err error
	)
	for _, f := range []struct {
		name string
		in   string
		out  *decimal.Decimal
	}{
		{"pricing.free_shipping_threshold", c.Pricing.FreeShippingThreshold, &m.FreeShippingThreshold},
		{"pricing.shipping_charge", c.Pricing.ShippingCharge, &m.ShippingCharge},
		{"pricing.minimum_order", c.Pricing.MinimumOrder, &m.MinimumOrder},
		{"orders.cod_charge", c.Orders.CODCharge, &m.CODCharge},
	} {
		*f.out, err = decimal.NewFromString(f.in)
		if err != nil {
			return Money{}, errors.Wrapf(err, "parse %s", f.name)
		}
		if f.out.IsNegative() {
			return Money{}, errors.Errorf("%s must not be negative", f.name)
		}
	}
	return m, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
