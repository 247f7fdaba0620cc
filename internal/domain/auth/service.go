package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Config holds OTP settings.
type Config struct {
	OTPLength int
	OTPExpiry time.Duration
	// RateLimit is the number of OTPs one mobile may request per RateWindow.
	RateLimit  int
	RateWindow time.Duration
	// Expose returns generated codes to the caller. Development only.
	Expose bool
}

// SendResult describes a generated OTP.
type SendResult struct {
	ExpiresIn time.Duration
	// Code is only set when Config.Expose is enabled.
	Code string
}

// RegisterRequest is the input for account creation.
type RegisterRequest struct {
	Mobile string
	OTP    string
	Name   string
	Email  string
}

// ProfileUpdate carries editable profile fields. Mobile is immutable.
type ProfileUpdate struct {
	Name         string
	Email        string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	Pincode      string
}

// Service implements OTP authentication and profile management.
type Service struct {
	users    UserRepository
	otps     OTPRepository
	limiter  RateLimiter
	sessions Sessions
	sms      SMSSender
	cfg      Config
	now      func() time.Time
	cost     int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for OTP expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHashCost sets the bcrypt cost for OTP hashes.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService creates an auth Service.
func NewService(
	users UserRepository,
	otps OTPRepository,
	limiter RateLimiter,
	sessions Sessions,
	sms SMSSender,
	cfg Config,
	opts ...Option,
) *Service {
	if cfg.OTPLength <= 0 {
		cfg.OTPLength = 6
	}
	if cfg.OTPExpiry <= 0 {
		cfg.OTPExpiry = 5 * time.Minute
	}
	s := &Service{
		users:    users,
		otps:     otps,
		limiter:  limiter,
		sessions: sessions,
		sms:      sms,
		cfg:      cfg,
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GenerateCode returns a random numeric code of the given length.
func GenerateCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for range length {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", errors.Wrap(err, "read random")
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// SendOTP generates, stores and sends an OTP for mobile. Registration OTPs
// require an unregistered mobile, login OTPs a verified user.
func (s *Service) SendOTP(ctx context.Context, mobile string, purpose Purpose) (*SendResult, error) {
	mobile, err := NormalizeMobile(mobile)
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetByMobile(ctx, mobile)
	switch {
	case err == nil:
		if purpose == PurposeRegistration {
			return nil, ErrMobileTaken
		}
		if !u.IsVerified {
			return nil, ErrNotVerified
		}
	case errors.Is(err, ErrUserNotFound):
		if purpose == PurposeLogin {
			return nil, ErrUserNotFound
		}
	default:
		return nil, errors.Wrap(err, "lookup user")
	}

	if s.cfg.RateLimit > 0 {
		ok, err := s.limiter.Allow(ctx, "otp:"+mobile, s.cfg.RateLimit, s.cfg.RateWindow)
		if err != nil {
			return nil, errors.Wrap(err, "rate limit")
		}
		if !ok {
			return nil, ErrRateLimited
		}
	}

	now := s.now()
	if _, err := s.otps.PurgeExpired(ctx, mobile, now); err != nil {
		zctx.From(ctx).Warn("Purge expired OTPs failed", zap.Error(err))
	}

	code, err := GenerateCode(s.cfg.OTPLength)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash otp")
	}
	if err := s.otps.Create(ctx, &OTP{
		Mobile:    mobile,
		Hash:      string(hash),
		Purpose:   purpose,
		ExpiresAt: now.Add(s.cfg.OTPExpiry),
	}); err != nil {
		return nil, errors.Wrap(err, "store otp")
	}

	if err := s.sms.SendOTP(ctx, mobile, code, s.cfg.OTPExpiry); err != nil {
		zctx.From(ctx).Warn("Send OTP failed", zap.String("purpose", string(purpose)), zap.Error(err))
	}

	res := &SendResult{ExpiresIn: s.cfg.OTPExpiry}
	if s.cfg.Expose {
		res.Code = code
	}
	return res, nil
}

// VerifyOTP consumes a matching unused, unexpired OTP. A code verifies at
// most once.
func (s *Service) VerifyOTP(ctx context.Context, mobile, code string, purpose Purpose) (bool, error) {
	mobile, err := NormalizeMobile(mobile)
	if err != nil {
		return false, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}

	active, err := s.otps.Active(ctx, mobile, purpose, s.now())
	if err != nil {
		return false, errors.Wrap(err, "active otps")
	}
	for _, o := range active {
		if bcrypt.CompareHashAndPassword([]byte(o.Hash), []byte(code)) != nil {
			continue
		}
		ok, err := s.otps.MarkUsed(ctx, o.ID)
		if err != nil {
			return false, errors.Wrap(err, "mark otp used")
		}
		return ok, nil
	}
	return false, nil
}

// Register creates a verified user after consuming a registration OTP and
// opens a session.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, *Session, error) {
	mobile, err := NormalizeMobile(req.Mobile)
	if err != nil {
		return nil, nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, nil, ErrNameRequired
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, nil, err
	}

	switch _, err := s.users.GetByMobile(ctx, mobile); {
	case err == nil:
		return nil, nil, ErrMobileTaken
	case !errors.Is(err, ErrUserNotFound):
		return nil, nil, errors.Wrap(err, "lookup user")
	}

	// Conflicts are checked before the code is consumed so the user can
	// retry with the same OTP. Create still reports a racing duplicate.
	if email != "" {
		switch _, err := s.users.GetByEmail(ctx, email); {
		case err == nil:
			return nil, nil, ErrEmailTaken
		case !errors.Is(err, ErrUserNotFound):
			return nil, nil, errors.Wrap(err, "lookup email")
		}
	}

	ok, err := s.VerifyOTP(ctx, mobile, req.OTP, PurposeRegistration)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrInvalidOTP
	}

	u := &User{
		Mobile:     mobile,
		Email:      email,
		Name:       name,
		IsVerified: true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, nil, errors.Wrap(err, "create user")
	}
	sess, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create session")
	}
	zctx.From(ctx).Info("User registered", zap.Int64("user_id", u.ID))
	return u, sess, nil
}

// Login opens a session for a verified user after consuming a login OTP.
func (s *Service) Login(ctx context.Context, mobile, code string) (*User, *Session, error) {
	mobile, err := NormalizeMobile(mobile)
	if err != nil {
		return nil, nil, err
	}
	u, err := s.users.GetByMobile(ctx, mobile)
	if err != nil {
		return nil, nil, err
	}
	if !u.IsVerified {
		return nil, nil, ErrNotVerified
	}

	ok, err := s.VerifyOTP(ctx, mobile, code, PurposeLogin)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrInvalidOTP
	}

	sess, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create session")
	}
	return u, sess, nil
}

// Logout revokes a session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return errors.Wrap(s.sessions.Revoke(ctx, token), "revoke session")
}

// CheckSession resolves a token to its user.
func (s *Service) CheckSession(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	userID, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.Profile(ctx, userID)
}

// Profile returns the user by id.
func (s *Service) Profile(ctx context.Context, userID int64) (*User, error) {
	return s.users.GetByID(ctx, userID)
}

// UpdateProfile overwrites the editable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, upd ProfileUpdate) (*User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(upd.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	email, err := normalizeEmail(upd.Email)
	if err != nil {
		return nil, err
	}

	u.Name = name
	u.Email = email
	u.AddressLine1 = strings.TrimSpace(upd.AddressLine1)
	u.AddressLine2 = strings.TrimSpace(upd.AddressLine2)
	u.City = strings.TrimSpace(upd.City)
	u.State = strings.TrimSpace(upd.State)
	u.Pincode = strings.TrimSpace(upd.Pincode)
	if err := s.users.Update(ctx, u); err != nil {
		return nil, errors.Wrap(err, "update user")
	}
	return u, nil
}

// ErrInvalidEmail is returned for malformed email addresses.
var ErrInvalidEmail = errors.New("invalid email address")

func normalizeEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", ErrInvalidEmail
	}
	return s, nil
}
