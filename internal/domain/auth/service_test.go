package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/storage/memstore"
)

type mockSMS struct {
	codes map[string]string
	err   error
}

func (m *mockSMS) SendOTP(_ context.Context, mobile, code string, _ time.Duration) error {
	if m.codes == nil {
		m.codes = map[string]string{}
	}
	m.codes[mobile] = code
	return m.err
}

type env struct {
	svc   *auth.Service
	store *memstore.Store
	sms   *mockSMS
	now   time.Time
}

func newEnv(t *testing.T, cfg auth.Config) *env {
	t.Helper()
	e := &env{
		store: memstore.New(),
		sms:   &mockSMS{},
		now:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	e.svc = auth.NewService(
		e.store.Users(),
		e.store.OTPs(),
		memstore.NewLimiter(),
		memstore.NewSessions(time.Hour),
		e.sms,
		cfg,
		auth.WithClock(func() time.Time { return e.now }),
		auth.WithHashCost(bcrypt.MinCost),
	)
	return e
}

func defaultConfig() auth.Config {
	return auth.Config{
		OTPLength:  6,
		OTPExpiry:  5 * time.Minute,
		RateLimit:  3,
		RateWindow: 15 * time.Minute,
	}
}

func (e *env) register(t *testing.T, mobile string) *auth.User {
	t.Helper()
	ctx := context.Background()
	_, err := e.svc.SendOTP(ctx, mobile, auth.PurposeRegistration)
	require.NoError(t, err)
	u, _, err := e.svc.Register(ctx, auth.RegisterRequest{
		Mobile: mobile,
		OTP:    e.sms.codes[mobile],
		Name:   "Asha",
	})
	require.NoError(t, err)
	return u
}

func TestNormalizeMobile(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "9876543210", want: "9876543210"},
		{in: "+91 98765-43210", want: "9876543210"},
		{in: "919876543210", want: "9876543210"},
		{in: "5876543210", err: true},
		{in: "98765", err: true},
		{in: "98765432101", err: true},
	}
	for _, tt := range tests {
		got, err := auth.NormalizeMobile(tt.in)
		if tt.err {
			require.ErrorIs(t, err, auth.ErrInvalidMobile, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := auth.GenerateCode(6)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9')
	}
}

func TestOTPSingleUse(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultConfig())
	e.register(t, "9876543210")

	_, err := e.svc.SendOTP(ctx, "9876543210", auth.PurposeLogin)
	require.NoError(t, err)
	code := e.sms.codes["9876543210"]

	ok, err := e.svc.VerifyOTP(ctx, "9876543210", code, auth.PurposeLogin)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.svc.VerifyOTP(ctx, "9876543210", code, auth.PurposeLogin)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOTPPurposeAndExpiry(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultConfig())

	_, err := e.svc.SendOTP(ctx, "9876543210", auth.PurposeRegistration)
	require.NoError(t, err)
	code := e.sms.codes["9876543210"]

	ok, err := e.svc.VerifyOTP(ctx, "9876543210", code, auth.PurposeLogin)
	require.NoError(t, err)
	assert.False(t, ok, "purpose must match")

	e.now = e.now.Add(6 * time.Minute)
	ok, err = e.svc.VerifyOTP(ctx, "9876543210", code, auth.PurposeRegistration)
	require.NoError(t, err)
	assert.False(t, ok, "expired")
}

func TestSendOTP_Rules(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultConfig())

	_, err := e.svc.SendOTP(ctx, "12345", auth.PurposeLogin)
	require.ErrorIs(t, err, auth.ErrInvalidMobile)

	_, err = e.svc.SendOTP(ctx, "9876543210", auth.PurposeLogin)
	require.ErrorIs(t, err, auth.ErrUserNotFound)

	e.register(t, "9876543210")
	_, err = e.svc.SendOTP(ctx, "9876543210", auth.PurposeRegistration)
	require.ErrorIs(t, err, auth.ErrMobileTaken)
}

func TestSendOTP_RateLimited(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultConfig())

	for range 3 {
		_, err := e.svc.SendOTP(ctx, "9123456789", auth.PurposeRegistration)
		require.NoError(t, err)
	}
	_, err := e.svc.SendOTP(ctx, "9123456789", auth.PurposeRegistration)
	require.ErrorIs(t, err, auth.ErrRateLimited)
}

func TestSendOTP_ExposeAndSMSFailure(t *testing.T) {
	cfg := defaultConfig()
	cfg.Expose = true
	e := newEnv(t, cfg)
	e.sms.err = errors.New("gateway timeout")

	res, err := e.svc.SendOTP(context.Background(), "9123456789", auth.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, e.sms.codes["9123456789"], res.Code)
	assert.Equal(t, 5*time.Minute, res.ExpiresIn)
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultConfig())

	u := e.register(t, "9876543210")
	assert.True(t, u.IsVerified)
	assert.Equal(t, "Asha", u.Name)

	_, _, err := e.svc.Login(ctx, "9876543210", "000000x")
	require.ErrorIs(t, err, auth.ErrInvalidOTP)

	_, err = e.svc.SendOTP(ctx, "9876543210", auth.PurposeLogin)
	require.NoError(t, err)
	logged, sess, err := e.svc.Login(ctx, "9876543210", e.sms.codes["9876543210"])
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)
	require.NotEmpty(t, sess.Token)

	me, err := e.svc.CheckSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)

	require.NoError(t, e.svc.Logout(ctx, sess.Token))
	_, err = e.svc.CheckSession(ctx, sess.Token)
	require.ErrorIs(t, err, auth.ErrInvalidSession)

	_, err = e.svc.CheckSession(ctx, "")
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestRegister_Errors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultConfig())

	_, _, err := e.svc.Register(ctx, auth.RegisterRequest{Mobile: "9876543210", OTP: "123456"})
	require.ErrorIs(t, err, auth.ErrNameRequired)

	_, _, err = e.svc.Register(ctx, auth.RegisterRequest{Mobile: "9876543210", OTP: "123456", Name: "A", Email: "nope"})
	require.ErrorIs(t, err, auth.ErrInvalidEmail)

	_, _, err = e.svc.Register(ctx, auth.RegisterRequest{Mobile: "9876543210", OTP: "123456", Name: "A"})
	require.ErrorIs(t, err, auth.ErrInvalidOTP)

	e.register(t, "9876543210")
	_, _, err = e.svc.Register(ctx, auth.RegisterRequest{Mobile: "9876543210", OTP: "123456", Name: "A"})
	require.ErrorIs(t, err, auth.ErrMobileTaken)
}

func TestRegister_EmailTakenKeepsOTP(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultConfig())

	first := e.register(t, "9876543210")
	_, err := e.svc.UpdateProfile(ctx, first.ID, auth.ProfileUpdate{Name: "Asha", Email: "a@example.com"})
	require.NoError(t, err)

	_, err = e.svc.SendOTP(ctx, "9123456789", auth.PurposeRegistration)
	require.NoError(t, err)
	code := e.sms.codes["9123456789"]

	_, _, err = e.svc.Register(ctx, auth.RegisterRequest{Mobile: "9123456789", OTP: code, Name: "Ravi", Email: "A@example.com"})
	require.ErrorIs(t, err, auth.ErrEmailTaken)

	u, sess, err := e.svc.Register(ctx, auth.RegisterRequest{Mobile: "9123456789", OTP: code, Name: "Ravi", Email: "b@example.com"})
	require.NoError(t, err, "the code was not consumed by the rejected attempt")
	assert.Equal(t, "b@example.com", u.Email)
	assert.NotEmpty(t, sess.Token)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultConfig())
	first := e.register(t, "9876543210")
	second := e.register(t, "9123456789")

	u, err := e.svc.UpdateProfile(ctx, first.ID, auth.ProfileUpdate{
		Name:         " Asha Rao ",
		Email:        "Asha@Example.com",
		AddressLine1: "12 MG Road",
		City:         "Pune",
		Pincode:      "411001",
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", u.Name)
	assert.Equal(t, "asha@example.com", u.Email)
	assert.Equal(t, "9876543210", u.Mobile)

	_, err = e.svc.UpdateProfile(ctx, second.ID, auth.ProfileUpdate{Name: "B", Email: "asha@example.com"})
	require.ErrorIs(t, err, auth.ErrEmailTaken)

	_, err = e.svc.UpdateProfile(ctx, 9999, auth.ProfileUpdate{Name: "X"})
	require.ErrorIs(t, err, auth.ErrUserNotFound)
}
