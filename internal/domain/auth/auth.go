// Package auth implements mobile number + OTP authentication, customer
// profiles and admin API key verification.
package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

var (
	ErrInvalidMobile   = errors.New("invalid mobile number")
	ErrInvalidOTP      = errors.New("invalid or expired OTP")
	ErrRateLimited     = errors.New("too many OTP requests, please try again later")
	ErrMobileTaken     = errors.New("mobile number already registered")
	ErrEmailTaken      = errors.New("email already registered")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotVerified     = errors.New("account is not verified")
	ErrInvalidSession  = errors.New("invalid or expired session")
	ErrNameRequired    = errors.New("name is required")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// User is a storefront customer.
type User struct {
	ID           int64
	Mobile       string
	Email        string
	Name         string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	Pincode      string
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Purpose scopes an OTP to one flow.
type Purpose string

const (
	PurposeLogin        Purpose = "login"
	PurposeRegistration Purpose = "registration"
)

// ParsePurpose validates an OTP purpose.
func ParsePurpose(s string) (Purpose, error) {
	switch v := Purpose(s); v {
	case PurposeLogin, PurposeRegistration:
		return v, nil
	default:
		return "", errors.Errorf("unknown otp purpose %q", s)
	}
}

// OTP is a stored one-time password. The code itself is only kept hashed.
type OTP struct {
	ID        int64
	Mobile    string
	Hash      string
	Purpose   Purpose
	ExpiresAt time.Time
	IsUsed    bool
	CreatedAt time.Time
}

var mobileRe = regexp.MustCompile(`^[6-9]\d{9}$`)

// NormalizeMobile strips separators and an optional +91 country code and
// validates the remaining 10-digit number.
func NormalizeMobile(s string) (string, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, s)
	s = strings.TrimPrefix(s, "+")
	if len(s) == 12 && strings.HasPrefix(s, "91") {
		s = s[2:]
	}
	if !mobileRe.MatchString(s) {
		return "", ErrInvalidMobile
	}
	return s, nil
}

// UserRepository persists users.
type UserRepository interface {
	// Create inserts u and sets its ID. Duplicate mobile or email yields
	// ErrMobileTaken or ErrEmailTaken.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByMobile(ctx context.Context, mobile string) (*User, error)
	// GetByEmail matches the normalized (lower-case) email.
	GetByEmail(ctx context.Context, email string) (*User, error)
	// Update writes the profile fields of u. A duplicate email yields
	// ErrEmailTaken.
	Update(ctx context.Context, u *User) error
}

// OTPRepository persists one-time passwords.
type OTPRepository interface {
	Create(ctx context.Context, o *OTP) error
	// Active returns unused, unexpired OTPs for mobile and purpose, newest first.
	Active(ctx context.Context, mobile string, purpose Purpose, now time.Time) ([]OTP, error)
	// MarkUsed consumes an OTP and reports false if it was already used.
	MarkUsed(ctx context.Context, id int64) (bool, error)
	// PurgeExpired deletes expired or used OTPs for mobile.
	PurgeExpired(ctx context.Context, mobile string, now time.Time) (int64, error)
}

// RateLimiter counts attempts per key within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Session is an authenticated customer session.
type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

// Sessions issues, resolves and revokes session tokens.
type Sessions interface {
	Create(ctx context.Context, userID int64) (*Session, error)
	// Resolve returns the user id for a live token or ErrInvalidSession.
	Resolve(ctx context.Context, token string) (int64, error)
	Revoke(ctx context.Context, token string) error
}

// SMSSender delivers OTP codes.
type SMSSender interface {
	SendOTP(ctx context.Context, mobile, code string, ttl time.Duration) error
}
