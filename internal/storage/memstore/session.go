package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/auth"
)

var (
	_ auth.Sessions    = (*Sessions)(nil)
	_ auth.RateLimiter = (*Limiter)(nil)
)

// Sessions is an in-memory auth.Sessions with opaque UUID tokens.
type Sessions struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	tokens map[string]auth.Session
}

// NewSessions creates Sessions that expire after ttl.
func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{ttl: ttl, now: time.Now, tokens: map[string]auth.Session{}}
}

func (s *Sessions) Create(_ context.Context, userID int64) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := auth.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: s.now().Add(s.ttl),
	}
	s.tokens[sess.Token] = sess
	return &sess, nil
}

func (s *Sessions) Resolve(_ context.Context, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.tokens[token]
	if !ok || !sess.ExpiresAt.After(s.now()) {
		return 0, auth.ErrInvalidSession
	}
	return sess.UserID, nil
}

func (s *Sessions) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

// Limiter is an in-memory fixed-window auth.RateLimiter.
type Limiter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]window
}

type window struct {
	count int
	reset time.Time
}

// NewLimiter creates a Limiter.
func NewLimiter() *Limiter {
	return &Limiter{now: time.Now, windows: map[string]window{}}
}

func (l *Limiter) Allow(_ context.Context, key string, limit int, d time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	w := l.windows[key]
	if !now.Before(w.reset) {
		w = window{reset: now.Add(d)}
	}
	w.count++
	l.windows[key] = w
	return w.count <= limit, nil
}
