package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/pkg/envelope"
)

// Counter records one hit for key and returns the number of hits counted in
// the current window, including this one, and when that window resets.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int, reset time.Time, err error)
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Counter defaults to a process-local sliding window. Pass a shared
	// counter when running more than one instance.
	Counter Counter
}

// slidingWindow approximates a sliding window from two fixed windows,
// weighting the previous one by how much of it still overlaps.
type slidingWindow struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	start time.Time
	curr  float64
	prev  float64
}

// NewSlidingWindow returns an in-memory Counter. Stale keys are evicted
// every two windows until ctx is done.
func NewSlidingWindow(ctx context.Context, window time.Duration) Counter {
	s := &slidingWindow{buckets: map[string]*bucket{}, now: time.Now}
	go s.evictLoop(ctx, window)
	return s
}

func (s *slidingWindow) Hit(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	now := s.now()
	start := now.Truncate(window)

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.buckets[key]
	switch {
	case b == nil:
		b = &bucket{start: start}
		s.buckets[key] = b
	case !b.start.Equal(start):
		if start.Sub(b.start) == window {
			b.prev = b.curr
		} else {
			b.prev = 0
		}
		b.curr = 0
		b.start = start
	}
	b.curr++

	overlap := 1 - float64(now.Sub(start))/float64(window)
	count := int(math.Ceil(b.prev*overlap + b.curr))
	return count, start.Add(window), nil
}

func (s *slidingWindow) evictLoop(ctx context.Context, window time.Duration) {
	t := time.NewTicker(2 * window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cutoff := s.now().Add(-2 * window)
			s.mu.Lock()
			for k, b := range s.buckets {
				if b.start.Before(cutoff) {
					delete(s.buckets, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

// RateLimit rejects requests over cfg.Max per window with a 429 envelope and
// sets X-RateLimit-* headers on every response. Counter errors let the
// request through.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Counter == nil {
		cfg.Counter = NewSlidingWindow(ctx, cfg.Window)
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, reset, err := cfg.Counter.Hit(r.Context(), "http:"+cfg.KeyFunc(r), cfg.Window)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limit counter failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(cfg.Max-count, 0)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if count > cfg.Max {
				wait := max(time.Until(reset), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				envelope.Error(w, r, http.StatusTooManyRequests, "Too many requests, please try again later", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
