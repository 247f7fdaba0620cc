package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/auth"
)

var _ auth.Sessions = (*Sessions)(nil)

// Sessions issues HS256 JWTs whose id is registered in Redis for the
// lifetime of the token. Deleting the key revokes the token.
type Sessions struct {
	rdb    *redis.Client
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewSessions creates Sessions.
func NewSessions(rdb *redis.Client, secret []byte, ttl time.Duration) *Sessions {
	return &Sessions{
		rdb:    rdb,
		secret: secret,
		ttl:    ttl,
		issuer: "storefront",
		now:    time.Now,
	}
}

// Create signs a new token for userID and registers it.
func (s *Sessions) Create(ctx context.Context, userID int64) (*auth.Session, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	jti := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    s.issuer,
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, errors.Wrap(err, "sign token")
	}

	if err := s.rdb.Set(ctx, KeySession+jti, userID, s.ttl).Err(); err != nil {
		return nil, errors.Wrap(err, "store session")
	}
	return &auth.Session{Token: signed, UserID: userID, ExpiresAt: exp}, nil
}

func (s *Sessions) parse(token string) (*jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.ID == "" {
		return nil, auth.ErrInvalidSession
	}
	return &claims, nil
}

// Resolve verifies the token signature and that it has not been revoked.
func (s *Sessions) Resolve(ctx context.Context, token string) (int64, error) {
	claims, err := s.parse(token)
	if err != nil {
		return 0, err
	}
	stored, err := s.rdb.Get(ctx, KeySession+claims.ID).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, auth.ErrInvalidSession
		}
		return 0, errors.Wrap(err, "load session")
	}
	if strconv.FormatInt(stored, 10) != claims.Subject {
		return 0, auth.ErrInvalidSession
	}
	return stored, nil
}

// Revoke deletes the session key. Invalid tokens are ignored.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	if err := s.rdb.Del(ctx, KeySession+claims.ID).Err(); err != nil {
		return errors.Wrap(err, "delete session")
	}
	return nil
}
