package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ErrInvalidAPIKey is returned for unknown, inactive or mismatched keys.
var ErrInvalidAPIKey = errors.New("invalid api key")

// ScopeAdmin grants access to order administration.
const ScopeAdmin = "admin"

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key carries scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// APIKeyRepository provides lookup of active API keys by their HMAC hash.
type APIKeyRepository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper.
func HashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// KeyVerifier authenticates raw API keys.
type KeyVerifier struct {
	keys   APIKeyRepository
	pepper []byte
}

// NewKeyVerifier creates a KeyVerifier.
func NewKeyVerifier(keys APIKeyRepository, pepper []byte) *KeyVerifier {
	return &KeyVerifier{keys: keys, pepper: pepper}
}

// Verify hashes key, looks it up and compares the stored hash in constant
// time.
func (v *KeyVerifier) Verify(ctx context.Context, key string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrInvalidAPIKey
	}
	mac := hmac.New(sha256.New, v.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := v.keys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		return nil, ErrInvalidAPIKey
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, ErrInvalidAPIKey
	}
	if subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrInvalidAPIKey
	}
	return info, nil
}
