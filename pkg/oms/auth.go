package oms

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// defaultTokenTTL renews an opaque token an hour before the venue's 24 h
// expiry.
const defaultTokenTTL = 23 * time.Hour

type cachedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenCache keeps the session token, optionally persisted to a file so a
// restart does not spend the daily authentication allowance.
type TokenCache struct {
	path   string
	token  string
	expiry time.Time
	now    func() time.Time
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewTokenCache loads a still-valid token from path if one is there. An
// empty path keeps the token in memory only.
func NewTokenCache(path string, logger *logrus.Logger) *TokenCache {
	tc := &TokenCache{path: path, now: time.Now, logger: logger}
	tc.load()
	return tc
}

func (tc *TokenCache) load() {
	if tc.path == "" {
		return
	}
	data, err := os.ReadFile(tc.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			tc.logger.WithError(err).Warn("Failed to read token cache")
		}
		return
	}

	var c cachedToken
	if err := json.Unmarshal(data, &c); err != nil {
		tc.logger.WithError(err).Warn("Discarding unreadable token cache")
		tc.removeFile()
		return
	}
	if c.Token == "" || !c.ExpiresAt.After(tc.now()) {
		tc.logger.Info("Cached token expired")
		tc.removeFile()
		return
	}
	tc.token, tc.expiry = c.Token, c.ExpiresAt
	tc.logger.WithField("expires_at", c.ExpiresAt).Info("Loaded token from cache")
}

// Get returns the cached token if it has not expired.
func (tc *TokenCache) Get() (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.token == "" {
		return "", false
	}
	if !tc.expiry.After(tc.now()) {
		tc.clearLocked()
		return "", false
	}
	return tc.token, true
}

// Set stores token. The expiry comes from the token's exp claim when it is
// a JWT, otherwise 23 hours from now.
func (tc *TokenCache) Set(token string) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := tc.now()
	tc.token = token
	tc.expiry = TokenExpiry(token, now)

	if tc.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(cachedToken{Token: token, ExpiresAt: tc.expiry, CreatedAt: now}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token cache: %w", err)
	}
	if err := os.WriteFile(tc.path, data, 0o600); err != nil {
		return fmt.Errorf("write token cache: %w", err)
	}
	return nil
}

func (tc *TokenCache) ExpiresAt() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.expiry
}

func (tc *TokenCache) Clear() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.clearLocked()
}

func (tc *TokenCache) clearLocked() {
	tc.token = ""
	tc.expiry = time.Time{}
	tc.removeFile()
}

func (tc *TokenCache) removeFile() {
	if tc.path == "" {
		return
	}
	if err := os.Remove(tc.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		tc.logger.WithError(err).Warn("Failed to remove token cache")
	}
}

// TokenExpiry reads the exp claim of a JWT without verifying it, falling
// back to 23 hours after now. An exp beyond the fallback is capped to it.
func TokenExpiry(token string, now time.Time) time.Time {
	fallback := now.Add(defaultTokenTTL)

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fallback
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	if exp.After(fallback) {
		return fallback
	}
	return exp.Time
}
