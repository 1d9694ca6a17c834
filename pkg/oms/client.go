// Package oms talks to the venue's order management system: token
// authentication over REST and market data over WebSocket.
package oms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const EndpointAuth = "/auth/getToken"

var (
	ErrRateLimited  = errors.New("oms: rate limited")
	ErrNotConnected = errors.New("oms: websocket not connected")
	ErrNoToken      = errors.New("oms: response carried no token")
)

// Client authenticates against the OMS REST API.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *RateLimiter
	tokens     *TokenCache
	logger     *logrus.Logger
}

// NewClient builds a client for host. A host without scheme is reached over
// https.
func NewClient(host, username, password string, tokens *TokenCache, limiter *RateLimiter, logger *logrus.Logger) *Client {
	if tokens == nil {
		tokens = NewTokenCache("", logger)
	}
	if limiter == nil {
		limiter = NewRateLimiter(nil)
	}
	return &Client{
		baseURL:    baseURL(host),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		tokens:     tokens,
		logger:     logger,
	}
}

func baseURL(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	switch {
	case strings.HasPrefix(host, "http://"), strings.HasPrefix(host, "https://"):
		return host
	case strings.HasPrefix(host, "wss://"):
		return "https://" + strings.TrimPrefix(host, "wss://")
	case strings.HasPrefix(host, "ws://"):
		return "http://" + strings.TrimPrefix(host, "ws://")
	}
	return "https://" + host
}

// WebSocketURL is the market data endpoint on the same host.
func (c *Client) WebSocketURL() string {
	if strings.HasPrefix(c.baseURL, "http://") {
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://")
	}
	return "wss://" + strings.TrimPrefix(c.baseURL, "https://")
}

// Token returns the cached session token or requests a new one. A new
// request is refused with ErrRateLimited once the daily allowance is used.
func (c *Client) Token(ctx context.Context) (string, error) {
	if token, ok := c.tokens.Get(); ok {
		return token, nil
	}
	if !c.limiter.Allow(EndpointAuth) {
		return "", fmt.Errorf("%w: %s", ErrRateLimited, EndpointAuth)
	}

	token, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}
	if err := c.tokens.Set(token); err != nil {
		c.logger.WithError(err).Warn("Failed to persist token")
	}
	c.logger.WithField("expires_at", c.tokens.ExpiresAt()).Info("Obtained OMS token")
	return token, nil
}

// RefreshToken drops the cached token and requests a new one.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	c.tokens.Clear()
	return c.Token(ctx)
}

func (c *Client) requestToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointAuth, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Username", c.username)
	req.Header.Set("X-Password", c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return "", fmt.Errorf("request token: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	token := strings.TrimSpace(resp.Header.Get("X-Auth-Token"))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}
