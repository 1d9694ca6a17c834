package oms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limit is an allowance of Calls per Period on one endpoint.
type Limit struct {
	Calls  int
	Period time.Duration
}

const day = 24 * time.Hour

// DefaultLimits are the venue's published consumption limits for the REST API.
var DefaultLimits = map[string]Limit{
	EndpointAuth:                  {1, day},
	"/segment/all":                {1, day},
	"/instruments/all":            {1, day},
	"/instruments/details":        {1, day},
	"/instruments/detail":         {1, day},
	"/instruments/byCFICode":      {1, day},
	"/instruments/bySegment":      {1, day},
	"/order/replaceById":          {1, time.Second},
	"/order/cancelById":           {1, time.Second},
	"/order/allById":              {1, 30 * time.Second},
	"/order/byExecId":             {1, 30 * time.Second},
	"/marketdata/get":             {1, time.Second},
	"/data/getTrades":             {1, 30 * time.Second},
	"/risk/position/getPositions": {1, 5 * time.Second},
	"/risk/detailedPositions":     {1, 5 * time.Second},
	"/risk/accountReport":         {1, 5 * time.Second},
	"/risk/currency/getAll":       {1, day},
}

// RateLimiter throttles calls per endpoint. Endpoints without a configured
// limit are never throttled.
type RateLimiter struct {
	limits   map[string]Limit
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

func NewRateLimiter(limits map[string]Limit) *RateLimiter {
	if limits == nil {
		limits = DefaultLimits
	}
	return &RateLimiter{
		limits:   limits,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiter(endpoint string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters[endpoint]; ok {
		return l
	}
	cfg, ok := rl.limits[endpoint]
	if !ok || cfg.Calls <= 0 || cfg.Period <= 0 {
		return nil
	}
	l := rate.NewLimiter(rate.Every(cfg.Period/time.Duration(cfg.Calls)), cfg.Calls)
	rl.limiters[endpoint] = l
	return l
}

// Allow consumes one call on endpoint if the limit permits it.
func (rl *RateLimiter) Allow(endpoint string) bool {
	l := rl.limiter(endpoint)
	return l == nil || l.Allow()
}

// Wait blocks until a call on endpoint is permitted or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context, endpoint string) error {
	l := rl.limiter(endpoint)
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", endpoint, err)
	}
	return nil
}

// NextAllowed returns how long until endpoint accepts another call.
func (rl *RateLimiter) NextAllowed(endpoint string) time.Duration {
	l := rl.limiter(endpoint)
	if l == nil {
		return 0
	}
	r := l.Reserve()
	defer r.Cancel()
	return r.Delay()
}

// Reset forgets the history of endpoint, or of every endpoint when empty.
func (rl *RateLimiter) Reset(endpoint string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if endpoint == "" {
		rl.limiters = make(map[string]*rate.Limiter)
		return
	}
	delete(rl.limiters, endpoint)
}
