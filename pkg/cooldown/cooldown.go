// Package cooldown rate-limits alerts per key.
package cooldown

import (
	"context"
	"sync"
	"time"
)

// Store grants at most one alert per key per window.
type Store interface {
	// Acquire reports whether key is outside its window and, if so, starts
	// a new one.
	Acquire(ctx context.Context, key string, window time.Duration) (bool, error)
}

// Memory is a process-local Store.
type Memory struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{last: make(map[string]time.Time), now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if last, ok := m.last[key]; ok && now.Sub(last) < window {
		return false, nil
	}
	m.last[key] = now
	return true, nil
}

// Remaining returns how long key stays in its window.
func (m *Memory) Remaining(key string, window time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.last[key]
	if !ok {
		return 0
	}
	if left := window - m.now().Sub(last); left > 0 {
		return left
	}
	return 0
}
