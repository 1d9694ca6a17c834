package oms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_DailyAuth(t *testing.T) {
	rl := NewRateLimiter(nil)

	assert.True(t, rl.Allow(EndpointAuth))
	assert.False(t, rl.Allow(EndpointAuth))
	assert.Greater(t, rl.NextAllowed(EndpointAuth), 23*time.Hour)

	rl.Reset(EndpointAuth)
	assert.Equal(t, time.Duration(0), rl.NextAllowed(EndpointAuth))
	assert.True(t, rl.Allow(EndpointAuth))
}

func TestRateLimiter_UnlimitedEndpoint(t *testing.T) {
	rl := NewRateLimiter(nil)
	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow("/not/limited"))
	}
	assert.Equal(t, time.Duration(0), rl.NextAllowed("/not/limited"))
	require.NoError(t, rl.Wait(context.Background(), "/not/limited"))
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(map[string]Limit{"/slow": {1, time.Hour}})
	require.NoError(t, rl.Wait(context.Background(), "/slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, "/slow"))
}

func TestRateLimiter_ResetAll(t *testing.T) {
	rl := NewRateLimiter(map[string]Limit{"/a": {1, time.Hour}, "/b": {1, time.Hour}})
	require.True(t, rl.Allow("/a"))
	require.True(t, rl.Allow("/b"))

	rl.Reset("")
	assert.True(t, rl.Allow("/a"))
	assert.True(t, rl.Allow("/b"))
}
