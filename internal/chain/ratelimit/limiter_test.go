package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain/evm/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(10.0, 5, "viction")

	require.NotNil(t, l)
	assert.Equal(t, "viction", l.chain)
	assert.InDelta(t, 10.0, float64(l.limiter.Limit()), 0.001)
	assert.Equal(t, 5, l.limiter.Burst())
}

func TestNewLimiter_BurstFloor(t *testing.T) {
	l := NewLimiter(1, 0, "viction")
	assert.Equal(t, 1, l.limiter.Burst())
}

func TestLimiter_AllowWithinBurst(t *testing.T) {
	const burst = 5
	l := NewLimiter(100, burst, "viction")

	for i := 0; i < burst; i++ {
		start := time.Now()
		require.NoError(t, l.Wait(context.Background()))
		assert.Less(t, time.Since(start), 50*time.Millisecond, "request %d should not wait", i)
	}
}

func TestLimiter_WaitWhenExhausted(t *testing.T) {
	l := NewLimiter(10, 1, "viction")

	require.NoError(t, l.Wait(context.Background()))

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_ContextCancellation(t *testing.T) {
	l := NewLimiter(1, 1, "viction")
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClassifyRPCError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("head: %w", context.DeadlineExceeded), "timeout"},
		{&rpc.HTTPError{StatusCode: 429}, "rate_limited"},
		{&rpc.HTTPError{StatusCode: 502}, "server_error"},
		{&rpc.HTTPError{StatusCode: 403}, "client_error"},
		{&rpc.RPCError{Code: -32000, Message: "header not found"}, "rpc_error"},
		{errors.New("dial tcp: connection refused"), "network_error"},
		{errors.New("unexpected EOF"), "network_error"},
		{errors.New("weird"), "client_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyRPCError(tt.err), "%v", tt.err)
	}
}
