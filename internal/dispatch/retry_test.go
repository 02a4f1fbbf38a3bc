package dispatch

import (
	"context"
	"testing"
	"time"

	gateway "github.com/kianmehr/campaign-gateway/internal/gateways"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryExecutor_SuccessFirstAttempt(t *testing.T) {
	e := NewRetryExecutor(3, time.Millisecond)

	calls := 0
	out, attempts, err := e.Execute(context.Background(), func(context.Context) *gateway.SendOutcome {
		calls++
		return &gateway.SendOutcome{Success: true, Kind: gateway.KindNone}
	})

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetryExecutor_TransientThenSuccess(t *testing.T) {
	e := NewRetryExecutor(3, time.Millisecond)

	calls := 0
	out, attempts, err := e.Execute(context.Background(), func(context.Context) *gateway.SendOutcome {
		calls++
		if calls < 3 {
			return &gateway.SendOutcome{Kind: gateway.KindTransient, Error: "timeout"}
		}
		return &gateway.SendOutcome{Success: true, Kind: gateway.KindNone}
	})

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 3, attempts)
}

func TestRetryExecutor_TransientExhaustion(t *testing.T) {
	e := NewRetryExecutor(3, time.Millisecond)

	calls := 0
	out, attempts, err := e.Execute(context.Background(), func(context.Context) *gateway.SendOutcome {
		calls++
		return &gateway.SendOutcome{Kind: gateway.KindTransient, Error: "still down"}
	})

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "still down", out.Error)
}

func TestRetryExecutor_PermanentStopsImmediately(t *testing.T) {
	e := NewRetryExecutor(3, time.Millisecond)

	calls := 0
	out, attempts, err := e.Execute(context.Background(), func(context.Context) *gateway.SendOutcome {
		calls++
		return &gateway.SendOutcome{Kind: gateway.KindPermanent, Error: "bad address"}
	})

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestRetryExecutor_AuthAborts(t *testing.T) {
	e := NewRetryExecutor(3, time.Millisecond)

	calls := 0
	out, attempts, err := e.Execute(context.Background(), func(context.Context) *gateway.SendOutcome {
		calls++
		return &gateway.SendOutcome{Kind: gateway.KindAuth, Error: "535 bad credentials"}
	})

	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.False(t, out.Success)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestRetryExecutor_ContextCancelledDuringDelay(t *testing.T) {
	e := NewRetryExecutor(3, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := e.Execute(ctx, func(context.Context) *gateway.SendOutcome {
		return &gateway.SendOutcome{Kind: gateway.KindTransient}
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryExecutor_Defaults(t *testing.T) {
	e := NewRetryExecutor(0, 0)
	assert.Equal(t, DefaultMaxAttempts, e.maxAttempts)
	assert.Equal(t, DefaultRetryDelay, e.retryDelay)
}
