package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/praiz001/notifab/internal/apperr"
)

func TestBreakerRegistry_OpensAfterThreshold(t *testing.T) {
	reg := NewBreakerRegistry(3, 50*time.Millisecond)
	failing := func(ctx context.Context) (string, error) { return "", errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, err := Call(context.Background(), reg, "user-service", failing)
		require.Error(t, err)
		require.False(t, apperr.IsType(err, apperr.TypeBreakerOpen), "breaker should not yet be open on attempt %d", i+1)
	}

	require.True(t, reg.IsOpen("user-service"))

	_, err := Call(context.Background(), reg, "user-service", failing)
	require.True(t, apperr.IsType(err, apperr.TypeBreakerOpen))
}

func TestBreakerRegistry_HalfOpenProbeRecovers(t *testing.T) {
	reg := NewBreakerRegistry(1, 20*time.Millisecond)
	failing := func(ctx context.Context) (string, error) { return "", errors.New("boom") }

	_, err := Call(context.Background(), reg, "template-service", failing)
	require.Error(t, err)
	require.True(t, reg.IsOpen("template-service"))

	time.Sleep(30 * time.Millisecond)

	succeeding := func(ctx context.Context) (string, error) { return "ok", nil }
	result, err := Call(context.Background(), reg, "template-service", succeeding)
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.False(t, reg.IsOpen("template-service"))
}

func TestBreakerRegistry_HalfOpenProbeReopensOnFailure(t *testing.T) {
	reg := NewBreakerRegistry(1, 20*time.Millisecond)
	failing := func(ctx context.Context) (string, error) { return "", errors.New("boom") }

	_, _ = Call(context.Background(), reg, "gateway", failing)
	require.True(t, reg.IsOpen("gateway"))

	time.Sleep(30 * time.Millisecond)

	_, err := Call(context.Background(), reg, "gateway", failing)
	require.Error(t, err)
	require.True(t, reg.IsOpen("gateway"))
}

func TestBreakerRegistry_PerDependencyIsolation(t *testing.T) {
	reg := NewBreakerRegistry(1, time.Minute)
	failing := func(ctx context.Context) (string, error) { return "", errors.New("boom") }

	_, _ = Call(context.Background(), reg, "smtp", failing)
	require.True(t, reg.IsOpen("smtp"))
	require.False(t, reg.IsOpen("http-push-api"))
}

func TestCall_PreservesTypedResultAlongsideError(t *testing.T) {
	reg := NewBreakerRegistry(5, time.Minute)
	fn := func(ctx context.Context) (int, error) { return 42, errors.New("partial failure") }

	result, err := Call(context.Background(), reg, "provider-x", fn)
	require.Error(t, err)
	require.Equal(t, 42, result)
}
