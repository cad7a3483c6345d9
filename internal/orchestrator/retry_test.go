package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_WaitGrowsExponentiallyAndCaps(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, MinWait: time.Second, MaxWait: 10 * time.Second, Multiplier: 2}

	require.Equal(t, time.Second, p.Wait(1))
	require.Equal(t, 2*time.Second, p.Wait(2))
	require.Equal(t, 4*time.Second, p.Wait(3))
	require.Equal(t, 8*time.Second, p.Wait(4))
	require.Equal(t, 10*time.Second, p.Wait(5), "wait must cap at MaxWait")
}

func TestRetryPolicy_WaitTreatsSubOneAttemptAsFirst(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, MinWait: time.Second, MaxWait: 10 * time.Second, Multiplier: 2}
	require.Equal(t, p.Wait(1), p.Wait(0))
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, MinWait: time.Second, MaxWait: 10 * time.Second, Multiplier: 2}

	require.False(t, p.Exhausted(1))
	require.False(t, p.Exhausted(2))
	require.True(t, p.Exhausted(3))
	require.True(t, p.Exhausted(4))
}
