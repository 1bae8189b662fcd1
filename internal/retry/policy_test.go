package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayDefaultSchedule(t *testing.T) {
	p := DefaultPolicy()

	require.Equal(t, 300*time.Millisecond, p.Delay(0))
	require.Equal(t, 1*time.Second, p.Delay(1))
	require.Equal(t, 2*time.Second, p.Delay(2))
	require.Equal(t, 4*time.Second, p.Delay(3))
	require.Equal(t, 30*time.Second, p.Delay(6))
	require.Equal(t, 30*time.Second, p.Delay(1000))
}

func TestDelayIsMonotonicAndCapped(t *testing.T) {
	p := DefaultPolicy()

	previous := time.Duration(0)
	for failures := 0; failures <= 64; failures++ {
		delay := p.Delay(failures)
		require.GreaterOrEqual(t, delay, previous, "failures=%d", failures)
		require.LessOrEqual(t, delay, 30*time.Second, "failures=%d", failures)
		previous = delay
	}
}

func TestDelayNegativeFailuresUsesFastPath(t *testing.T) {
	require.Equal(t, DefaultFastPath, DefaultPolicy().Delay(-3))
}

func TestDelayZeroValuePolicyUsesDefaults(t *testing.T) {
	var p Policy
	require.Equal(t, DefaultFastPath, p.Delay(0))
	require.Equal(t, DefaultMax, p.Delay(10))
}

func TestDelayCustomPolicy(t *testing.T) {
	p := Policy{FastPath: time.Millisecond, Base: 2 * time.Millisecond, Max: 10 * time.Millisecond}

	require.Equal(t, time.Millisecond, p.Delay(0))
	require.Equal(t, 4*time.Millisecond, p.Delay(1))
	require.Equal(t, 8*time.Millisecond, p.Delay(2))
	require.Equal(t, 10*time.Millisecond, p.Delay(3))
}
