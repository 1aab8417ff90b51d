package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffPolicyDelayDoubles(t *testing.T) {
	t.Parallel()

	p := BackoffPolicy{InitialDelay: time.Second, MaxDelay: 30 * time.Second}

	require.Equal(t, time.Second, p.Delay(1))
	require.Equal(t, 2*time.Second, p.Delay(2))
	require.Equal(t, 4*time.Second, p.Delay(3))
	require.Equal(t, 8*time.Second, p.Delay(4))
}

func TestBackoffPolicyDelayCapped(t *testing.T) {
	t.Parallel()

	p := BackoffPolicy{InitialDelay: time.Second, MaxDelay: 5 * time.Second}

	require.Equal(t, 5*time.Second, p.Delay(4))
	require.Equal(t, 5*time.Second, p.Delay(20))
}

func TestBackoffPolicyDelayEdgeCases(t *testing.T) {
	t.Parallel()

	require.Equal(t, time.Duration(0), BackoffPolicy{}.Delay(3))

	p := BackoffPolicy{InitialDelay: 250 * time.Millisecond}
	require.Equal(t, 250*time.Millisecond, p.Delay(0), "attempt below 1 clamps to first delay")
	require.Equal(t, 250*time.Millisecond, p.Delay(1))
}
