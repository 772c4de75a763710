package refresh

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewPolicy(3, 0, 0)
	boom := errors.New("boom")

	require.Equal(t, 3, p.MaxAttempts())
	require.True(t, p.ShouldRetry(boom, 1))
	require.True(t, p.ShouldRetry(boom, 2))
	require.False(t, p.ShouldRetry(boom, 3))
	require.False(t, p.ShouldRetry(nil, 1))
}

func TestPolicyBackoffBounds(t *testing.T) {
	t.Parallel()

	p := NewPolicy(5, 100*time.Millisecond, 300*time.Millisecond)
	for attempt := 1; attempt <= 4; attempt++ {
		want := 100 * time.Millisecond << (attempt - 1)
		if want > 300*time.Millisecond {
			want = 300 * time.Millisecond
		}
		for i := 0; i < 20; i++ {
			got := p.Backoff(attempt)
			require.GreaterOrEqual(t, got, want/2, "attempt %d", attempt)
			require.LessOrEqual(t, got, want, "attempt %d", attempt)
		}
	}
}

func TestPolicyZeroBackoffAndDefaults(t *testing.T) {
	t.Parallel()

	require.Zero(t, NewPolicy(3, 0, 0).Backoff(2))
	require.Equal(t, 1, NewPolicy(0, 0, 0).MaxAttempts())
}
