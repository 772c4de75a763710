package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/garden-stock/internal/stock"
)

type countingFetcher struct {
	calls atomic.Int32
}

func (f *countingFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.calls.Add(1)
	return []byte("<html></html>"), nil
}

func TestLimiter_WaitDelaysAfterBurst(t *testing.T) {
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://stock.example.test/a"))
	require.Less(t, time.Since(start), 50*time.Millisecond)

	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://stock.example.test/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_HostsAreIndependent(t *testing.T) {
	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://one.example.test/"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://two.example.test/"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_DisabledWhenRPSNotPositive(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(ctx, "https://stock.example.test/"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://stock.example.test/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://stock.example.test/"))
}

func TestFetcher_ThrottledWaitIsTransportError(t *testing.T) {
	inner := &countingFetcher{}
	f := NewFetcher(inner, New(Config{DefaultRPS: 0.1, DefaultBurst: 1}))

	body, err := f.Fetch(context.Background(), "https://stock.example.test/")
	require.NoError(t, err)
	require.Equal(t, "<html></html>", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, "https://stock.example.test/")
	require.ErrorIs(t, err, stock.ErrTransport)
	require.EqualValues(t, 1, inner.calls.Load())
}

func TestHostOf(t *testing.T) {
	require.Equal(t, "stock.example.test", hostOf("https://stock.example.test:8443/x?_=1"))
	require.Equal(t, "unknown", hostOf("::not a url"))
	require.Equal(t, "unknown", hostOf("/relative"))
}
