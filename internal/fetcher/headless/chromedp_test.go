package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/garden-stock/internal/stock"
)

func TestNewChromedp_ValidatesAndDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1}, nil)
	require.Error(t, err)

	f, err := NewChromedp(Config{MaxParallel: 2}, nil)
	require.NoError(t, err)
	t.Cleanup(f.Close)

	require.Equal(t, 2, cap(f.slots))
	require.Equal(t, defaultNavigationTimeout, f.cfg.NavigationTimeout)
	require.Equal(t, DefaultReadySelector, f.cfg.ReadySelector)
	require.Equal(t, defaultReadyWait, f.cfg.ReadyWait)
}

func TestNewChromedp_UnboundedParallelism(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{ReadySelector: "#stock", ReadyWait: time.Second}, nil)
	require.NoError(t, err)
	t.Cleanup(f.Close)

	require.Nil(t, f.slots)
	require.NoError(t, f.acquire(context.Background()))
	f.release()
	require.Equal(t, "#stock", f.cfg.ReadySelector)
}

func TestFetch_WaitingForSlotHonorsContext(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{MaxParallel: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(f.Close)

	require.NoError(t, f.acquire(context.Background()))
	defer f.release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, "https://example.com/stock")
	require.ErrorIs(t, err, stock.ErrTransport)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDocumentStatus_KeepsLastDocumentResponse(t *testing.T) {
	t.Parallel()

	doc := &documentStatus{}
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: http.StatusForbidden, URL: "https://example.com/stock"},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: http.StatusNotFound, URL: "https://example.com/app.js"},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: http.StatusOK, URL: "https://example.com/stock?__cf_chl_tk=1"},
	})
	doc.observe("not a network event")

	status, url := doc.result()
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://example.com/stock?__cf_chl_tk=1", url)
}

func TestDocumentStatus_DefaultsToOK(t *testing.T) {
	t.Parallel()

	status, url := (&documentStatus{}).result()
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, url)
}
