package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/garden-stock/internal/stock"
)

func TestFetch_ReturnsBodyWithRandomUserAgent(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		agents []string
		trace  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.UserAgent())
		trace = r.Header.Get("X-Trace")
		mu.Unlock()
		_, _ = w.Write([]byte("<html><body>stock</body></html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: time.Second, Headers: http.Header{"X-Trace": {"yes"}}}, zap.NewNop())
	for i := 0; i < 2; i++ {
		body, err := f.Fetch(context.Background(), srv.URL+"/stock?_=1")
		require.NoError(t, err)
		require.Contains(t, string(body), "stock")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, agents, 2, "same URL must be fetched again, not deduplicated")
	for _, ua := range agents {
		require.NotEmpty(t, ua)
	}
	require.Equal(t, "yes", trace)
}

func TestFetch_BadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{Timeout: time.Second}, nil).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, stock.ErrBadStatus)

	var fe *stock.FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
}

func TestFetch_EmptyBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("  \n"))
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{Timeout: time.Second}, nil).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, stock.ErrEmptyBody)
}

func TestFetch_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}, nil).Fetch(context.Background(), url)
	require.ErrorIs(t, err, stock.ErrTransport)
}

func TestFetch_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	_, err := New(Config{Timeout: 50 * time.Millisecond}, nil).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, stock.ErrTransport)
}

func TestFetch_ConcurrentCallsShareOneFetcher(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>stock</body></html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: time.Second}, nil)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Fetch(context.Background(), srv.URL)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestFetch_ContextCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := New(Config{Timeout: 5 * time.Second}, nil).Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, stock.ErrTransport)
	require.ErrorIs(t, err, context.Canceled)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{Headers: http.Header{"X-Trace": {"yes"}}}, nil)
	var result visitResult

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &result)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	require.Equal(t, http.StatusOK, result.statusCode)
	require.Equal(t, "body", string(result.body))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, result.err, "boom")
}

func TestNew_DefaultsTimeout(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	require.Equal(t, defaultTimeout, f.cfg.Timeout)
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
