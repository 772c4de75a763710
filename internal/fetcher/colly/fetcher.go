// Package collyfetcher implements stock.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
	"go.uber.org/zap"

	"github.com/JakeFAU/garden-stock/internal/stock"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	Timeout time.Duration
	// CloudflareBypass wraps the transport with browser-like TLS settings and headers.
	CloudflareBypass bool
	// Headers are added to every request.
	Headers http.Header
}

// Fetcher implements stock.Fetcher with a single Colly visit per call. It does
// not retry and does not cache.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type visitResult struct {
	statusCode int
	body       []byte
	err        error
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector()
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	// Clones share the backend client, so the timeout is set once here.
	c.SetRequestTimeout(cfg.Timeout)

	var transport http.RoundTripper = newHTTPTransport()
	if cfg.CloudflareBypass {
		transport = cloudflarebp.AddCloudFlareByPass(transport)
	}
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch performs one GET against url and returns the body. Failures are
// *stock.FetchError values tagged transport_error, bad_status or empty_body.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var result visitResult
	start := time.Now()
	collector := f.buildCollector(&result)

	if err := f.runCollector(ctx, collector, url, &result); err != nil {
		return nil, stock.NewFetchError(stock.ReasonTransport, err)
	}

	f.logger.Debug("fetched stock page",
		zap.String("url", url),
		zap.Int("status", result.statusCode),
		zap.Int("bytes", len(result.body)),
		zap.Duration("duration", time.Since(start)),
	)

	if result.statusCode < http.StatusOK || result.statusCode >= http.StatusMultipleChoices {
		return nil, &stock.FetchError{Reason: stock.ReasonBadStatus, StatusCode: result.statusCode}
	}
	if len(bytes.TrimSpace(result.body)) == 0 {
		return nil, &stock.FetchError{Reason: stock.ReasonEmptyBody, StatusCode: result.statusCode}
	}
	return result.body, nil
}

// buildCollector clones the base collector so every call gets a fresh random
// user agent and its own callbacks.
func (f *Fetcher) buildCollector(result *visitResult) *colly.Collector {
	collector := f.baseCollector.Clone()
	extensions.RandomUserAgent(collector)
	f.configureCollectorHooks(collector, result)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *visitResult) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.statusCode = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.statusCode = r.StatusCode
		}
		result.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, result *visitResult) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if result.err != nil {
			return fmt.Errorf("colly response failed: %w", result.err)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
