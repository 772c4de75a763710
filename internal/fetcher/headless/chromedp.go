// Package headless renders the stock page in headless Chrome. It is the
// fallback for attempts where the plain HTTP fetcher got a bot challenge
// instead of the page.
package headless

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/garden-stock/internal/stock"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultReadyWait         = 15 * time.Second
	// DefaultReadySelector matches the stock grid container.
	DefaultReadySelector = `div[class*="grid-cols"]`
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel caps concurrent browser tabs; 0 means unbounded.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// ReadySelector is awaited for up to ReadyWait after the body loads, giving
	// a JS challenge time to run and redirect to the real page.
	ReadySelector string
	ReadyWait     time.Duration
}

// Fetcher implements stock.Fetcher using chromedp. Chrome is started lazily
// on the first Fetch.
type Fetcher struct {
	cfg         Config
	slots       chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ReadySelector == "" {
		cfg.ReadySelector = DefaultReadySelector
	}
	if cfg.ReadyWait <= 0 {
		cfg.ReadyWait = defaultReadyWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var slots chan struct{}
	if cfg.MaxParallel > 0 {
		slots = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		slots:       slots,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch renders url and returns the resulting DOM. Failures are
// *stock.FetchError values classified the same way as the HTTP fetcher's.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.acquire(ctx); err != nil {
		return nil, stock.NewFetchError(stock.ReasonTransport, err)
	}
	defer f.release()

	tabCtx, closeTab := chromedp.NewContext(f.allocator)
	defer closeTab()
	// Stop the tab when the caller gives up as well as on our own deadline.
	stopOnCancel := context.AfterFunc(ctx, closeTab)
	defer stopOnCancel()

	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()

	doc := &documentStatus{}
	chromedp.ListenTarget(tabCtx, doc.observe)

	start := time.Now()
	html, err := f.render(tabCtx, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", err, ctxErr)
		}
		return nil, stock.NewFetchError(stock.ReasonTransport, err)
	}

	status, finalURL := doc.result()
	f.logger.Debug("rendered stock page",
		zap.String("url", url),
		zap.String("final_url", finalURL),
		zap.Int("status", status),
		zap.Int("bytes", len(html)),
		zap.Duration("duration", time.Since(start)),
	)

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, &stock.FetchError{Reason: stock.ReasonBadStatus, StatusCode: status}
	}
	body := []byte(html)
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &stock.FetchError{Reason: stock.ReasonEmptyBody, StatusCode: status}
	}
	return body, nil
}

func (f *Fetcher) render(ctx context.Context, url string) (string, error) {
	var html string
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		f.awaitSelector(),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

// awaitSelector waits for the ready selector but treats running out of
// ReadyWait as done: whatever rendered is returned and the extractor decides.
func (f *Fetcher) awaitSelector() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		waitCtx, cancel := context.WithTimeout(ctx, f.cfg.ReadyWait)
		defer cancel()
		err := chromedp.WaitReady(f.cfg.ReadySelector, chromedp.ByQuery).Do(waitCtx)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			f.logger.Debug("ready selector not found", zap.String("selector", f.cfg.ReadySelector))
			return nil
		}
		return err
	})
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := network.SetExtraHTTPHeaders(network.Headers{
			"Cache-Control": "no-cache",
			"Pragma":        "no-cache",
		}).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.slots == nil {
		return nil
	}
	select {
	case f.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.slots == nil {
		return
	}
	<-f.slots
}

// documentStatus remembers the last top-level document response. A solved
// challenge shows up as a 403 or 503 followed by the real page's 200.
type documentStatus struct {
	mu     sync.Mutex
	status int
	url    string
}

func (d *documentStatus) observe(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	d.status = int(resp.Response.Status)
	d.url = resp.Response.URL
	d.mu.Unlock()
}

// result reports the observed status, assuming 200 when no document event
// arrived (pages served from the browser cache).
func (d *documentStatus) result() (int, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == 0 {
		return http.StatusOK, d.url
	}
	return d.status, d.url
}
