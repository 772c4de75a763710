// Package refresh drives the fetch/extract retry loop and publishes accepted
// snapshots.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/garden-stock/internal/detector"
	"github.com/JakeFAU/garden-stock/internal/hash/sha256"
	"github.com/JakeFAU/garden-stock/internal/metrics"
	"github.com/JakeFAU/garden-stock/internal/stock"
)

// Config controls Coordinator behavior.
type Config struct {
	SourceURL      string
	CacheBustParam string
	// Renderer re-fetches an attempt whose body is a bot challenge, typically
	// through a headless browser. Nil leaves challenged attempts as failures.
	Renderer stock.Fetcher
}

// Coordinator runs bounded-retry refreshes. At most one refresh executes at a
// time; concurrent callers share its result. The store is written only after
// a successful extraction, so a failed or abandoned refresh leaves the last
// good snapshot in place.
type Coordinator struct {
	cfg     Config
	source  *url.URL
	fetcher stock.Fetcher
	decode  Decoder
	store   stock.Store
	clock   stock.Clock
	ids     stock.IDGenerator
	policy  *Policy
	logger  *zap.Logger

	detector *detector.Heuristic
	hasher   *sha256.Hasher

	group singleflight.Group

	mu       sync.Mutex
	lastBust int64
	lastErr  error
}

// New constructs a Coordinator. A nil decode uses DecodeHTML.
func New(
	cfg Config,
	fetcher stock.Fetcher,
	decode Decoder,
	store stock.Store,
	clock stock.Clock,
	ids stock.IDGenerator,
	policy *Policy,
	logger *zap.Logger,
) (*Coordinator, error) {
	source, err := url.Parse(cfg.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	if cfg.CacheBustParam == "" {
		cfg.CacheBustParam = "_"
	}
	if decode == nil {
		decode = DecodeHTML
	}
	if policy == nil {
		policy = NewPolicy(3, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:     cfg,
		source:  source,
		fetcher: fetcher,
		decode:  decode,
		store:   store,
		clock:   clock,
		ids:     ids,
		policy:  policy,
		logger:  logger,

		detector: detector.NewHeuristic(0),
		hasher:   sha256.New(),
	}, nil
}

// Refresh fetches and extracts the stock page, retrying up to the policy's
// budget. It returns the first accepted snapshot or the last failure.
func (c *Coordinator) Refresh(ctx context.Context) (stock.Snapshot, error) {
	v, err, shared := c.group.Do("refresh", func() (any, error) {
		return c.run(ctx)
	})
	if shared {
		c.logger.Debug("joined in-flight refresh")
	}
	if err != nil {
		return stock.Snapshot{}, err
	}
	return v.(stock.Snapshot), nil
}

// LastError returns the failure of the most recent refresh, or nil if it
// succeeded or none has finished yet.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Coordinator) run(ctx context.Context) (stock.Snapshot, error) {
	start := time.Now()
	refreshID := c.newRefreshID()
	logger := c.logger.With(zap.String("refresh_id", refreshID))
	maxAttempts := c.policy.MaxAttempts()

	var (
		lastErr error
		attempt int
	)
	for attempt = 1; attempt <= maxAttempts; attempt++ {
		snapshot, err := c.attempt(ctx, attempt, logger)
		if err == nil {
			digest, changed := c.digest(snapshot, logger)
			published := stock.Published{
				Snapshot:  snapshot,
				FetchedAt: c.clock.Now(),
				RefreshID: refreshID,
				Digest:    digest,
			}
			c.store.Publish(published)
			c.setLastErr(nil)
			metrics.ObservePublished(published)
			metrics.ObserveSnapshotChange(changed)
			metrics.ObserveRefresh(metrics.OutcomeSuccess, time.Since(start))
			logger.Info("stock snapshot published",
				zap.Int("attempt", attempt),
				zap.Bool("changed", changed),
				zap.Int("gear_items", len(snapshot.Gear.Items)),
				zap.Int("egg_items", len(snapshot.Egg.Items)),
				zap.Int("seeds_items", len(snapshot.Seeds.Items)),
				zap.Duration("duration", time.Since(start)),
			)
			return snapshot, nil
		}

		lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, maxAttempts, err)
		logFailure(logger, attempt, err)

		if ctx.Err() != nil || !c.policy.ShouldRetry(err, attempt) {
			break
		}
		if err := sleep(ctx, c.policy.Backoff(attempt)); err != nil {
			lastErr = fmt.Errorf("%w (retry aborted: %w)", lastErr, err)
			break
		}
	}

	c.setLastErr(lastErr)
	metrics.ObserveRefresh(metrics.OutcomeFailure, time.Since(start))
	logger.Error("stock refresh failed; keeping last snapshot",
		zap.Int("attempts", min(attempt, maxAttempts)),
		zap.Error(lastErr),
	)
	return stock.Snapshot{}, lastErr
}

func (c *Coordinator) attempt(ctx context.Context, attempt int, logger *zap.Logger) (stock.Snapshot, error) {
	target := c.attemptURL()
	logger.Debug("fetching stock page", zap.Int("attempt", attempt), zap.String("url", target))

	body, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		metrics.ObserveAttempt(err, 0)
		return stock.Snapshot{}, err
	}
	snapshot, err := c.decodeChecked(body)
	metrics.ObserveAttempt(err, len(body))
	if errors.Is(err, detector.ErrChallengePage) && c.cfg.Renderer != nil {
		return c.render(ctx, target, err, logger)
	}
	if err != nil {
		return stock.Snapshot{}, err
	}
	return snapshot, nil
}

// render retries a challenged attempt through the renderer, within the same
// attempt and against the same cache-busted URL.
func (c *Coordinator) render(ctx context.Context, target string, challenged error, logger *zap.Logger) (stock.Snapshot, error) {
	logger.Info("bot challenge served; rendering stock page in browser", zap.String("url", target))

	body, err := c.cfg.Renderer.Fetch(ctx, target)
	if err != nil {
		metrics.ObserveHeadlessRender(err)
		return stock.Snapshot{}, fmt.Errorf("%w (browser render: %w)", challenged, err)
	}
	snapshot, err := c.decodeChecked(body)
	metrics.ObserveHeadlessRender(err)
	if err != nil {
		return stock.Snapshot{}, fmt.Errorf("browser render: %w", err)
	}
	return snapshot, nil
}

// decodeChecked decodes body and marks a missing grid as a challenge when
// the page looks like one.
func (c *Coordinator) decodeChecked(body []byte) (stock.Snapshot, error) {
	snapshot, err := c.decode(body)
	if errors.Is(err, stock.ErrGridNotFound) && c.detector.Challenged(body) {
		err = fmt.Errorf("%w: %w", err, detector.ErrChallengePage)
	}
	return snapshot, err
}

// attemptURL stamps the source URL with a cache-busting value that is
// strictly greater than any previous one.
func (c *Coordinator) attemptURL() string {
	c.mu.Lock()
	bust := c.clock.Now().UnixMilli()
	if bust <= c.lastBust {
		bust = c.lastBust + 1
	}
	c.lastBust = bust
	c.mu.Unlock()

	u := *c.source
	q := u.Query()
	q.Set(c.cfg.CacheBustParam, strconv.FormatInt(bust, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// digest fingerprints snapshot and reports whether it differs from what the
// store holds. A digest failure counts as changed.
func (c *Coordinator) digest(snapshot stock.Snapshot, logger *zap.Logger) (string, bool) {
	digest, err := c.hasher.Snapshot(snapshot)
	if err != nil {
		logger.Warn("snapshot digest failed", zap.Error(err))
		return "", true
	}
	return digest, digest != c.store.Get().Digest
}

func (c *Coordinator) newRefreshID() string {
	if c.ids == nil {
		return ""
	}
	id, err := c.ids.NewID()
	if err != nil {
		c.logger.Warn("refresh id generation failed", zap.Error(err))
		return ""
	}
	return id
}

func (c *Coordinator) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// logFailure keeps the failure classes apart: a missing grid means the page
// we got is not the stock page at all, while an all-empty grid means the page
// is there but its section markup no longer matches.
func logFailure(logger *zap.Logger, attempt int, err error) {
	fields := []zap.Field{
		zap.Int("attempt", attempt),
		zap.String("reason", string(stock.ReasonOf(err))),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, detector.ErrChallengePage):
		logger.Warn("stock page replaced by a bot challenge; upstream is blocking us", fields...)
	case errors.Is(err, stock.ErrGridNotFound):
		logger.Warn("stock grid not found; upstream outage or block page", fields...)
	case errors.Is(err, stock.ErrAllSectionsEmpty):
		logger.Warn("stock grid has no items in any section; section markup likely changed", fields...)
	case errors.Is(err, stock.ErrNoSections):
		logger.Warn("stock grid has no sections", fields...)
	default:
		logger.Warn("stock page fetch failed", fields...)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
