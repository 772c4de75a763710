package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/garden-stock/internal/stock"
)

// ErrNotReady is returned by Current before any snapshot has been published
// and before any refresh has failed.
var ErrNotReady = errors.New("stock data not yet available")

// Refresher runs one refresh and remembers how the last one ended.
type Refresher interface {
	Refresh(ctx context.Context) (stock.Snapshot, error)
	LastError() error
}

func current(store stock.Store, refresher Refresher) (stock.Published, error) {
	published := store.Get()
	if published.Ready() {
		return published, nil
	}
	if err := refresher.LastError(); err != nil {
		return published, err
	}
	return published, ErrNotReady
}

// Push refreshes on a fixed interval regardless of read traffic.
type Push struct {
	refresher Refresher
	store     stock.Store
	interval  time.Duration
	logger    *zap.Logger
}

// NewPush constructs a Push scheduler.
func NewPush(refresher Refresher, store stock.Store, interval time.Duration, logger *zap.Logger) *Push {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Push{
		refresher: refresher,
		store:     store,
		interval:  interval,
		logger:    logger,
	}
}

// Run refreshes immediately, then once per interval, until ctx is done. A
// refresh that overruns the interval is followed by the next regular tick,
// not by one that fired while it was still running.
func (p *Push) Run(ctx context.Context) {
	p.logger.Info("push scheduler started", zap.Duration("interval", p.interval))
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx)
	drain(ticker.C)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("push scheduler stopped")
			return
		case <-ticker.C:
			p.refresh(ctx)
			drain(ticker.C)
		}
	}
}

// drain discards the tick a Ticker buffers while nobody is receiving.
func drain(c <-chan time.Time) {
	select {
	case <-c:
	default:
	}
}

func (p *Push) refresh(ctx context.Context) {
	if _, err := p.refresher.Refresh(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn("scheduled refresh failed", zap.Error(err))
	}
}

// Current returns whatever the store holds. It never triggers a fetch.
func (p *Push) Current(context.Context) (stock.Published, error) {
	return current(p.store, p.refresher)
}

// PullThrough refreshes on the first read of each time bucket.
type PullThrough struct {
	refresher Refresher
	store     stock.Store
	clock     stock.Clock
	interval  time.Duration
	baseCtx   context.Context
	logger    *zap.Logger

	mu     sync.Mutex
	bucket time.Time
	done   chan struct{}
}

// NewPullThrough constructs a PullThrough scheduler. Refreshes run under
// baseCtx so that a reader hanging up does not cancel work other readers
// are waiting on.
func NewPullThrough(
	baseCtx context.Context,
	refresher Refresher,
	store stock.Store,
	clock stock.Clock,
	interval time.Duration,
	logger *zap.Logger,
) *PullThrough {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PullThrough{
		refresher: refresher,
		store:     store,
		clock:     clock,
		interval:  interval,
		baseCtx:   baseCtx,
		logger:    logger,
	}
}

// Current returns the snapshot for the current bucket, refreshing first if
// this bucket has not been attempted yet. A failed attempt still claims the
// bucket, so an upstream outage costs one refresh per interval rather than
// one per read. If ctx ends while waiting, the store's current value is returned.
func (p *PullThrough) Current(ctx context.Context) (stock.Published, error) {
	select {
	case <-p.claim():
	case <-ctx.Done():
	}
	return current(p.store, p.refresher)
}

// claim returns a channel that closes once the current bucket's refresh has
// finished, starting that refresh if nobody has yet.
func (p *PullThrough) claim() <-chan struct{} {
	bucket := p.clock.Now().Truncate(p.interval)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil && p.bucket.Equal(bucket) {
		return p.done
	}
	p.bucket = bucket
	done := make(chan struct{})
	p.done = done

	go func() {
		defer close(done)
		p.logger.Debug("pull-through refresh", zap.Time("bucket", bucket))
		if _, err := p.refresher.Refresh(p.baseCtx); err != nil {
			p.logger.Warn("pull-through refresh failed", zap.Time("bucket", bucket), zap.Error(err))
		}
	}()
	return done
}
