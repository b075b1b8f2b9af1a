package admin

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent admin console use. A single channel serializes all
// traffic; the pool opens up to PoolSize channels lazily so parallel test
// runs do not queue behind one connection. Get blocks on a semaphore permit;
// released channels return to a free list. Channels in the free list may
// have dead connections; they reconnect on next use, so Get never fails on
// a cached channel.
type Pool struct {
	cfg      Config
	sem      *semaphore.Weighted
	logger   *slog.Logger
	recorder CommandRecorder

	mu       sync.Mutex
	free     []*Channel
	all      []*Channel
	disposed bool
}

// NewPool creates a pool of admin channels with at most cfg.PoolSize open.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.PoolSize)),
		logger: logger.With("component", "admin_pool"),
	}
}

// SetRecorder attaches a command recorder to channels the pool opens from
// now on. Call before the first Get; already-open channels are not updated.
func (p *Pool) SetRecorder(r CommandRecorder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorder = r
}

// Get acquires a channel, blocking until a permit is free or ctx is done.
// The caller must return it with Put.
func (p *Pool) Get(ctx context.Context) (*Channel, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		p.sem.Release(1)
		return nil, context.Canceled
	}
	if n := len(p.free); n > 0 {
		ch := p.free[n-1]
		p.free = p.free[:n-1]
		return ch, nil
	}

	ch := NewChannel(p.cfg, p.logger)
	ch.recorder = p.recorder
	p.all = append(p.all, ch)
	p.logger.Debug("Opened admin channel", "total", len(p.all))
	return ch, nil
}

// Put returns a channel to the pool and releases its permit.
func (p *Pool) Put(ch *Channel) {
	p.mu.Lock()
	if !p.disposed {
		p.free = append(p.free, ch)
	}
	p.mu.Unlock()
	p.sem.Release(1)
}

// Do runs fn with a pooled channel, returning it afterwards.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context, ch *Channel) error) error {
	ch, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer p.Put(ch)
	return fn(ctx, ch)
}

// Size reports how many channels the pool has opened so far.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

// Dispose closes every channel. In-flight commands finish with errors.
func (p *Pool) Dispose() {
	p.mu.Lock()
	p.disposed = true
	all := p.all
	p.all = nil
	p.free = nil
	p.mu.Unlock()

	for _, ch := range all {
		ch.Dispose()
	}
}
