// Package router implements the tenant database router: per routing key it
// resolves, caches, and hands out the isolated store handle owned by that
// tenant. The router's cache is the only place tenant handles live.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/avtenantd/internal/catalog"
	"github.com/vyrodovalexey/avtenantd/internal/config"
	"github.com/vyrodovalexey/avtenantd/internal/model"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
	"github.com/vyrodovalexey/avtenantd/internal/retry"
	"github.com/vyrodovalexey/avtenantd/internal/store"
)

// Router errors.
var (
	// ErrTenantUnavailable indicates that the tenant exists but is suspended
	// or deleted.
	ErrTenantUnavailable = errors.New("tenant unavailable")

	// ErrRouterClosed indicates the router has been shut down.
	ErrRouterClosed = errors.New("router closed")
)

// entry is a routing cache entry: a live handle plus its last access time.
type entry struct {
	handle     store.Handle
	lastAccess time.Time
}

// Router resolves routing keys to store handles.
type Router struct {
	tenants *catalog.Tenants
	driver  store.Driver
	logger  observability.Logger
	metrics *Metrics

	retryCfg *retry.Config
	idleTTL  time.Duration

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool

	// group coalesces concurrent resolutions of the same routing key so a
	// burst of requests opens the underlying store exactly once.
	group singleflight.Group

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option is a functional option for the router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(r *Router) {
		r.metrics = metrics
	}
}

// New creates a router and starts its idle-entry janitor.
func New(cfg config.RouterConfig, tenants *catalog.Tenants, driver store.Driver, opts ...Option) *Router {
	r := &Router{
		tenants: tenants,
		driver:  driver,
		logger:  observability.NopLogger(),
		retryCfg: &retry.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff.Duration(),
			MaxBackoff:     cfg.MaxBackoff.Duration(),
		},
		idleTTL: cfg.IdleTTL.Duration(),
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.metrics == nil {
		r.metrics = NewMetrics("tenantd")
	}
	if r.idleTTL <= 0 {
		r.idleTTL = 30 * time.Minute
	}

	sweep := cfg.SweepInterval.Duration()
	if sweep <= 0 {
		sweep = time.Minute
	}
	go r.janitor(sweep)

	return r
}

// Resolve returns the store handle for a routing key. Cache hits are served
// under a read lock; misses go through the catalog and the driver, coalesced
// per key.
func (r *Router) Resolve(ctx context.Context, routingKey string) (store.Handle, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrRouterClosed
	}
	if e, ok := r.entries[routingKey]; ok {
		r.mu.RUnlock()
		r.touch(routingKey)
		r.metrics.recordResolution("hit")
		return e.handle, nil
	}
	r.mu.RUnlock()

	handle, err, _ := r.group.Do(routingKey, func() (interface{}, error) {
		// Re-check under the write path: another caller may have populated
		// the entry between the read miss and the coalesced call.
		r.mu.RLock()
		if e, ok := r.entries[routingKey]; ok {
			r.mu.RUnlock()
			return e.handle, nil
		}
		r.mu.RUnlock()

		return r.open(ctx, routingKey)
	})
	if err != nil {
		r.metrics.recordResolution("error")
		return nil, err
	}

	r.metrics.recordResolution("miss")
	return handle.(store.Handle), nil
}

// open reads the tenant record, checks its status, and opens the store with
// bounded backoff. Called inside the singleflight group.
func (r *Router) open(ctx context.Context, routingKey string) (store.Handle, error) {
	tenant, err := r.tenants.GetByRoutingKey(ctx, routingKey)
	if err != nil {
		return nil, err
	}

	switch tenant.Status {
	case model.TenantActive:
	case model.TenantProvisioning:
		// Not routable until activation completes.
		return nil, fmt.Errorf("%w: tenant %s is provisioning", ErrTenantUnavailable, routingKey)
	default:
		return nil, fmt.Errorf("%w: tenant %s is %s", ErrTenantUnavailable, routingKey, tenant.Status)
	}

	var handle store.Handle
	err = retry.Do(ctx, r.retryCfg, func() error {
		var openErr error
		handle, openErr = r.driver.Open(ctx, tenant.StoreName)
		return openErr
	}, &retry.Options{
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			r.logger.Warn("store open retry",
				observability.String("routingKey", routingKey),
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRouterClosed
	}
	r.entries[routingKey] = &entry{handle: handle, lastAccess: time.Now()}
	r.metrics.recordOpen()

	r.logger.Info("tenant store resolved",
		observability.String("routingKey", routingKey),
		observability.String("store", tenant.StoreName))

	return handle, nil
}

// touch refreshes the last access time of a cached entry.
func (r *Router) touch(routingKey string) {
	r.mu.Lock()
	if e, ok := r.entries[routingKey]; ok {
		e.lastAccess = time.Now()
	}
	r.mu.Unlock()
}

// Invalidate evicts a routing cache entry so subsequent requests re-resolve.
// Called on tenant suspension and deletion.
func (r *Router) Invalidate(routingKey string) {
	r.mu.Lock()
	if _, ok := r.entries[routingKey]; ok {
		delete(r.entries, routingKey)
		r.metrics.recordEviction("invalidated")
	}
	r.mu.Unlock()

	r.logger.Debug("routing cache invalidated",
		observability.String("routingKey", routingKey))
}

// Size returns the number of cached entries.
func (r *Router) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// janitor evicts idle entries until the router closes.
func (r *Router) janitor(interval time.Duration) {
	defer close(r.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

// evictIdle removes entries whose last access is older than the idle TTL.
func (r *Router) evictIdle() {
	cutoff := time.Now().Add(-r.idleTTL)

	r.mu.Lock()
	for key, e := range r.entries {
		if e.lastAccess.Before(cutoff) {
			delete(r.entries, key)
			r.metrics.recordEviction("idle")
			r.logger.Debug("evicted idle tenant store handle",
				observability.String("routingKey", key))
		}
	}
	r.mu.Unlock()
}

// Close stops the janitor and drops all cached entries.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}
