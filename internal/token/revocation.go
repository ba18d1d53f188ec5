package token

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vyrodovalexey/avtenantd/internal/cache"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
)

const revocationKeyPrefix = "revoked:"

// Revocations is the refresh-token revocation set. Entries live in the shared
// cache when one is configured so revocation spans instances; otherwise they
// live in process-local state, which is correct for a single instance but is
// cleared on restart.
type Revocations struct {
	cache  cache.Cache
	logger observability.Logger

	mu    sync.Mutex
	local map[string]time.Time
}

// NewRevocations creates a revocation set backed by the given cache.
func NewRevocations(c cache.Cache, logger observability.Logger) *Revocations {
	if c == nil {
		c = cache.NewDisabledCache()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Revocations{
		cache:  c,
		logger: logger,
		local:  make(map[string]time.Time),
	}
}

// Revoke records a token identifier as no longer usable. The TTL needs to
// cover only the token's remaining lifetime; after expiry the token fails
// verification on its own.
func (r *Revocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}

	err := r.cache.Set(ctx, revocationKeyPrefix+tokenID, []byte("1"), ttl)
	if err == nil {
		return nil
	}
	if !errors.Is(err, cache.ErrCacheDisabled) {
		r.logger.Warn("revocation cache write failed, falling back to local set",
			observability.Error(err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[tokenID] = time.Now().Add(ttl)
	r.pruneLocked()
	return nil
}

// IsRevoked reports whether a token identifier has been revoked.
func (r *Revocations) IsRevoked(ctx context.Context, tokenID string) bool {
	if tokenID == "" {
		return false
	}

	exists, err := r.cache.Exists(ctx, revocationKeyPrefix+tokenID)
	if err == nil && exists {
		return true
	}
	if err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		r.logger.Warn("revocation cache read failed, consulting local set",
			observability.Error(err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.local[tokenID]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(r.local, tokenID)
		return false
	}
	return true
}

// pruneLocked drops expired local entries. Must be called with the lock held.
func (r *Revocations) pruneLocked() {
	now := time.Now()
	for id, expiry := range r.local {
		if now.After(expiry) {
			delete(r.local, id)
		}
	}
}
