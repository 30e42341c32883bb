// Package cache provides a single-flight TTL cache around expensive fetches.
//
// Used for the JWKS document and the effective-settings snapshot: many
// concurrent readers, one upstream fetch per TTL window.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"provinator.io/provinator/internal/pkg/logger"
)

// FetchFunc loads a fresh value from upstream.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Fetcher caches the result of a FetchFunc for a TTL. Concurrent callers
// during a refresh share a single upstream call.
type Fetcher[T any] struct {
	name  string
	ttl   time.Duration
	fetch FetchFunc[T]

	mu        sync.RWMutex
	value     T
	fetchedAt time.Time

	group singleflight.Group
}

// NewFetcher creates a Fetcher. name labels log lines and the singleflight key.
func NewFetcher[T any](name string, ttl time.Duration, fetch FetchFunc[T]) *Fetcher[T] {
	return &Fetcher[T]{name: name, ttl: ttl, fetch: fetch}
}

// Get returns the cached value, refreshing it when the TTL has lapsed.
// If a refresh fails and a previous value exists, the stale value is
// returned and the failure is logged.
func (f *Fetcher[T]) Get(ctx context.Context) (T, error) {
	f.mu.RLock()
	if !f.fetchedAt.IsZero() && time.Since(f.fetchedAt) < f.ttl {
		v := f.value
		f.mu.RUnlock()
		return v, nil
	}
	f.mu.RUnlock()

	v, err, _ := f.group.Do(f.name, func() (interface{}, error) {
		// Another caller may have refreshed while we waited on the group.
		f.mu.RLock()
		if !f.fetchedAt.IsZero() && time.Since(f.fetchedAt) < f.ttl {
			v := f.value
			f.mu.RUnlock()
			return v, nil
		}
		f.mu.RUnlock()

		fresh, err := f.fetch(ctx)
		if err != nil {
			f.mu.RLock()
			hasStale := !f.fetchedAt.IsZero()
			stale := f.value
			f.mu.RUnlock()
			if hasStale {
				logger.Warn("Cache refresh failed, serving stale value",
					zap.String("cache", f.name),
					zap.Error(err),
				)
				return stale, nil
			}
			return nil, err
		}

		f.mu.Lock()
		f.value = fresh
		f.fetchedAt = time.Now()
		f.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops the cached value so the next Get refetches.
func (f *Fetcher[T]) Invalidate() {
	f.mu.Lock()
	f.fetchedAt = time.Time{}
	f.mu.Unlock()
}
