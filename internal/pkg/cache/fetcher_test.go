package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"provinator.io/provinator/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestFetcher_CachesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	f := NewFetcher("test", time.Minute, func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v, err := f.Get(ctx)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if v != 1 {
			t.Fatalf("Get() = %d, want 1 (cached)", v)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}
}

func TestFetcher_RefetchesAfterInvalidate(t *testing.T) {
	var calls atomic.Int32
	f := NewFetcher("test", time.Minute, func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	})

	ctx := context.Background()
	if _, err := f.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	f.Invalidate()

	v, err := f.Get(ctx)
	if err != nil {
		t.Fatalf("Get() after Invalidate error = %v", err)
	}
	if v != 2 {
		t.Errorf("Get() = %d, want 2 (refetched)", v)
	}
}

func TestFetcher_ServesStaleOnRefreshFailure(t *testing.T) {
	var calls atomic.Int32
	f := NewFetcher("test", time.Minute, func(ctx context.Context) (string, error) {
		if calls.Add(1) > 1 {
			return "", fmt.Errorf("upstream down")
		}
		return "v1", nil
	})

	ctx := context.Background()
	if _, err := f.Get(ctx); err != nil {
		t.Fatalf("initial Get() error = %v", err)
	}
	f.Invalidate()

	v, err := f.Get(ctx)
	if err != nil {
		t.Fatalf("Get() should serve stale, got error = %v", err)
	}
	if v != "v1" {
		t.Errorf("Get() = %q, want stale v1", v)
	}
}

func TestFetcher_FirstFetchFailurePropagates(t *testing.T) {
	f := NewFetcher("test", time.Minute, func(ctx context.Context) (string, error) {
		return "", fmt.Errorf("upstream down")
	})

	if _, err := f.Get(context.Background()); err == nil {
		t.Fatal("Get() error = nil, want upstream failure")
	}
}

func TestFetcher_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	f := NewFetcher("test", time.Minute, func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return 42, nil
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.Get(ctx)
			if err != nil || v != 42 {
				t.Errorf("Get() = %d, %v", v, err)
			}
		}()
	}

	<-started
	// All ten goroutines are now either queued on the group or about to be.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1 (single flight)", calls.Load())
	}
}
