package memory

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"
)

// MemoryRateLimiter holds one token bucket per caller key (API key when
// present, client IP otherwise). Buckets start full and refill to capacity
// over one minute. Thread-safe for concurrent access.
//
// Keys are xxhash-folded before use so raw API keys never sit in the map.
// Includes background cleanup to prevent unbounded memory growth.
type MemoryRateLimiter struct {
	perMinute int

	mu    sync.Mutex
	cells map[string]*bucket

	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	maxTTL          time.Duration
}

// bucket pairs a limiter with its last-touch time for cleanup.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter allowing perMinute requests per key,
// with default cleanup settings (5 minute interval, 1 hour TTL).
func NewRateLimiter(perMinute int) *MemoryRateLimiter {
	return NewRateLimiterWithConfig(perMinute, 5*time.Minute, 1*time.Hour)
}

// NewRateLimiterWithConfig creates a rate limiter with custom cleanup settings.
func NewRateLimiterWithConfig(perMinute int, cleanupInterval, maxTTL time.Duration) *MemoryRateLimiter {
	if perMinute <= 0 {
		perMinute = 1 // minimum grain one request
	}
	return &MemoryRateLimiter{
		perMinute:       perMinute,
		cells:           make(map[string]*bucket),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
		maxTTL:          maxTTL,
	}
}

// Allow consumes one token from the caller's bucket, registering a full
// bucket on first sight. Returns false when the bucket is empty.
func (r *MemoryRateLimiter) Allow(key string) bool {
	folded := foldKey(key)

	r.mu.Lock()
	b, ok := r.cells[folded]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.perMinute)), r.perMinute)}
		r.cells[folded] = b
	}
	b.lastSeen = time.Now()
	r.mu.Unlock()

	return b.limiter.Allow()
}

// foldKey hashes a caller key so the map never holds raw credentials.
func foldKey(key string) string {
	return strconv.FormatUint(xxhash.Sum64String(key), 16)
}

// StartCleanup starts the background cleanup goroutine. It stops when ctx is
// cancelled or Stop is called.
func (r *MemoryRateLimiter) StartCleanup(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

// cleanup removes buckets idle beyond maxTTL.
func (r *MemoryRateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.maxTTL)
	cleaned := 0
	for key, b := range r.cells {
		if b.lastSeen.Before(cutoff) {
			delete(r.cells, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		slog.Debug("rate limiter cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(r.cells))
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (r *MemoryRateLimiter) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Size returns the current number of tracked keys.
func (r *MemoryRateLimiter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cells)
}
