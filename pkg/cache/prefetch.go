package cache

import (
	"context"
	"log/slog"
	"sync"
)

// PrefetchRequest names one key and how to produce it on a miss.
type PrefetchRequest struct {
	Key    string
	Meta   Metadata
	Loader Loader
}

// Prefetch warms the cache through a fixed-size worker pool. Keys that are
// already cached are skipped, duplicate in-flight keys coalesce through
// Fetch, and individual failures are logged without failing the batch.
// Returns the number of keys now present.
func (c *Cache) Prefetch(ctx context.Context, requests []PrefetchRequest, concurrency int) int {
	if concurrency <= 0 {
		concurrency = 2
	}
	jobs := make(chan PrefetchRequest)
	var wg sync.WaitGroup
	var mu sync.Mutex
	warmed := 0

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				if ctx.Err() != nil {
					return
				}
				if _, _, ok := c.Get(req.Key); ok {
					mu.Lock()
					warmed++
					mu.Unlock()
					continue
				}
				if _, _, err := c.Fetch(ctx, req.Key, req.Meta, req.Loader); err != nil {
					c.logger.Warn("prefetch failed",
						slog.String("key", req.Key),
						slog.String("error", err.Error()))
					continue
				}
				mu.Lock()
				warmed++
				mu.Unlock()
			}
		}()
	}

	seen := make(map[string]bool, len(requests))
	for _, req := range requests {
		if seen[req.Key] {
			continue
		}
		seen[req.Key] = true
		select {
		case jobs <- req:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
	return warmed
}
