// Package cache is a content-addressed persistent store for generated
// audio. Entries expire by TTL and self-heal when the backing file was
// deleted out of band; concurrent requests for one key share a single
// underlying fetch.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/kisah/pkg/errorsx"
	"github.com/harunnryd/kisah/pkg/logging"
	"github.com/harunnryd/kisah/pkg/metrics"
	"github.com/harunnryd/kisah/pkg/storage"
)

// DefaultTTL keeps generated audio for two weeks.
const DefaultTTL = 14 * 24 * time.Hour

// Metadata is the JSON sidecar persisted next to each audio file.
type Metadata struct {
	Key           string        `json:"key"`
	FileRef       string        `json:"file_ref"`
	CreatedAt     time.Time     `json:"created_at"`
	TTL           time.Duration `json:"ttl"`
	Voice         string        `json:"voice"`
	Language      string        `json:"language"`
	Speed         float64       `json:"speed"`
	SchemaVersion int           `json:"schema_version"`
}

type Cache struct {
	store  storage.Store
	ttl    time.Duration
	logger *slog.Logger
	obs    metrics.Observer

	mu       sync.Mutex
	inflight map[string]*call

	now func() time.Time
}

type call struct {
	done chan struct{}
	data []byte
	ref  string
	err  error
}

func New(store storage.Store, ttl time.Duration, logger *slog.Logger, obs metrics.Observer) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Cache{
		store:    store,
		ttl:      ttl,
		logger:   logging.NewComponentLogger(logger, "chunk_cache"),
		obs:      obs,
		inflight: make(map[string]*call),
		now:      time.Now,
	}
}

func audioName(key string) string { return key + ".audio" }
func metaName(key string) string  { return key + ".json" }

// Get returns the cached audio and metadata for key, or ok=false on a
// miss. Expired or orphaned metadata is evicted on the way out, so a
// deleted audio file never produces a dangling hit. Read failures are
// logged and reported as misses, never as errors.
func (c *Cache) Get(key string) ([]byte, *Metadata, bool) {
	raw, err := c.store.Get(metaName(key))
	if err != nil {
		c.recordEvent(metrics.EventCacheMiss, key)
		return nil, nil, false
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		c.logger.Warn("cache metadata corrupt, evicting",
			slog.String("key", key),
			slog.String("error", err.Error()))
		c.evict(key)
		c.recordEvent(metrics.EventCacheMiss, key)
		return nil, nil, false
	}
	if meta.SchemaVersion != SchemaVersion || c.now().Sub(meta.CreatedAt) >= meta.TTL {
		c.logger.Debug("cache entry expired",
			slog.String("key", key),
			slog.Time("created_at", meta.CreatedAt))
		c.evict(key)
		c.recordEvent(metrics.EventCacheEvictStale, key)
		c.recordEvent(metrics.EventCacheMiss, key)
		return nil, nil, false
	}
	data, err := c.store.Get(audioName(key))
	if err != nil {
		c.logger.Warn("cache audio vanished, evicting metadata",
			slog.String("key", key))
		c.evict(key)
		c.recordEvent(metrics.EventCacheEvictStale, key)
		c.recordEvent(metrics.EventCacheMiss, key)
		return nil, nil, false
	}
	c.recordEvent(metrics.EventCacheHit, key)
	return data, &meta, true
}

// Put persists audio and its metadata, returning the file reference.
func (c *Cache) Put(key string, audio []byte, meta Metadata) (string, error) {
	if err := c.store.Put(audioName(key), audio); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonCacheWrite)
	}
	meta.Key = key
	meta.FileRef = c.store.Path(audioName(key))
	meta.CreatedAt = c.now()
	if meta.TTL <= 0 {
		meta.TTL = c.ttl
	}
	meta.SchemaVersion = SchemaVersion
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonCacheWrite)
	}
	if err := c.store.Put(metaName(key), raw); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonCacheWrite)
	}
	return meta.FileRef, nil
}

// Loader produces audio bytes for a key on a cache miss.
type Loader func(ctx context.Context) ([]byte, error)

// Fetch returns cached audio for key or produces it once via loader.
// Concurrent callers with the same key join the in-flight request and all
// receive the same result; the winner persists it. Cache write failures
// are logged, not returned: the caller still gets the generated audio.
func (c *Cache) Fetch(ctx context.Context, key string, meta Metadata, loader Loader) ([]byte, string, error) {
	if data, cached, ok := c.Get(key); ok {
		return data, cached.FileRef, nil
	}

	c.mu.Lock()
	if existing, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-existing.done:
			return existing.data, existing.ref, existing.err
		case <-ctx.Done():
			return nil, "", errorsx.Wrap(ctx.Err(), errorsx.ReasonCancelled)
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	cl.data, cl.err = loader(ctx)
	if cl.err == nil {
		ref, err := c.Put(key, cl.data, meta)
		if err != nil {
			c.logger.Warn("cache write failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		} else {
			cl.ref = ref
		}
	}

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(cl.done)
	return cl.data, cl.ref, cl.err
}

func (c *Cache) evict(key string) {
	if err := c.store.Delete(metaName(key)); err != nil {
		c.logger.Warn("evict metadata failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	if err := c.store.Delete(audioName(key)); err != nil {
		c.logger.Warn("evict audio failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (c *Cache) recordEvent(name, key string) {
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: c.now(),
		Tags: map[string]string{"key": key},
	})
}
