package metrics

import "time"

// Event names emitted by the generation and playback pipeline.
const (
	EventCacheHit        = "cache_hit"
	EventCacheMiss       = "cache_miss"
	EventCacheEvictStale = "cache_evict_stale"
	EventRemoteCall      = "remote_call"
	EventRetry           = "generation_retry"
	EventChunkGenerated  = "chunk_generated"
	EventChunkFailed     = "chunk_failed"
	EventBreakerOpen     = "breaker_open"
	EventBreakerDenied   = "breaker_denied"
	EventFirstAudio      = "first_audio"
	EventStateChange     = "playback_state_change"
	EventChunkSkipped    = "playback_chunk_skipped"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
