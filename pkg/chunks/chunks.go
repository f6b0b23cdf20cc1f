package chunks

import "time"

// TextChunk is a bounded slice of narration text produced by the chunker.
// Chunks are immutable; Index runs 0..Total-1 and every chunk in one split
// carries the same Total.
type TextChunk struct {
	Index             int
	Total             int
	Text              string
	CharCount         int
	EstimatedDuration time.Duration
}

// AudioChunk is a generated (or cached) audio payload for one text chunk.
// Audio holds the raw bytes; FileRef points at the cache copy when the
// chunk was persisted. ActualDuration is zero until the player decodes it.
type AudioChunk struct {
	Index             int
	Total             int
	Text              string
	Audio             []byte
	FileRef           string
	CharCount         int
	EstimatedDuration time.Duration
	ActualDuration    time.Duration
	FromCache         bool
}

// Duration returns the decoded duration when known, the estimate otherwise.
func (c AudioChunk) Duration() time.Duration {
	if c.ActualDuration > 0 {
		return c.ActualDuration
	}
	return c.EstimatedDuration
}

// GenerationProgress is a monotonic snapshot of orchestrator progress.
type GenerationProgress struct {
	Total     int
	Generated int
	Loading   int
	Failed    int
	Complete  bool
}

// PlayerState enumerates the playback state machine.
type PlayerState int

const (
	StateIdle PlayerState = iota
	StateBuffering
	StatePlaying
	StatePaused
	StateCompleted
)

func (s PlayerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// PlaybackState is the snapshot pushed to the application after every
// mutating player operation.
type PlaybackState struct {
	State         PlayerState
	CurrentChunk  int
	IsPlaying     bool
	IsBuffering   bool
	Position      time.Duration // within the current chunk
	TotalPosition time.Duration // on the virtual timeline
	ChunkDuration time.Duration
	TotalDuration time.Duration
	BufferHealth  float64
}
