package events

import (
	"time"

	"github.com/harunnryd/kisah/pkg/chunks"
)

type Kind string

const (
	KindProgress Kind = "progress"
	KindPlayback Kind = "playback"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// Event is the tagged union pushed to subscribers. Consumers switch on
// Kind() and assert the concrete type.
type Event interface {
	Kind() Kind
	At() time.Time
}

// ProgressEvent carries a generation progress snapshot.
type ProgressEvent struct {
	Time     time.Time
	Progress chunks.GenerationProgress
}

func (e ProgressEvent) Kind() Kind    { return KindProgress }
func (e ProgressEvent) At() time.Time { return e.Time }

// PlaybackEvent carries a playback state snapshot.
type PlaybackEvent struct {
	Time  time.Time
	State chunks.PlaybackState
}

func (e PlaybackEvent) Kind() Kind    { return KindPlayback }
func (e PlaybackEvent) At() time.Time { return e.Time }

// CompleteEvent reports the end of a generation batch. Successful may be
// lower than Total when individual chunks failed permanently.
type CompleteEvent struct {
	Time       time.Time
	Successful int
	Total      int
}

func (e CompleteEvent) Kind() Kind    { return KindComplete }
func (e CompleteEvent) At() time.Time { return e.Time }

// ErrorEvent reports a chunk-level or pipeline-level failure. ChunkIndex is
// -1 for pipeline-level conditions.
type ErrorEvent struct {
	Time       time.Time
	ChunkIndex int
	Err        error
}

func (e ErrorEvent) Kind() Kind    { return KindError }
func (e ErrorEvent) At() time.Time { return e.Time }
