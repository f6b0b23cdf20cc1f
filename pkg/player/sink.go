package player

import (
	"time"

	"github.com/harunnryd/kisah/pkg/chunks"
)

// Sink is the audio output the player drives. Implementations decode and
// render one chunk at a time; the player never overlaps chunks.
//
// Start begins playback of chunk at the given offset and returns the
// decoded duration. onDone is invoked exactly once, from any goroutine,
// when the chunk finishes naturally; it is not invoked after Stop.
type Sink interface {
	Start(chunk chunks.AudioChunk, offset time.Duration, onDone func()) (time.Duration, error)
	Pause() error
	Resume() error
	Stop() error
	// Position reports the offset within the chunk currently loaded.
	Position() time.Duration
}
