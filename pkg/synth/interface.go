// Package synth defines the contract every speech synthesizer vendor
// implements, plus validation of the payloads they return.
package synth

import "context"

// Request describes one chunk of text to synthesize.
type Request struct {
	Text     string
	Voice    string
	Language string
	Speed    float64
}

// Response carries the synthesized audio payload.
type Response struct {
	Audio []byte
	// MimeType is advisory; providers that know the container set it.
	MimeType string
}

// Synthesizer converts text to audio. Implementations must be safe for
// concurrent use and classify failures with errorsx reason codes so the
// orchestrator can decide what is retryable.
type Synthesizer interface {
	// Name returns the vendor name for logging and metrics.
	Name() string
	// Synthesize produces audio for one request. Blocking; honors ctx.
	Synthesize(ctx context.Context, req Request) (Response, error)
}
