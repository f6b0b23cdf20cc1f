// Package mock provides a deterministic in-process synthesizer for tests
// and the example binary. Calls can be scripted to fail with specific
// reason codes, per call index.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harunnryd/kisah/pkg/errorsx"
	"github.com/harunnryd/kisah/pkg/synth"
)

type Config struct {
	// Latency is applied to every call, honoring ctx cancellation.
	Latency time.Duration
	// FailuresByCall scripts a failure reason for the nth call (0-based).
	// Calls not listed succeed.
	FailuresByCall map[int]errorsx.ReasonCode
}

type Synthesizer struct {
	cfg Config

	mu    sync.Mutex
	calls int
}

func New(cfg Config) *Synthesizer {
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Name() string { return "mock" }

// Calls returns how many synthesis calls were made.
func (s *Synthesizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Synthesize returns a deterministic WAV-tagged payload derived from the
// request text, so repeated calls with the same input produce identical
// bytes and cache keys stay stable across runs.
func (s *Synthesizer) Synthesize(ctx context.Context, req synth.Request) (synth.Response, error) {
	s.mu.Lock()
	n := s.calls
	s.calls++
	reason, scripted := s.cfg.FailuresByCall[n]
	s.mu.Unlock()

	if s.cfg.Latency > 0 {
		select {
		case <-time.After(s.cfg.Latency):
		case <-ctx.Done():
			return synth.Response{}, errorsx.Wrap(ctx.Err(), errorsx.ReasonCancelled)
		}
	}
	if scripted {
		return synth.Response{}, errorsx.Wrap(fmt.Errorf("mock: scripted failure at call %d", n), reason)
	}

	payload := append([]byte("RIFF\x00\x00\x00\x00WAVE"), []byte(req.Voice+"|"+req.Text)...)
	return synth.Response{Audio: payload, MimeType: "audio/wav"}, nil
}

var _ synth.Synthesizer = (*Synthesizer)(nil)
