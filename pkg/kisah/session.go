package kisah

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/harunnryd/kisah/pkg/cache"
	"github.com/harunnryd/kisah/pkg/chunker"
	"github.com/harunnryd/kisah/pkg/chunks"
	"github.com/harunnryd/kisah/pkg/events"
	"github.com/harunnryd/kisah/pkg/generator"
	"github.com/harunnryd/kisah/pkg/logging"
	"github.com/harunnryd/kisah/pkg/metrics"
	"github.com/harunnryd/kisah/pkg/player"
	"github.com/harunnryd/kisah/pkg/resilience"
	"github.com/harunnryd/kisah/pkg/storage"
	"github.com/harunnryd/kisah/pkg/synth"
)

// Session is the application-facing facade: it wires the chunker, cache,
// orchestrator and player together and exposes one combined event stream.
type Session struct {
	cfg     Config
	logger  *slog.Logger
	stream  *events.Stream
	chunker *chunker.Chunker
	orch    *generator.Orchestrator
	player  *player.Player
	obs     metrics.Observer

	metricsFile *os.File
	asyncObs    *metrics.AsyncObserver

	mu      sync.Mutex
	job     *generator.Job
	forward sync.WaitGroup
}

type sessionDeps struct {
	fs     afero.Fs
	synth  synth.Synthesizer
	obs    metrics.Observer
	logger *slog.Logger
}

type SessionOption func(*sessionDeps)

// WithFs substitutes the filesystem backing the cache and spool, used by
// tests to stay in memory.
func WithFs(fs afero.Fs) SessionOption {
	return func(d *sessionDeps) { d.fs = fs }
}

// WithSynthesizer bypasses the provider registry.
func WithSynthesizer(s synth.Synthesizer) SessionOption {
	return func(d *sessionDeps) { d.synth = s }
}

// WithObserver replaces the configured metrics observer.
func WithObserver(obs metrics.Observer) SessionOption {
	return func(d *sessionDeps) { d.obs = obs }
}

// WithLogger replaces the configured logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(d *sessionDeps) { d.logger = logger }
}

// NewSession builds a session from config. The sink is the platform audio
// output the player drives.
func NewSession(cfg Config, sink player.Sink, opts ...SessionOption) (*Session, error) {
	deps := &sessionDeps{}
	for _, opt := range opts {
		opt(deps)
	}

	logger := deps.logger
	if logger == nil {
		logger = logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	}

	s := &Session{cfg: cfg, logger: logger, stream: events.NewStream()}

	obs := deps.obs
	if obs == nil {
		obs = metrics.Observer(metrics.NoopObserver{})
		if cfg.Observability.MetricsPath != "" {
			f, err := os.OpenFile(cfg.Observability.MetricsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open metrics file: %w", err)
			}
			s.metricsFile = f
			s.asyncObs = metrics.NewAsyncObserver(metrics.NewJSONLObserver(f), 256)
			obs = s.asyncObs
		}
	}
	s.obs = obs

	fs := deps.fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	store, err := storage.NewFSStore(fs, cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}
	chunkCache := cache.New(store, time.Duration(cfg.Cache.TTLHours)*time.Hour, logger, obs)

	s.chunker = chunker.New(chunker.Options{
		MaxChunkSize:   cfg.Chunking.MaxChunkSize,
		MinMergeSize:   cfg.Chunking.MinMergeSize,
		CharsPerSecond: cfg.Chunking.CharsPerSecond,
	}, logger)

	synthesizer := deps.synth
	if synthesizer == nil {
		synthesizer, err = DefaultRegistry().Build(cfg.Vendor.Provider, cfg.Vendor.Settings, logger)
		if err != nil {
			return nil, err
		}
	}

	breaker := resilience.NewCircuitBreaker(
		cfg.Generation.BreakerThreshold,
		time.Duration(cfg.Generation.BreakerCooldownMS)*time.Millisecond,
	)
	s.orch = generator.New(s.chunker, chunkCache, synthesizer, breaker, s.stream, logger, obs, generator.Options{
		Concurrency:        cfg.Generation.Concurrency,
		ChunkAttempts:      cfg.Generation.ChunkAttempts,
		FirstChunkAttempts: cfg.Generation.FirstChunkAttempts,
		RetryBackoff:       time.Duration(cfg.Generation.RetryBackoffMS) * time.Millisecond,
	})

	playerOpts := player.DefaultOptions()
	playerOpts.BufferAhead = cfg.Playback.BufferAhead
	if cfg.Playback.SpoolDir != "" {
		playerOpts.SpoolDir = cfg.Playback.SpoolDir
	}
	s.player = player.New(sink, fs, s.stream, logger, obs, playerOpts)

	return s, nil
}

// Narrate splits text, prepares the player timeline and starts generation.
// Generated chunks flow to the player as they resolve; playback begins on
// Play. A narration already in flight is cancelled first.
func (s *Session) Narrate(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job != nil {
		s.job.Cancel()
		s.forward.Wait()
	}

	textChunks := s.chunker.Optimize(s.chunker.Split(text))
	s.player.Prepare(textChunks)

	job, err := s.orch.Generate(ctx, generator.Request{
		Text:     text,
		Voice:    s.cfg.Narration.Voice,
		Language: s.cfg.Narration.Language,
		Speed:    s.cfg.Narration.Speed,
	})
	if err != nil {
		return err
	}
	s.job = job

	s.forward.Add(1)
	go func() {
		defer s.forward.Done()
		results, failures := job.Results(), job.Failures()
		for results != nil || failures != nil {
			select {
			case chunk, ok := <-results:
				if !ok {
					results = nil
					continue
				}
				s.player.AddChunk(chunk)
			case index, ok := <-failures:
				if !ok {
					failures = nil
					continue
				}
				s.player.MarkFailed(index)
			}
		}
	}()
	return nil
}

// Cancel stops the in-flight generation batch, if any. Playback of chunks
// already delivered continues.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job != nil {
		s.job.Cancel()
	}
}

// Progress returns the current generation snapshot.
func (s *Session) Progress() chunks.GenerationProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil {
		return chunks.GenerationProgress{}
	}
	return s.job.Progress()
}

// Wait blocks until the current generation batch finishes.
func (s *Session) Wait() (successful, total int) {
	s.mu.Lock()
	job := s.job
	s.mu.Unlock()
	if job == nil {
		return 0, 0
	}
	return job.Wait()
}

func (s *Session) Play()                  { s.player.Play() }
func (s *Session) PlayFrom(index int)     { s.player.PlayFrom(index) }
func (s *Session) Pause()                 { s.player.Pause() }
func (s *Session) Resume()                { s.player.Resume() }
func (s *Session) Seek(pos time.Duration) { s.player.Seek(pos) }
func (s *Session) StopPlayback()          { s.player.Stop() }

// ClearPlayback abandons the current narration entirely, releasing the
// player's chunks and spool files. Cached audio is unaffected.
func (s *Session) ClearPlayback() { s.player.Clear() }
func (s *Session) State() chunks.PlaybackState { return s.player.State() }

// States returns the last-write-wins playback snapshot channel.
func (s *Session) States() <-chan events.Event { return s.player.States() }

// Events subscribes to the combined progress, playback, error and
// completion stream. The returned func unsubscribes.
func (s *Session) Events(buffer int) (<-chan events.Event, func()) {
	return s.stream.Subscribe(buffer)
}

// Drain cancels generation and waits for chunk forwarding to settle, so a
// lifecycle runner can stop the process without losing cache writes.
func (s *Session) Drain() error {
	s.Cancel()
	s.forward.Wait()
	return nil
}

// Close cancels generation, drains the player queue and releases the
// metrics sink.
func (s *Session) Close() {
	s.Cancel()
	s.forward.Wait()
	s.player.Close()
	s.stream.Close()
	if s.asyncObs != nil {
		s.asyncObs.Close()
	}
	if s.metricsFile != nil {
		_ = s.metricsFile.Close()
	}
}
