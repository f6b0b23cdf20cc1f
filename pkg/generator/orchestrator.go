// Package generator coordinates chunked audio generation: split text,
// serve chunks from the cache, synthesize misses through a bounded worker
// pool and report progress after every chunk resolution. The first chunk
// is generated ahead of the pool because it gates time-to-first-audio.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/kisah/pkg/cache"
	"github.com/harunnryd/kisah/pkg/chunker"
	"github.com/harunnryd/kisah/pkg/chunks"
	"github.com/harunnryd/kisah/pkg/errorsx"
	"github.com/harunnryd/kisah/pkg/events"
	"github.com/harunnryd/kisah/pkg/logging"
	"github.com/harunnryd/kisah/pkg/metrics"
	"github.com/harunnryd/kisah/pkg/resilience"
	"github.com/harunnryd/kisah/pkg/synth"
	"github.com/harunnryd/kisah/pkg/voices"
)

type Options struct {
	// Concurrency bounds the synthesis worker pool.
	Concurrency int
	// ChunkAttempts is the per-chunk retry budget for transient failures.
	ChunkAttempts int
	// FirstChunkAttempts is the elevated budget for the chunk that gates
	// time-to-first-audio. Also used on the single-chunk fast path.
	FirstChunkAttempts int
	// RetryBackoff is the initial backoff between attempts.
	RetryBackoff time.Duration
}

func DefaultOptions() Options {
	return Options{
		Concurrency:        3,
		ChunkAttempts:      3,
		FirstChunkAttempts: 5,
		RetryBackoff:       200 * time.Millisecond,
	}
}

type Orchestrator struct {
	chunker *chunker.Chunker
	cache   *cache.Cache
	synth   synth.Synthesizer
	breaker *resilience.CircuitBreaker
	stream  *events.Stream
	logger  *slog.Logger
	obs     metrics.Observer
	opts    Options
}

func New(
	ch *chunker.Chunker,
	c *cache.Cache,
	s synth.Synthesizer,
	breaker *resilience.CircuitBreaker,
	stream *events.Stream,
	logger *slog.Logger,
	obs metrics.Observer,
	opts Options,
) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.ChunkAttempts <= 0 {
		opts.ChunkAttempts = 3
	}
	if opts.FirstChunkAttempts <= 0 {
		opts.FirstChunkAttempts = 5
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Orchestrator{
		chunker: ch,
		cache:   c,
		synth:   s,
		breaker: breaker,
		stream:  stream,
		logger:  logging.NewComponentLogger(logger, "orchestrator"),
		obs:     obs,
		opts:    opts,
	}
}

// Request describes one narration to generate. Voice is a style name or
// alias from the catalog, resolved against the active provider.
type Request struct {
	Text     string
	Voice    string
	Language string
	Speed    float64
}

// Job is a running generation batch. Results delivers audio chunks as
// they resolve, in completion order; consumers reorder by Index.
type Job struct {
	results  chan chunks.AudioChunk
	failures chan int
	cancel   context.CancelFunc
	done     chan struct{}

	mu         sync.Mutex
	progress   chunks.GenerationProgress
	successful int
}

func (j *Job) Results() <-chan chunks.AudioChunk { return j.results }

// Failures delivers the indices of chunks whose retry budget was
// exhausted, so the player can skip them instead of waiting forever.
func (j *Job) Failures() <-chan int { return j.failures }

// Cancel stops the batch and resets the progress counters. In-flight
// synthesis calls are interrupted via their context; chunks already
// delivered stay valid, and a late cache write from an interrupted call
// is harmless.
func (j *Job) Cancel() { j.cancel() }

// Wait blocks until the batch finishes and returns how many chunks
// succeeded out of the total.
func (j *Job) Wait() (successful, total int) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.successful, j.progress.Total
}

// Progress returns the current snapshot.
func (j *Job) Progress() chunks.GenerationProgress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Generate starts a batch for req and returns immediately. Empty input
// yields a job that completes with zero chunks.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Job, error) {
	voiceID, err := voices.Resolve(req.Voice, voices.Provider(o.synth.Name()))
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonInvalidInput)
	}
	if req.Speed <= 0 {
		req.Speed = 1.0
	}
	textChunks := o.chunker.Optimize(o.chunker.Split(req.Text))

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		results:  make(chan chunks.AudioChunk, len(textChunks)),
		failures: make(chan int, len(textChunks)),
		cancel:   cancel,
		done:     make(chan struct{}),
		progress: chunks.GenerationProgress{
			Total:   len(textChunks),
			Loading: len(textChunks),
		},
	}

	o.logger.Info("generation started",
		slog.Int("chunks", len(textChunks)),
		slog.String("voice", voiceID),
		slog.String("provider", o.synth.Name()))
	o.publishProgress(job)

	go o.run(jobCtx, job, req, voiceID, textChunks)
	return job, nil
}

func (o *Orchestrator) run(ctx context.Context, job *Job, req Request, voiceID string, textChunks []chunks.TextChunk) {
	defer func() {
		job.mu.Lock()
		if ctx.Err() != nil {
			// Cancelled: chunks never resolved are no longer loading.
			// Counters reset to a clean terminal snapshot; delivered
			// chunks stay with the player.
			job.progress = chunks.GenerationProgress{Total: job.progress.Total}
		}
		job.progress.Complete = true
		successful, total := job.successful, job.progress.Total
		job.mu.Unlock()
		o.publishProgress(job)
		if o.stream != nil {
			o.stream.Publish(events.CompleteEvent{Time: time.Now(), Successful: successful, Total: total})
		}
		o.logger.Info("generation finished",
			slog.Int("successful", successful),
			slog.Int("total", total))
		close(job.results)
		close(job.failures)
		close(job.done)
	}()

	if len(textChunks) == 0 {
		return
	}

	basePolicy := resilience.RetryPolicy{
		MaxAttempts: o.opts.ChunkAttempts,
		Backoff:     o.opts.RetryBackoff,
		Multiplier:  2,
	}
	firstPolicy := basePolicy.WithAttempts(o.opts.FirstChunkAttempts)

	// Chunk 0 resolves before the pool starts so first audio is never
	// queued behind later chunks.
	o.resolveChunk(ctx, job, req, voiceID, textChunks[0], firstPolicy)
	if len(textChunks) == 1 || ctx.Err() != nil {
		return
	}

	queue := make(chan chunks.TextChunk)
	var wg sync.WaitGroup
	for i := 0; i < o.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tc := range queue {
				if ctx.Err() != nil {
					return
				}
				o.resolveChunk(ctx, job, req, voiceID, tc, basePolicy)
			}
		}()
	}
	for _, tc := range textChunks[1:] {
		select {
		case queue <- tc:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(queue)
	wg.Wait()
}

func (o *Orchestrator) resolveChunk(
	ctx context.Context,
	job *Job,
	req Request,
	voiceID string,
	tc chunks.TextChunk,
	policy resilience.RetryPolicy,
) {
	key := cache.BuildKey(tc.Text, voiceID, req.Language, req.Speed)

	if data, meta, ok := o.cache.Get(key); ok {
		o.deliver(job, tc, data, meta.FileRef, true)
		return
	}

	meta := cache.Metadata{Voice: voiceID, Language: req.Language, Speed: req.Speed}
	loader := func(ctx context.Context) ([]byte, error) {
		var audio []byte
		err := policy.Do(ctx, func(ctx context.Context) error {
			if o.breaker != nil && !o.breaker.Allow() {
				o.record(metrics.EventBreakerDenied, tc.Index)
				return errorsx.Wrap(fmt.Errorf("synthesis suspended after repeated provider failures"), errorsx.ReasonQuotaExceeded)
			}
			o.record(metrics.EventRemoteCall, tc.Index)
			resp, err := o.synth.Synthesize(ctx, synth.Request{
				Text:     tc.Text,
				Voice:    voiceID,
				Language: req.Language,
				Speed:    req.Speed,
			})
			if err != nil {
				if o.breaker != nil {
					o.breaker.OnError(err)
				}
				if errorsx.Retryable(errorsx.Reason(err)) {
					o.record(metrics.EventRetry, tc.Index)
					o.logger.Warn("chunk synthesis retrying",
						slog.Int("chunk", tc.Index),
						slog.String("error", err.Error()))
				}
				return err
			}
			if o.breaker != nil {
				o.breaker.OnSuccess()
			}
			audio = resp.Audio
			return nil
		})
		return audio, err
	}

	data, ref, err := o.cache.Fetch(ctx, key, meta, loader)
	if err != nil {
		o.fail(job, tc, err)
		return
	}
	o.deliver(job, tc, data, ref, false)
}

func (o *Orchestrator) deliver(job *Job, tc chunks.TextChunk, audio []byte, ref string, fromCache bool) {
	job.mu.Lock()
	job.progress.Generated++
	job.progress.Loading--
	job.successful++
	job.mu.Unlock()

	if tc.Index == 0 {
		o.record(metrics.EventFirstAudio, 0)
	}
	o.record(metrics.EventChunkGenerated, tc.Index)
	o.logger.Debug("chunk ready",
		slog.Int("chunk", tc.Index),
		slog.Bool("from_cache", fromCache),
		slog.Int("audio_bytes", len(audio)))

	job.results <- chunks.AudioChunk{
		Index:             tc.Index,
		Total:             tc.Total,
		Text:              tc.Text,
		Audio:             audio,
		FileRef:           ref,
		CharCount:         tc.CharCount,
		EstimatedDuration: tc.EstimatedDuration,
		FromCache:         fromCache,
	}
	o.publishProgress(job)
}

func (o *Orchestrator) fail(job *Job, tc chunks.TextChunk, err error) {
	job.mu.Lock()
	job.progress.Failed++
	job.progress.Loading--
	job.mu.Unlock()

	o.record(metrics.EventChunkFailed, tc.Index)
	o.logger.Error("chunk generation failed",
		slog.Int("chunk", tc.Index),
		slog.String("reason", string(errorsx.Reason(err))),
		slog.String("error", err.Error()))
	if o.stream != nil {
		o.stream.Publish(events.ErrorEvent{Time: time.Now(), ChunkIndex: tc.Index, Err: err})
	}
	job.failures <- tc.Index
	o.publishProgress(job)
}

func (o *Orchestrator) publishProgress(job *Job) {
	if o.stream == nil {
		return
	}
	job.mu.Lock()
	snapshot := job.progress
	job.mu.Unlock()
	o.stream.Publish(events.ProgressEvent{Time: time.Now(), Progress: snapshot})
}

func (o *Orchestrator) record(name string, chunkIndex int) {
	o.obs.RecordEvent(metrics.MetricsEvent{
		Name:  name,
		Time:  time.Now(),
		Value: float64(chunkIndex),
	})
}
