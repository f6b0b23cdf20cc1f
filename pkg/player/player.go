// Package player renders generated audio chunks as one continuous
// narration. It owns the playback state machine, the virtual timeline
// across chunks, and gapless advancing; every mutation runs through a
// serialized operation queue so overlapping calls cannot corrupt state.
package player

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/harunnryd/kisah/pkg/chunks"
	"github.com/harunnryd/kisah/pkg/errorsx"
	"github.com/harunnryd/kisah/pkg/events"
	"github.com/harunnryd/kisah/pkg/logging"
	"github.com/harunnryd/kisah/pkg/metrics"
	"github.com/harunnryd/kisah/pkg/timeline"
)

// validTransitions is the playback state machine. Anything not listed is
// rejected and logged, never applied.
var validTransitions = map[chunks.PlayerState][]chunks.PlayerState{
	chunks.StateIdle:      {chunks.StateBuffering, chunks.StatePlaying, chunks.StatePaused},
	chunks.StateBuffering: {chunks.StatePlaying, chunks.StatePaused, chunks.StateIdle, chunks.StateCompleted},
	chunks.StatePlaying:   {chunks.StatePaused, chunks.StateBuffering, chunks.StateCompleted, chunks.StateIdle},
	chunks.StatePaused:    {chunks.StatePlaying, chunks.StateBuffering, chunks.StateIdle},
	chunks.StateCompleted: {chunks.StatePlaying, chunks.StateBuffering, chunks.StateIdle},
}

type Options struct {
	// BufferAhead is how many upcoming chunks count toward buffer health,
	// clamped to 0..5. Zero means no look-ahead.
	BufferAhead int
	// SpoolDir receives per-chunk audio files for sinks that read from disk.
	SpoolDir string
}

func DefaultOptions() Options {
	return Options{BufferAhead: 2, SpoolDir: "/tmp/kisah-spool"}
}

type Player struct {
	sink   Sink
	ops    *opQueue
	stream *events.Stream
	pusher *events.StatePusher
	logger *slog.Logger
	obs    metrics.Observer
	fs     afero.Fs
	opts   Options

	// Mutated only on the op queue goroutine.
	tl        *timeline.Timeline
	total     int
	available map[int]chunks.AudioChunk
	// failed marks chunks whose generation gave up; advancing skips them.
	failed map[int]bool
	// spooled tracks the temp files this player wrote, so Clear can
	// delete them without touching cache-owned files.
	spooled map[int]string
	state   chunks.PlayerState
	current int
	// loaded is the chunk index the sink currently holds, -1 after the
	// sink was stopped or has not started yet.
	loaded int
	// pausedAt holds the chunk-local offset while not actively playing.
	pausedAt time.Duration
	// wantPlaying resumes playback automatically when a buffered chunk
	// arrives.
	wantPlaying bool
	generation  int
}

func New(sink Sink, fs afero.Fs, stream *events.Stream, logger *slog.Logger, obs metrics.Observer, opts Options) *Player {
	if opts.BufferAhead < 0 {
		opts.BufferAhead = 0
	}
	if opts.BufferAhead > 5 {
		opts.BufferAhead = 5
	}
	if opts.SpoolDir == "" {
		opts.SpoolDir = DefaultOptions().SpoolDir
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Player{
		sink:      sink,
		ops:       newOpQueue(64),
		stream:    stream,
		pusher:    events.NewStatePusher(),
		logger:    logging.NewComponentLogger(logger, "chunk_player"),
		obs:       obs,
		fs:        fs,
		opts:      opts,
		tl:        timeline.New(nil),
		available: make(map[int]chunks.AudioChunk),
		failed:    make(map[int]bool),
		spooled:   make(map[int]string),
		state:     chunks.StateIdle,
		loaded:    -1,
	}
}

// States returns the last-write-wins snapshot channel. The reader always
// sees the most recent state; intermediate snapshots may be replaced.
func (p *Player) States() <-chan events.Event { return p.pusher.C() }

// State returns a current snapshot, synchronized through the op queue so
// it never observes a half-applied mutation.
func (p *Player) State() chunks.PlaybackState {
	var snap chunks.PlaybackState
	done := make(chan struct{})
	p.ops.submit(func() {
		snap = p.snapshot()
		close(done)
	})
	<-done
	return snap
}

// BufferHealth reports the preloaded fraction of the look-ahead window.
func (p *Player) BufferHealth() float64 { return p.State().BufferHealth }

// Prepare resets the player for a new narration described by its text
// chunks. The timeline starts from duration estimates and tightens as
// chunks are decoded.
func (p *Player) Prepare(textChunks []chunks.TextChunk) {
	estimates := make([]time.Duration, len(textChunks))
	for i, tc := range textChunks {
		estimates[i] = tc.EstimatedDuration
	}
	p.ops.submit(func() {
		_ = p.sink.Stop()
		p.loaded = -1
		p.release()
		p.tl = timeline.New(estimates)
		p.total = len(textChunks)
		p.state = chunks.StateIdle
		p.current = 0
		p.pausedAt = 0
		p.wantPlaying = false
		p.generation++
		p.push()
	})
}

// AddChunk hands a generated chunk to the player. Arrival order does not
// matter; if playback is buffering on exactly this chunk it resumes at the
// pending offset.
func (p *Player) AddChunk(chunk chunks.AudioChunk) {
	p.ops.submit(func() {
		if chunk.Index < 0 || chunk.Index >= p.total {
			p.logger.Warn("chunk outside narration bounds",
				slog.Int("chunk", chunk.Index),
				slog.Int("total", p.total))
			return
		}
		if chunk.FileRef == "" {
			if ref := p.spool(chunk); ref != "" {
				chunk.FileRef = ref
				p.spooled[chunk.Index] = ref
			}
		}
		p.available[chunk.Index] = chunk
		if p.state == chunks.StateBuffering && chunk.Index == p.current && p.wantPlaying {
			p.startCurrent(p.pausedAt)
		}
		p.push()
	})
}

// MarkFailed records that a chunk will never arrive. A buffering wait on
// that index moves on to the next chunk instead of stalling; if nothing
// is left, playback completes early.
func (p *Player) MarkFailed(index int) {
	p.ops.submit(func() {
		if index < 0 || index >= p.total {
			return
		}
		p.failed[index] = true
		p.logger.Warn("chunk marked unplayable", slog.Int("chunk", index))
		if p.state == chunks.StateBuffering && p.current == index {
			p.advance()
		}
		p.push()
	})
}

// Play starts narration from the beginning, or restarts it after
// completion. Buffering when chunk 0 has not arrived yet.
func (p *Player) Play() { p.PlayFrom(0) }

// PlayFrom starts narration at the given chunk index. If that chunk has
// not been generated yet the player buffers on it and starts as soon as
// it arrives.
func (p *Player) PlayFrom(index int) {
	p.ops.submit(func() {
		switch p.state {
		case chunks.StateIdle, chunks.StateCompleted:
		default:
			p.logInvalid("play")
			return
		}
		if index < 0 || (p.total > 0 && index >= p.total) {
			p.logger.Warn("play index outside narration bounds",
				slog.Int("chunk", index),
				slog.Int("total", p.total))
			return
		}
		for index < p.total && p.failed[index] {
			index++
		}
		if p.total > 0 && index >= p.total {
			p.logInvalid("play")
			return
		}
		p.current = index
		p.pausedAt = 0
		p.wantPlaying = true
		if _, ok := p.available[index]; ok {
			p.startCurrent(0)
		} else {
			p.transition(chunks.StateBuffering)
		}
		p.push()
	})
}

// Pause freezes playback, remembering the position within the chunk.
func (p *Player) Pause() {
	p.ops.submit(func() {
		switch p.state {
		case chunks.StatePlaying:
			p.pausedAt = p.sink.Position()
			if err := p.sink.Pause(); err != nil {
				p.logger.Warn("sink pause failed", slog.String("error", err.Error()))
			}
			p.wantPlaying = false
			p.transition(chunks.StatePaused)
		case chunks.StateBuffering:
			// Stop auto-resume; stay buffering until resumed.
			p.wantPlaying = false
		default:
			p.logInvalid("pause")
			return
		}
		p.push()
	})
}

// Resume continues from the paused position.
func (p *Player) Resume() {
	p.ops.submit(func() {
		switch p.state {
		case chunks.StatePaused:
			p.wantPlaying = true
			// A seek while paused may have moved off the loaded chunk;
			// restart the sink instead of un-pausing a stopped one.
			if p.loaded != p.current {
				if _, ok := p.available[p.current]; ok {
					p.startCurrent(p.pausedAt)
				} else {
					p.transition(chunks.StateBuffering)
				}
				break
			}
			if err := p.sink.Resume(); err != nil {
				p.logger.Warn("sink resume failed", slog.String("error", err.Error()))
			}
			p.transition(chunks.StatePlaying)
		case chunks.StateBuffering:
			p.wantPlaying = true
			if _, ok := p.available[p.current]; ok {
				p.startCurrent(p.pausedAt)
			}
		default:
			p.logInvalid("resume")
			return
		}
		p.push()
	})
}

// Seek jumps to a global timeline position. When the target chunk has not
// been generated yet the player buffers on it and resumes at the desired
// offset once it arrives.
func (p *Player) Seek(position time.Duration) {
	p.ops.submit(func() {
		if p.total == 0 {
			p.logInvalid("seek")
			return
		}
		index, offset := p.tl.Locate(position)
		for index < p.total && p.failed[index] {
			index++
			offset = 0
		}
		if index >= p.total {
			p.logInvalid("seek")
			return
		}
		resume := p.state == chunks.StatePlaying || p.wantPlaying
		_ = p.sink.Stop()
		p.loaded = -1
		p.current = index
		p.pausedAt = offset
		p.wantPlaying = resume
		p.logger.Debug("seek",
			slog.Int("chunk", index),
			slog.Duration("offset", offset),
			slog.Bool("resume", resume))

		if _, ok := p.available[index]; ok && resume {
			p.startCurrent(offset)
		} else if _, ok := p.available[index]; ok {
			p.transition(chunks.StatePaused)
		} else {
			p.transition(chunks.StateBuffering)
		}
		p.push()
	})
}

// Stop abandons the narration and returns to idle. Registered chunks are
// kept, so Play can restart without regeneration.
func (p *Player) Stop() {
	p.ops.submit(func() {
		_ = p.sink.Stop()
		p.loaded = -1
		p.wantPlaying = false
		p.pausedAt = 0
		p.current = 0
		p.transition(chunks.StateIdle)
		p.push()
	})
}

// Clear returns to idle and additionally forgets all registered chunks,
// empties the timeline and deletes the spool files this player wrote.
func (p *Player) Clear() {
	p.ops.submit(func() {
		_ = p.sink.Stop()
		p.loaded = -1
		p.release()
		p.tl = timeline.New(nil)
		p.total = 0
		p.current = 0
		p.pausedAt = 0
		p.wantPlaying = false
		p.generation++
		p.transition(chunks.StateIdle)
		p.push()
	})
}

// Close shuts the operation queue down. Pending operations run first.
func (p *Player) Close() {
	p.ops.submit(func() { _ = p.sink.Stop() })
	p.ops.close()
}

// startCurrent begins sink playback of the current chunk at offset. Runs
// on the op queue goroutine only.
func (p *Player) startCurrent(offset time.Duration) {
	chunk := p.available[p.current]
	gen := p.generation
	idx := p.current
	p.loaded = -1
	actual, err := p.sink.Start(chunk, offset, func() {
		p.ops.submit(func() {
			if p.generation != gen || p.current != idx {
				return
			}
			p.advance()
			p.push()
		})
	})
	if err != nil {
		p.logger.Error("sink start failed",
			slog.Int("chunk", p.current),
			slog.String("error", err.Error()))
		if p.stream != nil {
			p.stream.Publish(events.ErrorEvent{
				Time:       time.Now(),
				ChunkIndex: p.current,
				Err:        errorsx.Wrap(err, errorsx.ReasonPlaybackDecode),
			})
		}
		p.obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventChunkSkipped, Time: time.Now(), Value: float64(p.current)})
		p.advance()
		return
	}
	if actual > 0 {
		p.tl.SetActual(p.current, actual)
		chunk.ActualDuration = actual
		p.available[p.current] = chunk
	}
	p.loaded = p.current
	p.pausedAt = offset
	p.transition(chunks.StatePlaying)
}

// advance moves to the next chunk after the current one finishes (or is
// skipped). Runs on the op queue goroutine only.
func (p *Player) advance() {
	// Drop the finished chunk's in-memory audio; the spool file stays so
	// a replay can reload it.
	if c, ok := p.available[p.current]; ok && c.FileRef != "" {
		c.Audio = nil
		p.available[p.current] = c
	}
	p.loaded = -1
	p.current++
	for p.current < p.total && p.failed[p.current] {
		p.current++
	}
	p.pausedAt = 0
	if p.current >= p.total {
		p.current = p.total
		p.wantPlaying = false
		p.transition(chunks.StateCompleted)
		return
	}
	if _, ok := p.available[p.current]; ok && p.wantPlaying {
		p.startCurrent(0)
		return
	}
	p.transition(chunks.StateBuffering)
}

func (p *Player) transition(to chunks.PlayerState) {
	if p.state == to {
		return
	}
	allowed := false
	for _, s := range validTransitions[p.state] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		p.logger.Warn("invalid state transition rejected",
			slog.String("from", p.state.String()),
			slog.String("to", to.String()))
		return
	}
	p.logger.Debug("state transition",
		slog.String("from", p.state.String()),
		slog.String("to", to.String()))
	p.obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventStateChange,
		Time: time.Now(),
		Tags: map[string]string{"from": p.state.String(), "to": to.String()},
	})
	p.state = to
}

// snapshot builds the externally visible playback state. Runs on the op
// queue goroutine only.
func (p *Player) snapshot() chunks.PlaybackState {
	pos := p.pausedAt
	if p.state == chunks.StatePlaying {
		pos = p.sink.Position()
	}
	current := p.current
	if current >= p.total && p.total > 0 {
		current = p.total - 1
		pos = p.tl.Duration(current)
	}
	return chunks.PlaybackState{
		State:         p.state,
		CurrentChunk:  current,
		IsPlaying:     p.state == chunks.StatePlaying,
		IsBuffering:   p.state == chunks.StateBuffering,
		Position:      pos,
		TotalPosition: p.tl.Global(current, pos),
		ChunkDuration: p.tl.Duration(current),
		TotalDuration: p.tl.Total(),
		BufferHealth:  p.bufferHealth(),
	}
}

// bufferHealth is the available fraction of the current chunk plus the
// next BufferAhead chunks.
func (p *Player) bufferHealth() float64 {
	if p.total == 0 || p.current >= p.total {
		return 1
	}
	window := 0
	have := 0
	for i := p.current; i <= p.current+p.opts.BufferAhead && i < p.total; i++ {
		window++
		if _, ok := p.available[i]; ok {
			have++
		}
	}
	if window == 0 {
		return 1
	}
	return float64(have) / float64(window)
}

func (p *Player) push() {
	snap := p.snapshot()
	ev := events.PlaybackEvent{Time: time.Now(), State: snap}
	p.pusher.Push(ev)
	if p.stream != nil {
		p.stream.Publish(ev)
	}
}

func (p *Player) logInvalid(op string) {
	p.logger.Warn("operation ignored in current state",
		slog.String("op", op),
		slog.String("state", p.state.String()))
}

// release drops every registered chunk and removes the spool files
// belonging to them. Runs on the op queue goroutine only.
func (p *Player) release() {
	for idx, path := range p.spooled {
		if err := p.fs.Remove(path); err != nil {
			p.logger.Warn("spool remove failed",
				slog.Int("chunk", idx),
				slog.String("error", err.Error()))
		}
	}
	p.spooled = make(map[int]string)
	p.available = make(map[int]chunks.AudioChunk)
	p.failed = make(map[int]bool)
}

// spool writes chunk audio to a uuid-named file so file-based sinks can
// stream it from disk. Failures fall back to the in-memory payload.
func (p *Player) spool(chunk chunks.AudioChunk) string {
	if len(chunk.Audio) == 0 {
		return ""
	}
	if err := p.fs.MkdirAll(p.opts.SpoolDir, 0o755); err != nil {
		p.logger.Warn("spool dir unavailable", slog.String("error", err.Error()))
		return ""
	}
	path := fmt.Sprintf("%s/%s.audio", p.opts.SpoolDir, uuid.NewString())
	if err := afero.WriteFile(p.fs, path, chunk.Audio, 0o644); err != nil {
		p.logger.Warn("spool write failed", slog.String("error", err.Error()))
		return ""
	}
	return path
}
