package player

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/harunnryd/kisah/pkg/chunks"
	"github.com/harunnryd/kisah/pkg/events"
)

type startRecord struct {
	index  int
	offset time.Duration
}

// fakeSink records starts and lets tests finish chunks manually.
type fakeSink struct {
	mu        sync.Mutex
	starts    []startRecord
	ops       []string
	onDone    func()
	position  time.Duration
	durations map[int]time.Duration
	failIndex map[int]bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{durations: map[int]time.Duration{}, failIndex: map[int]bool{}}
}

func (f *fakeSink) Start(chunk chunks.AudioChunk, offset time.Duration, onDone func()) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIndex[chunk.Index] {
		return 0, errors.New("decode failed")
	}
	f.ops = append(f.ops, fmt.Sprintf("start %d@%s", chunk.Index, offset))
	f.starts = append(f.starts, startRecord{index: chunk.Index, offset: offset})
	f.onDone = onDone
	f.position = offset
	if d, ok := f.durations[chunk.Index]; ok {
		return d, nil
	}
	return chunk.EstimatedDuration, nil
}

func (f *fakeSink) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "pause")
	return nil
}

func (f *fakeSink) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "resume")
	return nil
}

func (f *fakeSink) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "stop")
	f.onDone = nil
	return nil
}

func (f *fakeSink) Position() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

// finish simulates the loaded chunk reaching its natural end.
func (f *fakeSink) finish() {
	f.mu.Lock()
	onDone := f.onDone
	f.onDone = nil
	f.mu.Unlock()
	if onDone != nil {
		onDone()
	}
}

func (f *fakeSink) startLog() []startRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]startRecord(nil), f.starts...)
}

func (f *fakeSink) opLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func textChunks(n int) []chunks.TextChunk {
	out := make([]chunks.TextChunk, n)
	for i := range out {
		out[i] = chunks.TextChunk{
			Index:             i,
			Total:             n,
			Text:              "chunk",
			CharCount:         5,
			EstimatedDuration: 10 * time.Second,
		}
	}
	return out
}

func audioChunk(index, total int) chunks.AudioChunk {
	return chunks.AudioChunk{
		Index:             index,
		Total:             total,
		Text:              "chunk",
		Audio:             []byte("RIFF0000WAVEdata"),
		EstimatedDuration: 10 * time.Second,
	}
}

func testPlayer(t *testing.T, sink Sink, n int) *Player {
	t.Helper()
	p := New(sink, afero.NewMemMapFs(), events.NewStream(), nil, nil, DefaultOptions())
	t.Cleanup(p.Close)
	p.Prepare(textChunks(n))
	return p
}

func TestPlayBuffersUntilFirstChunkArrives(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 3)

	p.Play()
	if st := p.State(); st.State != chunks.StateBuffering {
		t.Fatalf("state = %v, want buffering", st.State)
	}

	p.AddChunk(audioChunk(0, 3))
	st := p.State()
	if st.State != chunks.StatePlaying || st.CurrentChunk != 0 {
		t.Fatalf("state = %+v, want playing chunk 0", st)
	}
}

func TestGaplessAdvanceThroughAllChunks(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 3)
	for i := 0; i < 3; i++ {
		p.AddChunk(audioChunk(i, 3))
	}
	p.Play()

	for i := 0; i < 2; i++ {
		if st := p.State(); st.CurrentChunk != i || st.State != chunks.StatePlaying {
			t.Fatalf("expected playing chunk %d, got %+v", i, st)
		}
		sink.finish()
	}
	if st := p.State(); st.CurrentChunk != 2 {
		t.Fatalf("expected chunk 2, got %+v", st)
	}
	sink.finish()
	if st := p.State(); st.State != chunks.StateCompleted {
		t.Fatalf("expected completed, got %v", st.State)
	}

	log := sink.startLog()
	if len(log) != 3 {
		t.Fatalf("expected 3 starts, got %d", len(log))
	}
	for i, rec := range log {
		if rec.index != i || rec.offset != 0 {
			t.Fatalf("start %d = %+v", i, rec)
		}
	}
}

func TestAdvanceIntoMissingChunkBuffers(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 3)
	p.AddChunk(audioChunk(0, 3))
	p.Play()
	p.State() // barrier
	sink.finish()

	st := p.State()
	if st.State != chunks.StateBuffering || st.CurrentChunk != 1 {
		t.Fatalf("expected buffering chunk 1, got %+v", st)
	}

	p.AddChunk(audioChunk(1, 3))
	st = p.State()
	if st.State != chunks.StatePlaying || st.CurrentChunk != 1 {
		t.Fatalf("expected playing chunk 1, got %+v", st)
	}
}

func TestPauseAndResume(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 1)
	p.AddChunk(audioChunk(0, 1))
	p.Play()

	p.Pause()
	if st := p.State(); st.State != chunks.StatePaused || st.IsPlaying {
		t.Fatalf("expected paused, got %+v", st)
	}
	p.Resume()
	if st := p.State(); st.State != chunks.StatePlaying || !st.IsPlaying {
		t.Fatalf("expected playing, got %+v", st)
	}
}

func TestSeekIntoMissingChunkResumesAtOffset(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 3)
	p.AddChunk(audioChunk(0, 3))
	p.Play()

	// 25s lands 5s into chunk 2, which has not been generated yet.
	p.Seek(25 * time.Second)
	st := p.State()
	if st.State != chunks.StateBuffering || st.CurrentChunk != 2 {
		t.Fatalf("expected buffering chunk 2, got %+v", st)
	}

	p.AddChunk(audioChunk(2, 3))
	st = p.State()
	if st.State != chunks.StatePlaying || st.CurrentChunk != 2 {
		t.Fatalf("expected playing chunk 2, got %+v", st)
	}
	log := sink.startLog()
	last := log[len(log)-1]
	if last.index != 2 || last.offset != 5*time.Second {
		t.Fatalf("expected restart at 5s into chunk 2, got %+v", last)
	}
}

func TestSeekWithinAvailableChunk(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 3)
	for i := 0; i < 3; i++ {
		p.AddChunk(audioChunk(i, 3))
	}
	p.Play()

	p.Seek(15 * time.Second)
	st := p.State()
	if st.State != chunks.StatePlaying || st.CurrentChunk != 1 {
		t.Fatalf("expected playing chunk 1, got %+v", st)
	}
	log := sink.startLog()
	last := log[len(log)-1]
	if last.index != 1 || last.offset != 5*time.Second {
		t.Fatalf("expected start at 5s into chunk 1, got %+v", last)
	}
}

func TestBufferHealthCountsUpcomingChunks(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 5)
	p.AddChunk(audioChunk(0, 5))
	p.AddChunk(audioChunk(1, 5))
	p.Play()

	st := p.State()
	want := 2.0 / 3.0
	if st.BufferHealth < want-0.01 || st.BufferHealth > want+0.01 {
		t.Fatalf("buffer health = %v, want ~%v", st.BufferHealth, want)
	}
}

func TestActualDurationTightensTimeline(t *testing.T) {
	sink := newFakeSink()
	sink.durations[0] = 12 * time.Second
	p := testPlayer(t, sink, 3)
	p.AddChunk(audioChunk(0, 3))
	p.Play()

	st := p.State()
	if st.TotalDuration != 32*time.Second {
		t.Fatalf("total duration = %v, want 32s", st.TotalDuration)
	}
	if st.ChunkDuration != 12*time.Second {
		t.Fatalf("chunk duration = %v, want 12s", st.ChunkDuration)
	}
}

func TestInvalidOperationsAreIgnored(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 1)

	p.Pause()
	p.Resume()
	if st := p.State(); st.State != chunks.StateIdle {
		t.Fatalf("expected idle after ignored ops, got %v", st.State)
	}
}

func TestStopReturnsToIdle(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 1)
	p.AddChunk(audioChunk(0, 1))
	p.Play()
	p.Stop()
	if st := p.State(); st.State != chunks.StateIdle {
		t.Fatalf("expected idle, got %v", st.State)
	}
}

func TestResumeAfterPausedSeekRestartsSink(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 3)
	p.AddChunk(audioChunk(0, 3))
	p.AddChunk(audioChunk(1, 3))
	p.Play()

	p.Pause()
	// 15s lands 5s into chunk 1; the sink is stopped by the seek.
	p.Seek(15 * time.Second)
	if st := p.State(); st.State != chunks.StatePaused || st.CurrentChunk != 1 {
		t.Fatalf("expected paused on chunk 1, got %+v", st)
	}

	p.Resume()
	st := p.State()
	if st.State != chunks.StatePlaying || st.CurrentChunk != 1 {
		t.Fatalf("expected playing chunk 1, got %+v", st)
	}
	log := sink.startLog()
	if len(log) != 2 || log[1].index != 1 || log[1].offset != 5*time.Second {
		t.Fatalf("expected restart at 5s into chunk 1, got %+v", log)
	}

	// The restarted sink must advance normally afterwards.
	sink.finish()
	if st := p.State(); st.State != chunks.StateBuffering || st.CurrentChunk != 2 {
		t.Fatalf("expected buffering chunk 2, got %+v", st)
	}
}

func TestRapidOperationsRunInSubmissionOrder(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 3)
	for i := 0; i < 3; i++ {
		p.AddChunk(audioChunk(i, 3))
	}

	p.Play()
	p.Pause()
	p.Resume()
	p.Seek(15 * time.Second)

	st := p.State()
	if st.State != chunks.StatePlaying || st.CurrentChunk != 1 {
		t.Fatalf("expected playing chunk 1, got %+v", st)
	}
	want := "stop,start 0@0s,pause,resume,stop,start 1@5s"
	if got := strings.Join(sink.opLog(), ","); got != want {
		t.Fatalf("sink ops = %q, want %q", got, want)
	}
}

func TestFailedChunkIsSkippedDuringPlayback(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 3)
	p.AddChunk(audioChunk(0, 3))
	p.AddChunk(audioChunk(2, 3))
	p.Play()
	p.State() // barrier

	sink.finish()
	if st := p.State(); st.State != chunks.StateBuffering || st.CurrentChunk != 1 {
		t.Fatalf("expected buffering chunk 1, got %+v", st)
	}

	p.MarkFailed(1)
	st := p.State()
	if st.State != chunks.StatePlaying || st.CurrentChunk != 2 {
		t.Fatalf("expected playback to move on to chunk 2, got %+v", st)
	}
	sink.finish()
	if st := p.State(); st.State != chunks.StateCompleted {
		t.Fatalf("expected completed, got %v", st.State)
	}
	log := sink.startLog()
	if len(log) != 2 || log[0].index != 0 || log[1].index != 2 {
		t.Fatalf("expected starts on chunks 0 and 2, got %+v", log)
	}
}

func TestFailureOnFinalChunkCompletesEarly(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 2)
	p.AddChunk(audioChunk(0, 2))
	p.Play()
	p.State() // barrier
	sink.finish()

	p.MarkFailed(1)
	if st := p.State(); st.State != chunks.StateCompleted {
		t.Fatalf("expected early completion, got %+v", st)
	}
}

func TestBufferAheadBoundsAreRespected(t *testing.T) {
	sink := newFakeSink()
	opts := DefaultOptions()
	opts.BufferAhead = 0
	p := New(sink, afero.NewMemMapFs(), nil, nil, nil, opts)
	t.Cleanup(p.Close)
	p.Prepare(textChunks(3))
	p.AddChunk(audioChunk(0, 3))
	p.Play()

	// Zero look-ahead: only the current chunk counts.
	if st := p.State(); st.BufferHealth != 1 {
		t.Fatalf("buffer health = %v, want 1 with no look-ahead", st.BufferHealth)
	}

	wide := DefaultOptions()
	wide.BufferAhead = 9
	p2 := New(newFakeSink(), afero.NewMemMapFs(), nil, nil, nil, wide)
	t.Cleanup(p2.Close)
	p2.Prepare(textChunks(10))
	for i := 0; i < 6; i++ {
		p2.AddChunk(audioChunk(i, 10))
	}
	p2.Play()

	// Clamped to 5: the six available chunks cover the whole window.
	if st := p2.State(); st.BufferHealth != 1 {
		t.Fatalf("buffer health = %v, want 1 with clamped window", st.BufferHealth)
	}
}

func TestPlayFromStartsAtRequestedChunk(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 3)
	p.AddChunk(audioChunk(0, 3))

	// Chunk 1 has not arrived: buffer on it, then start when it does.
	p.PlayFrom(1)
	if st := p.State(); st.State != chunks.StateBuffering || st.CurrentChunk != 1 {
		t.Fatalf("expected buffering chunk 1, got %+v", st)
	}
	p.AddChunk(audioChunk(1, 3))
	st := p.State()
	if st.State != chunks.StatePlaying || st.CurrentChunk != 1 {
		t.Fatalf("expected playing chunk 1, got %+v", st)
	}
	log := sink.startLog()
	if len(log) != 1 || log[0].index != 1 {
		t.Fatalf("expected a single start on chunk 1, got %+v", log)
	}
}

func TestPlayFromRejectsOutOfRangeIndex(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 2)
	p.AddChunk(audioChunk(0, 2))

	p.PlayFrom(5)
	if st := p.State(); st.State != chunks.StateIdle {
		t.Fatalf("expected idle after out-of-range play, got %+v", st)
	}
}

func TestClearDeletesSpoolFiles(t *testing.T) {
	sink := newFakeSink()
	fs := afero.NewMemMapFs()
	p := New(sink, fs, nil, nil, nil, DefaultOptions())
	t.Cleanup(p.Close)
	p.Prepare(textChunks(2))
	p.AddChunk(audioChunk(0, 2))
	p.AddChunk(audioChunk(1, 2))
	p.Play()

	p.Clear()
	st := p.State()
	if st.State != chunks.StateIdle || st.TotalDuration != 0 {
		t.Fatalf("expected empty idle player, got %+v", st)
	}
	entries, err := afero.ReadDir(fs, DefaultOptions().SpoolDir)
	if err != nil {
		t.Fatalf("read spool dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected spool files deleted, %d remain", len(entries))
	}
}

func TestSinkFailureSkipsToNextChunk(t *testing.T) {
	sink := newFakeSink()
	sink.failIndex[0] = true
	p := testPlayer(t, sink, 2)
	p.AddChunk(audioChunk(0, 2))
	p.AddChunk(audioChunk(1, 2))
	p.Play()

	st := p.State()
	if st.State != chunks.StatePlaying || st.CurrentChunk != 1 {
		t.Fatalf("expected playback to skip to chunk 1, got %+v", st)
	}
}

func TestStatePushIsLastWriteWins(t *testing.T) {
	sink := newFakeSink()
	p := testPlayer(t, sink, 2)
	p.AddChunk(audioChunk(0, 2))
	p.AddChunk(audioChunk(1, 2))
	p.Play()
	p.Pause()
	p.Resume()
	p.State() // barrier

	select {
	case ev := <-p.States():
		snap := ev.(events.PlaybackEvent).State
		if snap.State != chunks.StatePlaying {
			t.Fatalf("latest snapshot = %v, want playing", snap.State)
		}
	default:
		t.Fatalf("expected a pending snapshot")
	}
	select {
	case <-p.States():
		t.Fatalf("expected at most one pending snapshot")
	default:
	}
}

func TestAddChunkSpoolsAudioToFile(t *testing.T) {
	sink := newFakeSink()
	fs := afero.NewMemMapFs()
	p := New(sink, fs, nil, nil, nil, DefaultOptions())
	t.Cleanup(p.Close)
	p.Prepare(textChunks(1))

	p.AddChunk(audioChunk(0, 1))
	p.Play()
	p.State() // barrier

	log := sink.startLog()
	if len(log) != 1 {
		t.Fatalf("expected one start")
	}
	st := p.State()
	if !st.IsPlaying {
		t.Fatalf("expected playing")
	}
	entries, err := afero.ReadDir(fs, DefaultOptions().SpoolDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one spooled file, got %v entries (err %v)", len(entries), err)
	}
}
