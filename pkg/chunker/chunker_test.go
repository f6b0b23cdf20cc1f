package chunker

import (
	"strings"
	"testing"

	"github.com/harunnryd/kisah/pkg/chunks"
)

func testChunker(max, min int) *Chunker {
	return New(Options{MaxChunkSize: max, MinMergeSize: min, CharsPerSecond: 15}, nil)
}

func TestSplitEmptyInputYieldsZeroChunks(t *testing.T) {
	c := testChunker(100, 20)
	for _, input := range []string{"", "   ", "\n\t \n"} {
		if got := c.Split(input); len(got) != 0 {
			t.Fatalf("expected zero chunks for %q, got %d", input, len(got))
		}
	}
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	c := testChunker(100, 20)
	out := c.Split("A short narration.")
	if len(out) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(out))
	}
	if out[0].Index != 0 || out[0].Total != 1 {
		t.Fatalf("bad indexing: %+v", out[0])
	}
	if out[0].EstimatedDuration <= 0 {
		t.Fatalf("expected positive duration estimate")
	}
}

func TestSplitRespectsMaxSizeAndReconstructs(t *testing.T) {
	c := testChunker(120, 20)
	sentence := "The caravan moved slowly across the dunes, pausing at every well. "
	text := strings.Repeat(sentence, 40)

	out := c.Split(text)
	if len(out) < 2 {
		t.Fatalf("expected multiple chunks")
	}
	var rebuilt []string
	for i, chunk := range out {
		if chunk.CharCount > 120 {
			t.Fatalf("chunk %d exceeds max size: %d", i, chunk.CharCount)
		}
		if chunk.CharCount == 0 {
			t.Fatalf("chunk %d is empty", i)
		}
		if chunk.Index != i {
			t.Fatalf("chunk %d has index %d", i, chunk.Index)
		}
		if chunk.Total != len(out) {
			t.Fatalf("chunk %d carries total %d, want %d", i, chunk.Total, len(out))
		}
		rebuilt = append(rebuilt, chunk.Text)
	}
	want := strings.Join(strings.Fields(text), " ")
	got := strings.Join(strings.Fields(strings.Join(rebuilt, " ")), " ")
	if got != want {
		t.Fatalf("concatenation does not reconstruct the source")
	}
}

func TestSplitPrefersParagraphBreak(t *testing.T) {
	c := testChunker(100, 10)
	first := strings.Repeat("a", 70)
	second := strings.Repeat("b", 80)
	out := c.Split(first + "\n\n" + second)
	if len(out) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(out))
	}
	if out[0].Text != first {
		t.Fatalf("expected cut at paragraph break, got %q", out[0].Text)
	}
}

func TestSplitPrefersSentenceOverWhitespace(t *testing.T) {
	c := testChunker(100, 10)
	// Sentence end at 60 runes (>=50% of max); later whitespace available.
	text := strings.Repeat("a", 59) + ". " + strings.Repeat("b", 30) + " " + strings.Repeat("c", 60)
	out := c.Split(text)
	if !strings.HasSuffix(out[0].Text, ".") {
		t.Fatalf("expected sentence-boundary cut, got %q", out[0].Text)
	}
}

func TestSplitHardCutsUnbrokenText(t *testing.T) {
	c := testChunker(50, 10)
	out := c.Split(strings.Repeat("x", 130))
	if len(out) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(out))
	}
	for _, chunk := range out {
		if chunk.CharCount > 50 {
			t.Fatalf("hard cut exceeded max: %d", chunk.CharCount)
		}
	}
}

func TestOptimizeMergesSmallChunksAndReindexes(t *testing.T) {
	c := testChunker(200, 60)
	in := []chunks.TextChunk{
		c.newChunk(0, 3, strings.Repeat("a", 30)),
		c.newChunk(1, 3, strings.Repeat("b", 30)),
		c.newChunk(2, 3, strings.Repeat("d", 150)),
	}
	out := c.Optimize(in)
	if len(out) != 2 {
		t.Fatalf("expected small chunks merged, got %d chunks", len(out))
	}
	if out[0].Index != 0 || out[1].Index != 1 {
		t.Fatalf("expected re-indexed output")
	}
	for _, chunk := range out {
		if chunk.Total != 2 {
			t.Fatalf("expected total 2, got %d", chunk.Total)
		}
	}
}

func TestOptimizeIsIdempotent(t *testing.T) {
	c := testChunker(200, 40)
	first := c.Optimize([]chunks.TextChunk{
		c.newChunk(0, 4, strings.Repeat("a", 20)),
		c.newChunk(1, 4, strings.Repeat("b", 100)),
		c.newChunk(2, 4, strings.Repeat("c", 20)),
		c.newChunk(3, 4, strings.Repeat("d", 100)),
	})
	second := c.Optimize(first)
	if len(first) != len(second) {
		t.Fatalf("optimize not idempotent: %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text {
			t.Fatalf("optimize not idempotent at %d", i)
		}
	}
}

func TestOptimizeDoesNotExceedMax(t *testing.T) {
	c := testChunker(100, 60)
	out := c.Optimize([]chunks.TextChunk{
		c.newChunk(0, 2, strings.Repeat("a", 55)),
		c.newChunk(1, 2, strings.Repeat("b", 55)),
	})
	if len(out) != 2 {
		t.Fatalf("merge exceeding max must not happen")
	}
}
