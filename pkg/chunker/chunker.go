// Package chunker splits narration text into bounded chunks that respect
// natural boundaries, so each piece can be synthesized independently
// without cutting words or sentences in half.
package chunker

import (
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/harunnryd/kisah/pkg/chunks"
	"github.com/harunnryd/kisah/pkg/logging"
)

// Options tunes the splitting behaviour.
type Options struct {
	// MaxChunkSize is the hard upper bound per chunk, in runes. Kept with
	// a safety margin under the remote synthesizer's request limit.
	MaxChunkSize int

	// MinMergeSize is the size below which Optimize tries to merge a chunk
	// into its neighbour.
	MinMergeSize int

	// CharsPerSecond drives the pre-synthesis duration estimate.
	CharsPerSecond float64
}

func DefaultOptions() Options {
	return Options{
		MaxChunkSize:   3900,
		MinMergeSize:   500,
		CharsPerSecond: 15,
	}
}

type Chunker struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Chunker {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = 3900
	}
	if opts.MinMergeSize <= 0 {
		opts.MinMergeSize = 500
	}
	if opts.CharsPerSecond <= 0 {
		opts.CharsPerSecond = 15
	}
	return &Chunker{
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "chunker"),
	}
}

// Split cuts text into ordered chunks of at most MaxChunkSize runes.
// Break points are searched in priority order: paragraph break, sentence
// punctuation, secondary punctuation, newline, whitespace, hard cut. Each
// priority is gated by a minimum-progress threshold so chunks never become
// pathologically short. Empty or whitespace-only input yields zero chunks.
func (c *Chunker) Split(text string) []chunks.TextChunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	max := c.opts.MaxChunkSize
	var parts []string
	for len(runes) > 0 {
		if len(runes) <= max {
			if part := strings.TrimSpace(string(runes)); part != "" {
				parts = append(parts, part)
			}
			break
		}
		cut := breakPoint(runes[:max], max)
		part := strings.TrimSpace(string(runes[:cut]))
		if part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
		for len(runes) > 0 && unicode.IsSpace(runes[0]) {
			runes = runes[1:]
		}
	}

	out := make([]chunks.TextChunk, len(parts))
	for i, part := range parts {
		out[i] = c.newChunk(i, len(parts), part)
	}
	c.logger.Debug("text split",
		slog.Int("input_chars", len([]rune(trimmed))),
		slog.Int("chunk_count", len(out)))
	return out
}

// Optimize merges consecutive chunks smaller than MinMergeSize into their
// neighbour when the merge still fits under MaxChunkSize, then re-indexes.
// Idempotent: a second pass finds nothing left to merge.
func (c *Chunker) Optimize(in []chunks.TextChunk) []chunks.TextChunk {
	if len(in) == 0 {
		return nil
	}
	merged := []string{in[0].Text}
	for _, chunk := range in[1:] {
		last := merged[len(merged)-1]
		lastLen := len([]rune(last))
		curLen := len([]rune(chunk.Text))
		if (lastLen < c.opts.MinMergeSize || curLen < c.opts.MinMergeSize) &&
			lastLen+1+curLen <= c.opts.MaxChunkSize {
			merged[len(merged)-1] = last + " " + chunk.Text
			continue
		}
		merged = append(merged, chunk.Text)
	}

	out := make([]chunks.TextChunk, len(merged))
	for i, text := range merged {
		out[i] = c.newChunk(i, len(merged), text)
	}
	if len(out) != len(in) {
		c.logger.Debug("chunks merged",
			slog.Int("before", len(in)),
			slog.Int("after", len(out)))
	}
	return out
}

// EstimateDuration converts a character count to a playback estimate.
func (c *Chunker) EstimateDuration(charCount int) time.Duration {
	return time.Duration(float64(charCount) / c.opts.CharsPerSecond * float64(time.Second))
}

func (c *Chunker) newChunk(index, total int, text string) chunks.TextChunk {
	count := len([]rune(text))
	return chunks.TextChunk{
		Index:             index,
		Total:             total,
		Text:              text,
		CharCount:         count,
		EstimatedDuration: c.EstimateDuration(count),
	}
}

// breakPoint returns the cut position (exclusive) inside window, which is
// exactly max runes long.
func breakPoint(window []rune, max int) int {
	if cut := paragraphBreak(window, max*50/100); cut > 0 {
		return cut
	}
	if cut := punctuationBreak(window, max*50/100, isSentenceEnd); cut > 0 {
		return cut
	}
	if cut := punctuationBreak(window, max*60/100, isSecondary); cut > 0 {
		return cut
	}
	if cut := runeBreak(window, max*60/100, func(r rune) bool { return r == '\n' }); cut > 0 {
		return cut
	}
	if cut := runeBreak(window, max*70/100, unicode.IsSpace); cut > 0 {
		return cut
	}
	return max
}

func paragraphBreak(window []rune, minPos int) int {
	for i := len(window) - 2; i >= minPos; i-- {
		if window[i] == '\n' && window[i+1] == '\n' {
			return i + 2
		}
	}
	return 0
}

// punctuationBreak finds the last matching punctuation that is followed by
// whitespace (or the window edge), so decimal points and hyphenated words
// do not produce cuts.
func punctuationBreak(window []rune, minPos int, match func(rune) bool) int {
	for i := len(window) - 1; i >= minPos; i-- {
		if !match(window[i]) {
			continue
		}
		if i+1 == len(window) || unicode.IsSpace(window[i+1]) {
			return i + 1
		}
	}
	return 0
}

func runeBreak(window []rune, minPos int, match func(rune) bool) int {
	for i := len(window) - 1; i >= minPos; i-- {
		if match(window[i]) {
			return i + 1
		}
	}
	return 0
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSecondary(r rune) bool {
	return r == ',' || r == ';' || r == ':' || r == '-'
}
