// Package transport reads the legacy narration stream format: one JSON
// message per line, carrying text, metadata, audio chunks and terminal
// markers. Sources can be any io.Reader or a websocket connection;
// malformed lines are logged and skipped, never fatal.
package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/kisah/pkg/errorsx"
	"github.com/harunnryd/kisah/pkg/logging"
)

type MessageType string

const (
	TypeText       MessageType = "text"
	TypeMetadata   MessageType = "metadata"
	TypeAudioChunk MessageType = "audio_chunk"
	TypeComplete   MessageType = "complete"
	TypeError      MessageType = "error"
)

// Message is one frame of the legacy stream. Audio is base64 on the wire
// and decoded by encoding/json into raw bytes.
type Message struct {
	Type       MessageType       `json:"type"`
	Text       string            `json:"text,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Audio      []byte            `json:"audio,omitempty"`
	ChunkIndex int               `json:"chunk_index,omitempty"`
	Total      int               `json:"total,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Source yields one raw frame per call. io.EOF ends the stream cleanly.
type Source interface {
	Next() ([]byte, error)
	Close() error
}

// LineSource frames an io.Reader into newline-delimited records.
type LineSource struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

func NewLineSource(r io.Reader) *LineSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	closer, _ := r.(io.Closer)
	return &LineSource{scanner: sc, closer: closer}
}

func (s *LineSource) Next() ([]byte, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		return []byte(line), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTransportRead)
	}
	return nil, io.EOF
}

func (s *LineSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// SocketSource frames a websocket connection: one message per frame.
type SocketSource struct {
	conn *websocket.Conn
}

func NewSocketSource(conn *websocket.Conn) *SocketSource {
	return &SocketSource{conn: conn}
}

func (s *SocketSource) Next() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, errorsx.Wrap(err, errorsx.ReasonTransportRead)
	}
	return data, nil
}

func (s *SocketSource) Close() error { return s.conn.Close() }

// Dial connects to a websocket narration stream.
func Dial(ctx context.Context, url string) (*SocketSource, error) {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTransientNetwork)
	}
	return NewSocketSource(conn), nil
}

// Reader decodes a framed source into typed messages.
type Reader struct {
	src    Source
	logger *slog.Logger
}

func NewReader(src Source, logger *slog.Logger) *Reader {
	return &Reader{src: src, logger: logging.NewComponentLogger(logger, "stream_transport")}
}

// Stream decodes messages until EOF, a terminal frame, read failure or ctx
// cancellation. Malformed frames are skipped with a warning. The returned
// channel is closed when the stream ends; the source is closed with it.
func (r *Reader) Stream(ctx context.Context) <-chan Message {
	out := make(chan Message, 16)
	go func() {
		defer close(out)
		defer func() { _ = r.src.Close() }()
		for {
			if ctx.Err() != nil {
				return
			}
			raw, err := r.src.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				r.logger.Error("stream read failed", slog.String("error", err.Error()))
				return
			}
			msg, err := decode(raw)
			if err != nil {
				r.logger.Warn("malformed stream frame skipped",
					slog.Int("bytes", len(raw)),
					slog.String("error", err.Error()))
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
			if msg.Type == TypeComplete {
				return
			}
		}
	}()
	return out
}
