// Package deepgram implements the synthesizer contract against the
// Deepgram Aura speak endpoint.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/harunnryd/kisah/pkg/errorsx"
	"github.com/harunnryd/kisah/pkg/logging"
	"github.com/harunnryd/kisah/pkg/synth"
)

const defaultBaseURL = "https://api.deepgram.com/v1/speak"

type Config struct {
	APIKey   string
	Encoding string
	BaseURL  string
	Timeout  time.Duration
}

type Synthesizer struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Synthesizer {
	if cfg.Encoding == "" {
		cfg.Encoding = "mp3"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Synthesizer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logging.NewComponentLogger(logger, "deepgram_synth"),
	}
}

func (s *Synthesizer) Name() string { return "deepgram" }

// Synthesize posts one chunk of text to the speak endpoint. The voice in
// the request is a Deepgram Aura model name, resolved upstream from the
// style catalog.
func (s *Synthesizer) Synthesize(ctx context.Context, req synth.Request) (synth.Response, error) {
	if s.cfg.APIKey == "" {
		return synth.Response{}, errorsx.Wrap(fmt.Errorf("deepgram: missing api key"), errorsx.ReasonUnauthorized)
	}
	if req.Voice == "" {
		return synth.Response{}, errorsx.Wrap(fmt.Errorf("deepgram: missing voice model"), errorsx.ReasonInvalidInput)
	}

	body, err := json.Marshal(map[string]string{"text": req.Text})
	if err != nil {
		return synth.Response{}, errorsx.Wrap(err, errorsx.ReasonInvalidInput)
	}

	q := url.Values{}
	q.Set("model", req.Voice)
	q.Set("encoding", s.cfg.Encoding)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return synth.Response{}, errorsx.Wrap(err, errorsx.ReasonInvalidInput)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+s.cfg.APIKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return synth.Response{}, errorsx.Wrap(err, errorsx.ReasonCancelled)
		}
		return synth.Response{}, errorsx.Wrap(err, errorsx.ReasonTransientNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		reason := synth.ReasonForStatus(resp.StatusCode)
		s.logger.Warn("synthesis request rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("reason", string(reason)),
			slog.String("model", req.Voice))
		return synth.Response{}, errorsx.Wrap(
			fmt.Errorf("deepgram: %s: %s", resp.Status, bytes.TrimSpace(detail)), reason)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return synth.Response{}, errorsx.Wrap(err, errorsx.ReasonTransientNetwork)
	}
	if err := synth.ValidateAudio(audio); err != nil {
		return synth.Response{}, err
	}

	s.logger.Debug("synthesis complete",
		slog.String("model", req.Voice),
		slog.Int("audio_bytes", len(audio)))
	return synth.Response{Audio: audio, MimeType: "audio/mpeg"}, nil
}

var _ synth.Synthesizer = (*Synthesizer)(nil)
