// Package elevenlabs implements the synthesizer contract against the
// ElevenLabs REST text-to-speech endpoint.
package elevenlabs

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

const defaultBaseURL = "https://api.elevenlabs.io/v1/text-to-speech"

type Config struct {
	APIKey       string
	ModelID      string
	OutputFormat string
	BaseURL      string
	Timeout      time.Duration
}

type Synthesizer struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Synthesizer {
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_flash_v2_5"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
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
		logger: logging.NewComponentLogger(logger, "elevenlabs_synth"),
	}
}

func (s *Synthesizer) Name() string { return "elevenlabs" }

type apiRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	LanguageCode  string        `json:"language_code,omitempty"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

func (s *Synthesizer) Synthesize(ctx context.Context, req synth.Request) (synth.Response, error) {
	if s.cfg.APIKey == "" {
		return synth.Response{}, errorsx.Wrap(fmt.Errorf("elevenlabs: missing api key"), errorsx.ReasonUnauthorized)
	}
	if req.Voice == "" {
		return synth.Response{}, errorsx.Wrap(fmt.Errorf("elevenlabs: missing voice id"), errorsx.ReasonInvalidInput)
	}

	body, err := json.Marshal(apiRequest{
		Text:         req.Text,
		ModelID:      s.cfg.ModelID,
		LanguageCode: req.Language,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Speed:           req.Speed,
		},
	})
	if err != nil {
		return synth.Response{}, errorsx.Wrap(err, errorsx.ReasonInvalidInput)
	}

	endpoint := fmt.Sprintf("%s/%s?output_format=%s", s.cfg.BaseURL, url.PathEscape(req.Voice), url.QueryEscape(s.cfg.OutputFormat))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return synth.Response{}, errorsx.Wrap(err, errorsx.ReasonInvalidInput)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", s.cfg.APIKey)

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
			slog.String("voice", req.Voice))
		return synth.Response{}, errorsx.Wrap(
			fmt.Errorf("elevenlabs: %s: %s", resp.Status, bytes.TrimSpace(detail)), reason)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return synth.Response{}, errorsx.Wrap(err, errorsx.ReasonTransientNetwork)
	}
	if err := synth.ValidateAudio(audio); err != nil {
		return synth.Response{}, err
	}

	s.logger.Debug("synthesis complete",
		slog.String("voice", req.Voice),
		slog.Int("text_chars", len(req.Text)),
		slog.Int("audio_bytes", len(audio)))
	return synth.Response{Audio: audio, MimeType: "audio/mpeg"}, nil
}

var _ synth.Synthesizer = (*Synthesizer)(nil)
