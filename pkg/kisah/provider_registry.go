package kisah

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/kisah/pkg/configutil"
	"github.com/harunnryd/kisah/pkg/errorsx"
	"github.com/harunnryd/kisah/pkg/providers/deepgram"
	"github.com/harunnryd/kisah/pkg/providers/elevenlabs"
	"github.com/harunnryd/kisah/pkg/providers/mock"
	"github.com/harunnryd/kisah/pkg/synth"
)

// SynthFactory builds a synthesizer from the vendor settings block.
type SynthFactory func(settings map[string]any, logger *slog.Logger) (synth.Synthesizer, error)

type ProviderRegistry struct {
	factories map[string]SynthFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{factories: make(map[string]SynthFactory)}
}

func (r *ProviderRegistry) Register(name string, factory SynthFactory) {
	r.factories[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) Build(provider string, settings map[string]any, logger *slog.Logger) (synth.Synthesizer, error) {
	fn := r.factories[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, errorsx.Wrap(fmt.Errorf("synthesis provider not registered: %s", provider), errorsx.ReasonNotDeployed)
	}
	return fn(settings, logger)
}

// DefaultRegistry registers the built-in providers.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.Register("elevenlabs", buildElevenLabs)
	r.Register("deepgram", buildDeepgram)
	r.Register("mock", buildMock)
	return r
}

func buildElevenLabs(settings map[string]any, logger *slog.Logger) (synth.Synthesizer, error) {
	var s struct {
		APIKey       string  `mapstructure:"api_key"`
		ModelID      string  `mapstructure:"model_id"`
		OutputFormat string  `mapstructure:"output_format"`
		TimeoutMS    int     `mapstructure:"timeout_ms"`
		BaseURL      string  `mapstructure:"base_url"`
	}
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}
	if err := configutil.RequireString(s.APIKey, "vendor.settings.api_key"); err != nil {
		return nil, err
	}
	return elevenlabs.New(elevenlabs.Config{
		APIKey:       s.APIKey,
		ModelID:      s.ModelID,
		OutputFormat: s.OutputFormat,
		BaseURL:      s.BaseURL,
		Timeout:      time.Duration(s.TimeoutMS) * time.Millisecond,
	}, logger), nil
}

func buildDeepgram(settings map[string]any, logger *slog.Logger) (synth.Synthesizer, error) {
	var s struct {
		APIKey    string `mapstructure:"api_key"`
		Encoding  string `mapstructure:"encoding"`
		TimeoutMS int    `mapstructure:"timeout_ms"`
		BaseURL   string `mapstructure:"base_url"`
	}
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}
	if err := configutil.RequireString(s.APIKey, "vendor.settings.api_key"); err != nil {
		return nil, err
	}
	return deepgram.New(deepgram.Config{
		APIKey:   s.APIKey,
		Encoding: s.Encoding,
		BaseURL:  s.BaseURL,
		Timeout:  time.Duration(s.TimeoutMS) * time.Millisecond,
	}, logger), nil
}

func buildMock(settings map[string]any, _ *slog.Logger) (synth.Synthesizer, error) {
	var s struct {
		LatencyMS int `mapstructure:"latency_ms"`
	}
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}
	return mock.New(mock.Config{Latency: time.Duration(s.LatencyMS) * time.Millisecond}), nil
}
