// Package kisah assembles the narration pipeline: configuration, provider
// registry and the session facade tying chunking, caching, generation and
// playback together.
package kisah

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/harunnryd/kisah/pkg/voices"
)

type Config struct {
	Chunking      ChunkingConfig      `mapstructure:"chunking"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Generation    GenerationConfig    `mapstructure:"generation"`
	Playback      PlaybackConfig      `mapstructure:"playback"`
	Vendor        VendorConfig        `mapstructure:"vendor"`
	Narration     NarrationConfig     `mapstructure:"narration"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
}

type ChunkingConfig struct {
	MaxChunkSize   int     `mapstructure:"max_chunk_size"`
	MinMergeSize   int     `mapstructure:"min_merge_size"`
	CharsPerSecond float64 `mapstructure:"chars_per_second"`
}

type CacheConfig struct {
	Dir      string `mapstructure:"dir"`
	TTLHours int    `mapstructure:"ttl_hours"`
}

type GenerationConfig struct {
	Concurrency        int `mapstructure:"concurrency"`
	ChunkAttempts      int `mapstructure:"chunk_attempts"`
	FirstChunkAttempts int `mapstructure:"first_chunk_attempts"`
	RetryBackoffMS     int `mapstructure:"retry_backoff_ms"`
	BreakerThreshold   int `mapstructure:"breaker_threshold"`
	BreakerCooldownMS  int `mapstructure:"breaker_cooldown_ms"`
}

type PlaybackConfig struct {
	BufferAhead int    `mapstructure:"buffer_ahead"`
	SpoolDir    string `mapstructure:"spool_dir"`
}

// VendorConfig selects the synthesis provider; Settings is the free-form
// per-vendor block decoded by each factory.
type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type NarrationConfig struct {
	Voice    string  `mapstructure:"voice"`
	Language string  `mapstructure:"language"`
	Speed    float64 `mapstructure:"speed"`
}

type ObservabilityConfig struct {
	MetricsPath string `mapstructure:"metrics_path"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)
	cfg.Vendor.Settings = expandSettings(cfg.Vendor.Settings)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the built-in defaults without reading a file.
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chunking.max_chunk_size", 3900)
	v.SetDefault("chunking.min_merge_size", 500)
	v.SetDefault("chunking.chars_per_second", 15)
	v.SetDefault("cache.dir", defaultCacheDir())
	v.SetDefault("cache.ttl_hours", 14*24)
	v.SetDefault("generation.concurrency", 3)
	v.SetDefault("generation.chunk_attempts", 3)
	v.SetDefault("generation.first_chunk_attempts", 5)
	v.SetDefault("generation.retry_backoff_ms", 200)
	v.SetDefault("generation.breaker_threshold", 3)
	v.SetDefault("generation.breaker_cooldown_ms", 30000)
	v.SetDefault("playback.buffer_ahead", 2)
	v.SetDefault("playback.spool_dir", "")
	v.SetDefault("vendor.provider", "mock")
	v.SetDefault("narration.voice", "narrator")
	v.SetDefault("narration.language", "en")
	v.SetDefault("narration.speed", 1.0)
	v.SetDefault("observability.metrics_path", "")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/kisah/chunks"
	}
	return "/tmp/kisah/chunks"
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vendor.Provider) == "" {
		return fmt.Errorf("vendor.provider is required")
	}
	if _, err := voices.Canonical(c.Narration.Voice); err != nil {
		return fmt.Errorf("narration.voice: %w", err)
	}
	if strings.TrimSpace(c.Narration.Language) == "" {
		return fmt.Errorf("narration.language is required")
	}
	if c.Narration.Speed < 0.25 || c.Narration.Speed > 4.0 {
		return fmt.Errorf("narration.speed must be between 0.25 and 4.0")
	}
	if c.Chunking.MaxChunkSize <= 0 {
		return fmt.Errorf("chunking.max_chunk_size must be positive")
	}
	if c.Chunking.MinMergeSize >= c.Chunking.MaxChunkSize {
		return fmt.Errorf("chunking.min_merge_size must be below max_chunk_size")
	}
	if c.Generation.Concurrency <= 0 {
		return fmt.Errorf("generation.concurrency must be positive")
	}
	if c.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache.ttl_hours must be positive")
	}
	return nil
}

// expandEnvStrings walks the config and expands ${VAR} references in every
// string field so secrets stay out of config files.
func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	}
}
