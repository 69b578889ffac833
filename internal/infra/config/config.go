// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Presenter PresenterConfig `yaml:"presenter"`
	Speech    SpeechConfig    `yaml:"speech"`
	Narration NarrationConfig `yaml:"narration"`
	Markdown  MarkdownConfig  `yaml:"markdown"`
	Export    ExportConfig    `yaml:"export"`
	Store     StoreConfig     `yaml:"store"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr                  string      `yaml:"addr" default:":8080"`
	ShutdownTimeoutSec    int         `yaml:"shutdown_timeout_sec" default:"10" validate:"gte=1,lte=300"`
	NotificationTimeoutMs int         `yaml:"notification_timeout_ms" default:"500" validate:"gte=10,lte=10000"`
	MaxDeckBytes          int64       `yaml:"max_deck_bytes" default:"1048576" validate:"gte=1024"`
	Hooks                 HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PresenterConfig represents the live presenter configuration.
type PresenterConfig struct {
	Token string `yaml:"token"`
	Deck  string `yaml:"deck"` // Markdown or slide JSON file presented by `serve`
	Mode  string `yaml:"mode" default:"auto" validate:"oneof=auto manual"`
}

// SpeechConfig represents text-to-speech configuration.
type SpeechConfig struct {
	Backends           []BackendConfig `yaml:"backends" validate:"dive"`
	Rate               float64         `yaml:"rate" default:"0.95" validate:"gte=0.6,lte=1.3"`
	Pitch              float64         `yaml:"pitch" default:"1.0" validate:"gte=0.6,lte=1.5"`
	Voice              string          `yaml:"voice"`
	PreferredVoices    []string        `yaml:"preferred_voices"`
	VoiceLoadTimeoutMs int             `yaml:"voice_load_timeout_ms" default:"3000" validate:"gte=0,lte=60000"`
}

// BackendConfig represents a single speech backend configuration.
type BackendConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=espeak say simulated none"`
	DisplayName string         `yaml:"display_name"`
	Settings    map[string]any `yaml:"settings"`
}

// NarrationConfig represents the pauses around utterances.
type NarrationConfig struct {
	ReadingPauseMs int `yaml:"reading_pause_ms" default:"3000" validate:"gte=0,lte=60000"`
	SentenceGapMs  int `yaml:"sentence_gap_ms" default:"220" validate:"gte=0,lte=10000"`
	ErrorGapMs     int `yaml:"error_gap_ms" default:"250" validate:"gte=0,lte=10000"`
	EmptyGapMs     int `yaml:"empty_gap_ms" default:"250" validate:"gte=0,lte=10000"`
}

// MarkdownConfig represents Markdown rendering options.
type MarkdownConfig struct {
	Extensions []string `yaml:"extensions"`
	HardWraps  bool     `yaml:"hard_wraps"`
	SafeMode   bool     `yaml:"safe_mode"`
}

// ExportConfig represents player export configuration.
type ExportConfig struct {
	Title   string `yaml:"title"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	Format  string `yaml:"format" default:"html" validate:"oneof=html zip"`
}

// StoreConfig represents deck storage configuration.
type StoreConfig struct {
	Type   string      `yaml:"type" default:"file" validate:"oneof=file redis sqlite"`
	Path   string      `yaml:"path" default:"data/decks"`
	TTLSec int         `yaml:"ttl_sec" validate:"gte=0"`
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig represents redis connection configuration.
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix" default:"slidecast:"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	_ = cfg.finalize()
	return &cfg
}

// Load loads configuration from a YAML file. An empty path or a missing
// file yields the defaults. Environment variables take precedence over
// file values for sensitive fields.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, errors.Wrap(err, "failed to parse config file")
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

func (c *Config) finalize() error {
	if err := defaults.Set(c); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if len(c.Speech.Backends) == 0 {
		c.Speech.Backends = []BackendConfig{
			{Type: "espeak", DisplayName: "eSpeak NG"},
			{Type: "say", DisplayName: "macOS say"},
		}
	}
	return nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SLIDECAST_PRESENTER_TOKEN"); v != "" {
		c.Presenter.Token = v
	}
	if v := os.Getenv("SLIDECAST_REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("SLIDECAST_BASE_URL"); v != "" {
		c.Export.BaseURL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// ReadingPause is the time given to a slide with no text.
func (n NarrationConfig) ReadingPause() time.Duration {
	return time.Duration(n.ReadingPauseMs) * time.Millisecond
}

// SentenceGap is the pause after a spoken chunk.
func (n NarrationConfig) SentenceGap() time.Duration {
	return time.Duration(n.SentenceGapMs) * time.Millisecond
}

// ErrorGap is the pause after a failed chunk.
func (n NarrationConfig) ErrorGap() time.Duration {
	return time.Duration(n.ErrorGapMs) * time.Millisecond
}

// EmptyGap is the pause for a blank chunk.
func (n NarrationConfig) EmptyGap() time.Duration {
	return time.Duration(n.EmptyGapMs) * time.Millisecond
}

// VoiceLoadTimeout bounds waiting for the backend voice list.
func (s SpeechConfig) VoiceLoadTimeout() time.Duration {
	return time.Duration(s.VoiceLoadTimeoutMs) * time.Millisecond
}

// NotificationTimeout bounds a single viewer send.
func (s ServerConfig) NotificationTimeout() time.Duration {
	return time.Duration(s.NotificationTimeoutMs) * time.Millisecond
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSec) * time.Second
}

// TTL is the expiry applied to stored decks (0 means none).
func (s StoreConfig) TTL() time.Duration {
	return time.Duration(s.TTLSec) * time.Second
}
