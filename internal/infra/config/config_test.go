package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "auto", cfg.Presenter.Mode)
	assert.InDelta(t, 0.95, cfg.Speech.Rate, 1e-9)
	assert.InDelta(t, 1.0, cfg.Speech.Pitch, 1e-9)
	assert.Equal(t, 3*time.Second, cfg.Speech.VoiceLoadTimeout())
	assert.Equal(t, 3000*time.Millisecond, cfg.Narration.ReadingPause())
	assert.Equal(t, 220*time.Millisecond, cfg.Narration.SentenceGap())
	assert.Equal(t, 250*time.Millisecond, cfg.Narration.ErrorGap())
	assert.Equal(t, 250*time.Millisecond, cfg.Narration.EmptyGap())
	assert.Equal(t, 500*time.Millisecond, cfg.Server.NotificationTimeout())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout())
	assert.Equal(t, "html", cfg.Export.Format)
	assert.Equal(t, "file", cfg.Store.Type)
	assert.Equal(t, "slidecast:", cfg.Store.Redis.Prefix)
	require.Len(t, cfg.Speech.Backends, 2)
	assert.Equal(t, "espeak", cfg.Speech.Backends[0].Type)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "rate above range",
			mutate:  func(c *Config) { c.Speech.Rate = 2 },
			wantErr: true,
			errMsg:  "Rate",
		},
		{
			name:    "pitch below range",
			mutate:  func(c *Config) { c.Speech.Pitch = 0.1 },
			wantErr: true,
			errMsg:  "Pitch",
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Presenter.Mode = "turbo" },
			wantErr: true,
			errMsg:  "Mode",
		},
		{
			name:    "unknown backend type",
			mutate:  func(c *Config) { c.Speech.Backends = []BackendConfig{{Type: "cloud"}} },
			wantErr: true,
			errMsg:  "Type",
		},
		{
			name:    "invalid base url",
			mutate:  func(c *Config) { c.Export.BaseURL = "not a url" },
			wantErr: true,
			errMsg:  "BaseURL",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Store.Type = "mongo" },
			wantErr: true,
			errMsg:  "Type",
		},
		{
			name:    "unknown export format",
			mutate:  func(c *Config) { c.Export.Format = "pdf" },
			wantErr: true,
			errMsg:  "Format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  addr: ":9090"
presenter:
  token: file-token
  mode: manual
speech:
  rate: 1.1
  backends:
    - type: simulated
      display_name: Simulated
      settings:
        words_per_minute: 300
narration:
  sentence_gap_ms: 100
store:
  type: redis
  redis:
    addr: "redis:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	t.Setenv("SLIDECAST_PRESENTER_TOKEN", "")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "file-token", cfg.Presenter.Token)
	assert.Equal(t, "manual", cfg.Presenter.Mode)
	assert.InDelta(t, 1.1, cfg.Speech.Rate, 1e-9)
	require.Len(t, cfg.Speech.Backends, 1)
	assert.Equal(t, "simulated", cfg.Speech.Backends[0].Type)
	assert.Equal(t, 300, cfg.Speech.Backends[0].Settings["words_per_minute"])
	assert.Equal(t, 100*time.Millisecond, cfg.Narration.SentenceGap())
	assert.Equal(t, 250*time.Millisecond, cfg.Narration.ErrorGap())
	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "slidecast:", cfg.Store.Redis.Prefix)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SLIDECAST_PRESENTER_TOKEN", "env-token")
	t.Setenv("SLIDECAST_REDIS_PASSWORD", "secret")
	t.Setenv("SLIDECAST_BASE_URL", "https://cdn.example.com/talk/")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Presenter.Token)
	assert.Equal(t, "secret", cfg.Store.Redis.Password)
	assert.Equal(t, "https://cdn.example.com/talk/", cfg.Export.BaseURL)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	badYAML := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badYAML, []byte("server: ["), 0o644))
	_, err := Load(badYAML)
	assert.Error(t, err)

	badValue := filepath.Join(dir, "value.yaml")
	require.NoError(t, os.WriteFile(badValue, []byte("speech:\n  pitch: 3\n"), 0o644))
	_, err = Load(badValue)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pitch")
}
