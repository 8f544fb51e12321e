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

	assert.Equal(t, "agentic-demo", cfg.Namespace)
	assert.Equal(t, Duration(30*time.Second), cfg.Interval)
	assert.Equal(t, 50, cfg.LogTail)
	assert.True(t, cfg.AutoRemediate)
	assert.True(t, cfg.Reasoner.Enabled)
	assert.Equal(t, "gpt-4", cfg.Reasoner.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Reasoner.APIKeyEnv)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Namespace, cfg.Namespace)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
namespace: staging
interval: 10s
logTail: 100
reasoner:
  enabled: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Namespace)
	assert.Equal(t, Duration(10*time.Second), cfg.Interval)
	assert.Equal(t, 10*time.Second, cfg.Interval.Std())
	assert.Equal(t, 100, cfg.LogTail)
	assert.False(t, cfg.Reasoner.Enabled)
	// Untouched keys keep defaults.
	assert.Equal(t, "gpt-4", cfg.Reasoner.Model)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("namespace: [unclosed"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)

	path = filepath.Join(t.TempDir(), "badinterval.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interval: soon"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"empty namespace", func(c *Config) { c.Namespace = "" }, true},
		{"sub-second interval", func(c *Config) { c.Interval = Duration(100 * time.Millisecond) }, true},
		{"zero log tail", func(c *Config) { c.LogTail = 0 }, true},
		{"enabled reasoner without endpoint", func(c *Config) { c.Reasoner.Endpoint = "" }, true},
		{"disabled reasoner without endpoint", func(c *Config) {
			c.Reasoner.Enabled = false
			c.Reasoner.Endpoint = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReasonerAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Reasoner.APIKeyEnv = "TEST_REASONER_KEY"
	t.Setenv("TEST_REASONER_KEY", "secret")
	assert.Equal(t, "secret", cfg.ReasonerAPIKey())

	cfg.Reasoner.APIKeyEnv = ""
	assert.Equal(t, "", cfg.ReasonerAPIKey())
}
