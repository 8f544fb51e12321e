package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the monitoring agent.
const (
	DefaultNamespace = "agentic-demo"
	DefaultInterval  = 30 * time.Second
	DefaultLogTail   = 50

	DefaultReasonerEndpoint = "https://api.openai.com/v1/chat/completions"
	DefaultReasonerModel    = "gpt-4"
	DefaultReasonerTimeout  = 30 * time.Second
)

// Duration wraps time.Duration so YAML configs can use values like "30s".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// ReasonerConfig configures the external reasoning fallback.
type ReasonerConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Endpoint  string   `yaml:"endpoint"`
	Model     string   `yaml:"model"`
	APIKeyEnv string   `yaml:"apiKeyEnv"`
	Timeout   Duration `yaml:"timeout"`
}

// Config holds the full agent configuration. Values resolve in flag >
// file > default order; flags are applied by the CLI after Load.
type Config struct {
	Namespace     string   `yaml:"namespace"`
	Interval      Duration `yaml:"interval"`
	DataDir       string   `yaml:"dataDir"`
	LogTail       int      `yaml:"logTail"`
	AutoRemediate bool     `yaml:"autoRemediate"`
	Kubeconfig    string   `yaml:"kubeconfig"`
	MetricsAddr   string   `yaml:"metricsAddr"`
	LogLevel      string   `yaml:"logLevel"`
	LogJSON       bool     `yaml:"logJSON"`

	Reasoner ReasonerConfig `yaml:"reasoner"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Namespace:     DefaultNamespace,
		Interval:      Duration(DefaultInterval),
		DataDir:       filepath.Join(home, ".k8s-ai-diagnostics"),
		LogTail:       DefaultLogTail,
		AutoRemediate: true,
		LogLevel:      "info",
		Reasoner: ReasonerConfig{
			Enabled:   true,
			Endpoint:  DefaultReasonerEndpoint,
			Model:     DefaultReasonerModel,
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   Duration(DefaultReasonerTimeout),
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for startup-fatal problems.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("namespace must not be empty")
	}
	if c.Interval.Std() < time.Second {
		return fmt.Errorf("interval must be at least 1s, got %s", c.Interval)
	}
	if c.LogTail <= 0 {
		return fmt.Errorf("logTail must be positive, got %d", c.LogTail)
	}
	if c.Reasoner.Enabled && c.Reasoner.Endpoint == "" {
		return fmt.Errorf("reasoner endpoint must not be empty when enabled")
	}
	return nil
}

// ReasonerAPIKey resolves the reasoner API key from the environment.
func (c *Config) ReasonerAPIKey() string {
	if c.Reasoner.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Reasoner.APIKeyEnv)
}
