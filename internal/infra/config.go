package infra

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. Secrets are expected to
// arrive through environment variables; values in the file are overridden.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode string `yaml:"mode"` // "live", "paper", or "mock"
	} `yaml:"trading"`

	API struct {
		Endpoint       string   `yaml:"endpoint"` // wss://... streaming endpoint
		Token          string   `yaml:"token"`
		Currency       string   `yaml:"currency"`
		Symbols        []string `yaml:"symbols"`
		RequestsPerSec float64  `yaml:"requests_per_sec"`
	} `yaml:"api"`

	Session struct {
		ReconnectDelaySec int  `yaml:"reconnect_delay_sec"`
		Backoff           bool `yaml:"backoff"`
		RequestTimeoutSec int  `yaml:"request_timeout_sec"`
	} `yaml:"session"`

	Journal struct {
		Path        string `yaml:"path"`
		RecordTicks bool   `yaml:"record_ticks"`
	} `yaml:"journal"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies env overrides and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Session.ReconnectDelaySec == 0 {
		c.Session.ReconnectDelaySec = 3
	}
	if c.API.RequestsPerSec == 0 {
		c.API.RequestsPerSec = 10
	}
	if c.Trading.Mode == "" {
		c.Trading.Mode = "paper"
	}
	if c.API.Currency == "" {
		c.API.Currency = "USD"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.API.Endpoint, "ws://") && !strings.HasPrefix(c.API.Endpoint, "wss://") {
		return fmt.Errorf("invalid streaming endpoint: %q", c.API.Endpoint)
	}
	if c.API.Token == "" {
		return fmt.Errorf("API token is required (set TRADE_API_TOKEN)")
	}
	if len(c.API.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.Session.ReconnectDelaySec <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}
	switch strings.ToLower(c.Trading.Mode) {
	case "live", "paper", "mock":
	default:
		return fmt.Errorf("unknown trading mode: %q", c.Trading.Mode)
	}
	return nil
}

// ReconnectDelay returns the configured fixed reconnect delay.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Session.ReconnectDelaySec) * time.Second
}

// RequestTimeout returns the per-request timeout, zero when disabled.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Session.RequestTimeoutSec) * time.Second
}

// overrideWithEnv applies environment variables over file values.
// Env wins: tokens do not belong in config files.
func overrideWithEnv(cfg *Config) {
	if cfg.API.Token != "" {
		fmt.Println("⚠️  SECURITY WARNING: API token found in config file.")
		fmt.Println("   Recommendation: use the TRADE_API_TOKEN environment variable instead.")
	}

	if tok := os.Getenv("TRADE_API_TOKEN"); tok != "" {
		cfg.API.Token = tok
	}
	if ep := os.Getenv("TRADE_API_ENDPOINT"); ep != "" {
		cfg.API.Endpoint = ep
	}
}

// GetUserAgent generates a browser-like User-Agent string for the current OS.
// The provider's edge occasionally drops connections with generic agents.
func GetUserAgent() string {
	chromeVer := "120.0.0.0"

	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36", chromeVer)
	case "darwin":
		return fmt.Sprintf("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36", chromeVer)
	case "linux":
		linuxArch := "x86_64"
		if runtime.GOARCH == "arm64" {
			linuxArch = "aarch64"
		}
		return fmt.Sprintf("Mozilla/5.0 (X11; Linux %s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36", linuxArch, chromeVer)
	default:
		return "Mozilla/5.0 (compatible; TradeStream/1.0)"
	}
}
