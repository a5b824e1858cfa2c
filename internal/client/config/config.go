package config

import "time"

// Config holds runtime settings for the Fieldlink client.
//
// Durations control the session lifecycle policy: retry backoff for the
// request pipeline, the proactive-refresh leeway and foreground check
// window, and the background inactivity timeout.
type Config struct {
	ServerBaseURL string
	StorePath     string

	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration

	RefreshMaxRetries int
	RefreshLeeway     time.Duration
	ProactiveWindow   time.Duration

	SessionTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.StorePath = "fieldlink.db"
	c.RequestTimeout = 15 * time.Second
	c.MaxRetries = 3
	c.BackoffBase = time.Second
	c.RefreshMaxRetries = 3
	c.RefreshLeeway = 30 * time.Second
	c.ProactiveWindow = 5 * time.Minute
	c.SessionTimeout = 5 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
