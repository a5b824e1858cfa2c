package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/fieldlink/fieldlink-go/internal/flagx"
	"github.com/fieldlink/fieldlink-go/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. Absent fields keep their current value.
type JsonConfig struct {
	ServerBaseURL *string `json:"server_base_url"`
	StorePath     *string `json:"store_path"`

	RequestTimeout *timex.Duration `json:"request_timeout"`
	MaxRetries     *int            `json:"max_retries"`
	BackoffBase    *timex.Duration `json:"backoff_base"`

	RefreshMaxRetries *int            `json:"refresh_max_retries"`
	RefreshLeeway     *timex.Duration `json:"refresh_leeway"`
	ProactiveWindow   *timex.Duration `json:"proactive_window"`

	SessionTimeout *timex.Duration `json:"session_timeout"`
}

// parseJson overlays cfg with values loaded from the JSON file named by the
// -c / -config flags. No file, no overlay. Panics on read or unmarshal
// errors, matching the fail-fast startup policy.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerBaseURL != nil {
		cfg.ServerBaseURL = *jc.ServerBaseURL
	}
	if jc.StorePath != nil {
		cfg.StorePath = *jc.StorePath
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
	}
	if jc.MaxRetries != nil {
		cfg.MaxRetries = *jc.MaxRetries
	}
	if jc.BackoffBase != nil {
		cfg.BackoffBase = time.Duration(jc.BackoffBase.Duration)
	}
	if jc.RefreshMaxRetries != nil {
		cfg.RefreshMaxRetries = *jc.RefreshMaxRetries
	}
	if jc.RefreshLeeway != nil {
		cfg.RefreshLeeway = time.Duration(jc.RefreshLeeway.Duration)
	}
	if jc.ProactiveWindow != nil {
		cfg.ProactiveWindow = time.Duration(jc.ProactiveWindow.Duration)
	}
	if jc.SessionTimeout != nil {
		cfg.SessionTimeout = time.Duration(jc.SessionTimeout.Duration)
	}
}
