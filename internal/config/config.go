// Package config defines the process configuration and how it is loaded.
package config

import (
	"context"
	"time"

	"github.com/okian/stadium/internal/adapters/feed"
	"github.com/okian/stadium/internal/adapters/sink/govee"
)

// Snapshot source kinds.
const (
	SourceESPN   = "espn"
	SourceReplay = "replay"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// TeamsFile optionally overrides the built-in team colors.
	TeamsFile string `koanf:"teams_file"`

	Server   ServerConfig   `koanf:"server"`
	Feed     FeedConfig     `koanf:"feed"`
	Backoff  BackoffConfig  `koanf:"backoff"`
	Sinks    SinksConfig    `koanf:"sinks"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Hub      HubConfig      `koanf:"hub"`
	History  HistoryConfig  `koanf:"history"`
	Trigger  TriggerConfig  `koanf:"trigger"`
	Health   HealthConfig   `koanf:"health"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// ServerConfig holds HTTP server timeouts.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// FeedConfig selects the snapshot source and the contests tracked at boot.
type FeedConfig struct {
	Source       string        `koanf:"source"`
	BaseURL      string        `koanf:"base_url"`
	ReplayPath   string        `koanf:"replay_path"`
	PollInterval time.Duration `koanf:"poll_interval"`
	// UntrackOnFinal drops a contest once it reaches final.
	UntrackOnFinal bool       `koanf:"untrack_on_final"`
	Contests       []feed.Ref `koanf:"contests"`
	// ContestIDs is the env-friendly form of Contests: "league:id" or "id".
	ContestIDs []string `koanf:"contest_ids"`
}

// BackoffConfig shapes the delay added after failed polls.
type BackoffConfig struct {
	Base   time.Duration `koanf:"base"`
	Max    time.Duration `koanf:"max"`
	Jitter time.Duration `koanf:"jitter"`
}

// SinksConfig lists the actuators.
type SinksConfig struct {
	// DryRun replaces every device with a logging sink.
	DryRun  bool          `koanf:"dry_run"`
	Wiz     WizConfig     `koanf:"wiz"`
	Govee   GoveeConfig   `koanf:"govee"`
	Breaker BreakerConfig `koanf:"breaker"`
}

// WizConfig lists WiZ bulbs on the local network.
type WizConfig struct {
	Bulbs []string `koanf:"bulbs"`
	Port  int      `koanf:"port"`
}

// GoveeConfig holds cloud API credentials and devices.
type GoveeConfig struct {
	APIKey  string         `koanf:"api_key"`
	BaseURL string         `koanf:"base_url"`
	Devices []govee.Device `koanf:"devices"`
	Rate    float64        `koanf:"rate"`
	Burst   int            `koanf:"burst"`
}

// BreakerConfig tunes the per-sink circuit breaker.
type BreakerConfig struct {
	Failures    uint32        `koanf:"failures"`
	OpenTimeout time.Duration `koanf:"open_timeout"`
}

// DispatchConfig tunes the celebration dispatcher.
type DispatchConfig struct {
	Grace        time.Duration `koanf:"grace"`
	Window       time.Duration `koanf:"window"`
	LaneCapacity int           `koanf:"lane_capacity"`
}

// HubConfig tunes the subscriber hub.
type HubConfig struct {
	PingInterval   time.Duration `koanf:"ping_interval"`
	Watchdog       time.Duration `koanf:"watchdog"`
	QueueSize      int           `koanf:"queue_size"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
}

// HistoryConfig enables the SQLite history when Path is set.
type HistoryConfig struct {
	Path      string `koanf:"path"`
	QueueSize int    `koanf:"queue_size"`
}

// TriggerConfig limits POST /celebrations.
type TriggerConfig struct {
	Rate  float64 `koanf:"rate"`
	Burst int     `koanf:"burst"`
}

// HealthConfig tunes the degraded-status monitor.
type HealthConfig struct {
	FailureThreshold int           `koanf:"failure_threshold"`
	Interval         time.Duration `koanf:"interval"`
}

// MetricsConfig shapes the Prometheus collectors.
type MetricsConfig struct {
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
	// Buckets are the latency histogram bounds in milliseconds.
	Buckets []float64 `koanf:"buckets"`
	// Labels are attached to every metric, e.g. site=den.
	Labels map[string]string `koanf:"labels"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Addr:      ":9080",
		Server: ServerConfig{
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Feed: FeedConfig{
			Source:         SourceESPN,
			PollInterval:   10 * time.Second,
			UntrackOnFinal: true,
		},
		Backoff: BackoffConfig{
			Base:   time.Second,
			Max:    30 * time.Second,
			Jitter: 250 * time.Millisecond,
		},
		Sinks: SinksConfig{
			Wiz:     WizConfig{Port: 38899},
			Govee:   GoveeConfig{BaseURL: govee.DefaultBaseURL, Rate: 10, Burst: 5},
			Breaker: BreakerConfig{Failures: 3, OpenTimeout: 30 * time.Second},
		},
		Dispatch: DispatchConfig{
			Grace:        2 * time.Second,
			Window:       30 * time.Second,
			LaneCapacity: 32,
		},
		Hub: HubConfig{
			PingInterval: 15 * time.Second,
			Watchdog:     45 * time.Second,
			QueueSize:    64,
		},
		History: HistoryConfig{QueueSize: 512},
		Trigger: TriggerConfig{Rate: 2, Burst: 5},
		Health:  HealthConfig{FailureThreshold: 5, Interval: 10 * time.Second},
		Metrics: MetricsConfig{Namespace: "stadium", Subsystem: "core"},
	}
}

// AllContests merges Contests with the parsed ContestIDs. Only valid after
// Load.
func (c *Config) AllContests() []feed.Ref {
	out := make([]feed.Ref, 0, len(c.Feed.Contests)+len(c.Feed.ContestIDs))
	out = append(out, c.Feed.Contests...)
	for _, s := range c.Feed.ContestIDs {
		if ref, err := parseContestID(s); err == nil {
			out = append(out, ref)
		}
	}
	return out
}
