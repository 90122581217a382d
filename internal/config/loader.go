package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/stadium/internal/adapters/feed"
)

// Environment conventions.
const (
	EnvPrefix = "STADIUM_"
	EnvFile   = "STADIUM_CONFIG"
	// envNest separates nested keys: STADIUM_FEED__POLL_INTERVAL -> feed.poll_interval.
	envNest = "__"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if STADIUM_CONFIG is set
//  3. env (prefix STADIUM_)
//
// Durations are strings like "10s" and env lists are comma separated.
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		if s == EnvFile {
			return ""
		}
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, envNest, ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	case c.Feed.PollInterval <= 0:
		return fmt.Errorf("%w: feed.poll_interval must be positive", ErrInvalidConfig)
	case c.Health.FailureThreshold <= 0:
		return fmt.Errorf("%w: health.failure_threshold must be positive", ErrInvalidConfig)
	case c.Trigger.Rate <= 0 || c.Trigger.Burst <= 0:
		return fmt.Errorf("%w: trigger rate and burst must be positive", ErrInvalidConfig)
	case c.Dispatch.LaneCapacity <= 0:
		return fmt.Errorf("%w: dispatch.lane_capacity must be positive", ErrInvalidConfig)
	}

	switch c.Feed.Source {
	case SourceESPN:
	case SourceReplay:
		if c.Feed.ReplayPath == "" {
			return fmt.Errorf("%w: feed.replay_path is required for the replay source", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: feed.source %q", ErrInvalidConfig, c.Feed.Source)
	}

	if c.Sinks.Govee.APIKey != "" && len(c.Sinks.Govee.Devices) == 0 {
		return fmt.Errorf("%w: sinks.govee.devices must not be empty", ErrInvalidConfig)
	}
	for _, s := range c.Feed.ContestIDs {
		if _, err := parseContestID(s); err != nil {
			return err
		}
	}
	for _, ref := range c.Feed.Contests {
		if ref.ContestID == "" {
			return fmt.Errorf("%w: feed.contests entry without contest_id", ErrInvalidConfig)
		}
	}
	for i := 1; i < len(c.Metrics.Buckets); i++ {
		if c.Metrics.Buckets[i] <= c.Metrics.Buckets[i-1] {
			return fmt.Errorf("%w: metrics.buckets must be strictly increasing", ErrInvalidConfig)
		}
	}
	return nil
}

func parseContestID(s string) (feed.Ref, error) {
	s = strings.TrimSpace(s)
	league, id, found := strings.Cut(s, ":")
	if !found {
		league, id = "", league
	}
	if id == "" {
		return feed.Ref{}, fmt.Errorf("%w: contest id %q", ErrInvalidConfig, s)
	}
	return feed.Ref{League: league, ContestID: id}, nil
}
