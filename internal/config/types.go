// Package config loads, validates, and hot-reloads the daemon configuration.
//
// Files may be YAML or JSON; YAML is coerced to JSON so one strict decoder
// (DisallowUnknownFields) covers both. All durations are Go duration strings
// ("65s", "2h30m").
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Feed      FeedConfig      `json:"feed"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Gate      GateConfig      `json:"gate,omitempty"`
	Producer  ProducerConfig  `json:"producer,omitempty"`
	Maps      *MapsConfig     `json:"maps,omitempty"`
	Browser   *BrowserConfig  `json:"browser,omitempty"`
	Queue     *QueueConfig    `json:"queue,omitempty"`
	Publisher PublisherConfig `json:"publisher,omitempty"`
	Telegram  TelegramConfig  `json:"telegram"`
	Web       WebConfig       `json:"web,omitempty"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// FeedConfig points at the incident feed and perimeter service.
type FeedConfig struct {
	SituationURL string `json:"situation_url"`
	PerimeterURL string `json:"perimeter_url,omitempty"`
	Timeout      string `json:"timeout,omitempty"` // default "30s"
}

// ScheduleConfig controls the poll cadence.
//
// Poll accepts a cron expression ("*/5 * * * *"), a Go duration ("65s"), or
// HH:MM ("01:05"). RetryDelay is the shortened sleep after a failed fetch.
type ScheduleConfig struct {
	Poll       string `json:"poll,omitempty"`        // default "65s"
	RetryDelay string `json:"retry_delay,omitempty"` // default "15s"
}

// GateConfig bounds concurrent expensive work (renders, screenshots, big
// uploads share one pool).
type GateConfig struct {
	Capacity int `json:"capacity,omitempty"` // default 1
}

// ProducerConfig tunes artifact production.
type ProducerConfig struct {
	SourceURL string `json:"source_url,omitempty"`
	// PopulationWeight folds nearby-population exposure into publish
	// priority. 0 ranks by burned acres alone.
	PopulationWeight float64 `json:"population_weight,omitempty"`
}

// MapsConfig points at the static-map render service. Omitted section means
// no maps on cards.
type MapsConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"`
}

// BrowserConfig controls card screenshots. Omitted section means text-only
// posts.
type BrowserConfig struct {
	Bin     string `json:"bin,omitempty"` // default "chromium"
	Timeout string `json:"timeout,omitempty"`
}

// QueueConfig selects the pending-queue backend.
type QueueConfig struct {
	Driver      string `json:"driver,omitempty"` // "dir" (default) | "sqlite"
	Path        string `json:"path,omitempty"`   // sqlite database file
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// PublisherConfig tunes the drain loop.
type PublisherConfig struct {
	PostInterval   string `json:"post_interval,omitempty"`   // default "67.5s"
	FailureBackoff string `json:"failure_backoff,omitempty"` // default "5.3s"
	MaxAttempts    int    `json:"max_attempts,omitempty"`    // default 10
}

type TelegramConfig struct {
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
	Timeout string `json:"timeout,omitempty"`
}

// WebConfig controls the read-only artifact server.
type WebConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8080"
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"` // TRACE..ERROR, default INFO
	Console bool              `json:"console,omitempty"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Validate checks the cross-field constraints a strict decode cannot.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Feed.SituationURL) == "" {
		return fmt.Errorf("feed.situation_url is required")
	}
	// Telegram credentials are checked by the poster, not here: without
	// --post the daemon runs against a dry-run poster and a first install
	// must be able to evaluate the pipeline credential-free.
	if c.Queue != nil {
		switch strings.TrimSpace(c.Queue.Driver) {
		case "", "dir", "sqlite":
		default:
			return fmt.Errorf("queue.driver must be \"dir\" or \"sqlite\"")
		}
	}
	if c.Producer.PopulationWeight < 0 {
		return fmt.Errorf("producer.population_weight must be >= 0")
	}
	for _, f := range []struct{ path, raw string }{
		{"feed.timeout", c.Feed.Timeout},
		{"schedule.retry_delay", c.Schedule.RetryDelay},
		{"publisher.post_interval", c.Publisher.PostInterval},
		{"publisher.failure_backoff", c.Publisher.FailureBackoff},
		{"telegram.timeout", c.Telegram.Timeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

// ParseDurationField parses an optional duration field. Empty means unset
// and yields zero without error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration (use Go forms like \"65s\" or \"1.5m\")", path, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: %q is negative", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for unset
// fields. Explicit zero also falls back, so "0s" cannot disable a timeout.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
