package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	dashboard "soilwatch/internal/dashboard/domain"
)

const (
	defaultPollInterval    = 30 * time.Second
	defaultHistoryLookback = 7 * 24 * time.Hour
	defaultRecentPerDevice = 1
)

// Config tunes the live dashboard.
type Config struct {
	FreshnessThreshold time.Duration `yaml:"freshness_threshold"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	BucketWidth        time.Duration `yaml:"bucket_width"`
	HistoryLookback    time.Duration `yaml:"history_lookback"`
	Timezone           string        `yaml:"timezone"`
	RecentPerDevice    int           `yaml:"recent_per_device"`

	location *time.Location
}

// LoadConfig loads config from env, then overlays DASHBOARD_CONFIG yaml if set.
func LoadConfig() (Config, error) {
	cfg := Config{
		FreshnessThreshold: getenvDuration("FRESHNESS_THRESHOLD", dashboard.DefaultFreshnessThreshold),
		PollInterval:       getenvDuration("POLL_INTERVAL", defaultPollInterval),
		BucketWidth:        getenvDuration("BUCKET_WIDTH", dashboard.DefaultBucketWidth),
		HistoryLookback:    getenvDuration("HISTORY_LOOKBACK", defaultHistoryLookback),
		Timezone:           getenvDefault("DISPLAY_TIMEZONE", "UTC"),
		RecentPerDevice:    getenvIntDefault("RECENT_PER_DEVICE", defaultRecentPerDevice),
	}

	if path := os.Getenv("DASHBOARD_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("dashboard config %s: %w", path, err)
		}
	}
	return cfg.normalize()
}

// Location returns the display zone used for buckets and exports.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c Config) normalize() (Config, error) {
	if c.FreshnessThreshold <= 0 {
		c.FreshnessThreshold = dashboard.DefaultFreshnessThreshold
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BucketWidth <= 0 {
		c.BucketWidth = dashboard.DefaultBucketWidth
	}
	if c.BucketWidth%time.Hour != 0 || (24*time.Hour)%c.BucketWidth != 0 {
		return c, errors.New("dashboard: bucket width must be whole hours dividing a day")
	}
	if c.HistoryLookback <= 0 {
		c.HistoryLookback = defaultHistoryLookback
	}
	if c.RecentPerDevice <= 0 {
		c.RecentPerDevice = defaultRecentPerDevice
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return c, fmt.Errorf("dashboard: display timezone: %w", err)
	}
	c.location = loc
	return c, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
