// Package config loads and validates the engine's YAML configuration,
// expanding ${ENV} references and defaulting unset fields, in the style of
// the teacher repo's config loader: read file, expand env, decode with
// unknown-field rejection, normalize, validate.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BrokerAccount holds one paper account's credentials and sizing limits.
type BrokerAccount struct {
	APIKey           string  `yaml:"api_key"`
	AccountID        string  `yaml:"account_id"`
	BaseURL          string  `yaml:"base_url"`
	MaxConcurrent    int     `yaml:"max_concurrent"`
	PositionNotionalCap float64 `yaml:"position_notional_cap"`
	PositionPct      float64 `yaml:"position_pct"`
	HardStopPct      float64 `yaml:"hard_stop_pct"`
}

// Firehose holds the options firehose streaming credentials.
type Firehose struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// EquityStream holds the equity trade-stream credentials.
type EquityStream struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// Detector holds the UOA Detector's tunables.
type Detector struct {
	Threshold      float64       `yaml:"threshold"`
	Cooldown       time.Duration `yaml:"cooldown"`
	MinNotional    float64       `yaml:"min_notional"`
	ScanInterval   time.Duration `yaml:"scan_interval"`
	SweepConditions []string     `yaml:"sweep_conditions"`
}

// EOD holds the end-of-day liquidation wall-clock time.
type EOD struct {
	ExitTime string `yaml:"exit_time"` // "HH:MM" in Timezone
}

// Config is the engine's fully-resolved runtime configuration.
type Config struct {
	DatabaseURL  string        `yaml:"database_url"`
	RedisURL     string        `yaml:"redis_url"`
	Timezone     string        `yaml:"timezone"`
	StatusAPIAddr string       `yaml:"status_api_addr"`

	AccountA BrokerAccount `yaml:"account_a"`
	AccountB BrokerAccount `yaml:"account_b"`

	Firehose     Firehose     `yaml:"firehose"`
	EquityStream EquityStream `yaml:"equity_stream"`

	Detector Detector `yaml:"detector"`
	EOD      EOD      `yaml:"eod"`

	HardStopPollInterval time.Duration `yaml:"hard_stop_poll_interval"`
	BucketFlushInterval  time.Duration `yaml:"bucket_flush_interval"`
	RegimeCacheTTL       time.Duration `yaml:"regime_cache_ttl"`
	BaselineCacheTTL     time.Duration `yaml:"baseline_cache_ttl"`

	Environment string `yaml:"environment"` // "paper" or "live" — selects the logrus formatter
}

// Load reads path, expands ${ENV} references, decodes strictly (unknown
// fields are an error, matching the teacher's KnownFields(true) decoder),
// normalizes defaults, then validates.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	trimEnvValues(&cfg)
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

// trimEnvValues strips CR/whitespace from every env-sourced field — a
// missing CR-strip here has historically corrupted unix socket paths and
// API keys copy-pasted with trailing CRLF.
func trimEnvValues(cfg *Config) {
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.AccountA.APIKey = strings.TrimSpace(cfg.AccountA.APIKey)
	cfg.AccountB.APIKey = strings.TrimSpace(cfg.AccountB.APIKey)
	cfg.Firehose.APIKey = strings.TrimSpace(cfg.Firehose.APIKey)
	cfg.EquityStream.APIKey = strings.TrimSpace(cfg.EquityStream.APIKey)
	cfg.AccountA.AccountID = strings.TrimSpace(cfg.AccountA.AccountID)
	cfg.AccountA.BaseURL = strings.TrimSpace(cfg.AccountA.BaseURL)
	cfg.AccountB.AccountID = strings.TrimSpace(cfg.AccountB.AccountID)
	cfg.AccountB.BaseURL = strings.TrimSpace(cfg.AccountB.BaseURL)
	cfg.Firehose.URL = strings.TrimSpace(cfg.Firehose.URL)
	cfg.EquityStream.URL = strings.TrimSpace(cfg.EquityStream.URL)
	cfg.Timezone = strings.TrimSpace(cfg.Timezone)
	cfg.StatusAPIAddr = strings.TrimSpace(cfg.StatusAPIAddr)
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.EOD.ExitTime = strings.TrimSpace(cfg.EOD.ExitTime)
}

// Normalize fills unset fields with the spec's documented defaults.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = "America/New_York"
	}
	if c.Detector.Threshold == 0 {
		c.Detector.Threshold = 3.0
	}
	if c.Detector.Cooldown == 0 {
		c.Detector.Cooldown = 60 * time.Minute
	}
	if c.Detector.MinNotional == 0 {
		c.Detector.MinNotional = 10000
	}
	if c.Detector.ScanInterval == 0 {
		c.Detector.ScanInterval = 10 * time.Second
	}
	if c.EOD.ExitTime == "" {
		c.EOD.ExitTime = "15:55"
	}
	if c.HardStopPollInterval == 0 {
		c.HardStopPollInterval = 30 * time.Second
	}
	if c.BucketFlushInterval == 0 {
		c.BucketFlushInterval = 5 * time.Second
	}
	if c.RegimeCacheTTL == 0 {
		c.RegimeCacheTTL = 30 * time.Second
	}
	if c.BaselineCacheTTL == 0 {
		c.BaselineCacheTTL = 5 * time.Minute
	}
	if c.Environment == "" {
		c.Environment = "paper"
	}
	normalizeAccount(&c.AccountA, 5)
	normalizeAccount(&c.AccountB, 5)
}

func normalizeAccount(a *BrokerAccount, defaultMaxConcurrent int) {
	if a.MaxConcurrent == 0 {
		a.MaxConcurrent = defaultMaxConcurrent
	}
	if a.PositionNotionalCap == 0 {
		a.PositionNotionalCap = 10000
	}
	if a.PositionPct == 0 {
		a.PositionPct = 0.10
	}
	if a.HardStopPct == 0 {
		a.HardStopPct = -0.02
	}
}

// Validate returns a descriptive error for any missing required field or
// out-of-range value, failing fast at boot on schema/config drift.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "database_url")
	}
	if c.AccountA.APIKey == "" {
		missing = append(missing, "account_a.api_key")
	}
	if c.AccountB.APIKey == "" {
		missing = append(missing, "account_b.api_key")
	}
	if c.Firehose.APIKey == "" {
		missing = append(missing, "firehose.api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config values: %s", strings.Join(missing, ", "))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if _, err := time.Parse("15:04", c.EOD.ExitTime); err != nil {
		return fmt.Errorf("invalid eod.exit_time %q: %w", c.EOD.ExitTime, err)
	}
	if c.Detector.Threshold <= 0 {
		return fmt.Errorf("detector.threshold must be positive")
	}
	if c.AccountA.HardStopPct >= 0 || c.AccountB.HardStopPct >= 0 {
		return fmt.Errorf("hard_stop_pct must be negative (a loss threshold)")
	}
	return nil
}

// Location returns the parsed exchange timezone, already validated by Validate.
func (c *Config) Location() *time.Location {
	loc, _ := time.LoadLocation(c.Timezone)
	return loc
}
