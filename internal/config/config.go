// Package config defines the top-level configuration for the pattern radar
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pmradar/pmradar/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PMRADAR_* environment
// variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Detector DetectorConfig `toml:"detector"`
	Matcher  MatcherConfig  `toml:"matcher"`
	Alerts   AlertConfig    `toml:"alerts"`
	Engine   EngineConfig   `toml:"engine"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. An empty Addr selects the
// in-process counter and alert cache instead.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for expired-pattern
// archival. An empty Bucket disables archival; garbage collection then
// deletes without archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// DetectorConfig enumerates every detector tunable with its default.
type DetectorConfig struct {
	// Volume detector
	SpikeMultiplier     float64 `toml:"spike_multiplier"`
	DivergenceThreshold float64 `toml:"divergence_threshold"`
	// Price detector
	RapidChangeThreshold float64 `toml:"rapid_change_threshold"`
	ReversalThreshold    float64 `toml:"reversal_threshold"`
	MinLevelTouches      int     `toml:"min_level_touches"`
	// Arbitrage detector
	TitleSimilarity float64 `toml:"title_similarity"`
	MinSpread       float64 `toml:"min_spread"`
}

// MatcherConfig holds the cross-venue matcher tunables.
type MatcherConfig struct {
	SimilarityCutoff float64  `toml:"similarity_cutoff"` // 0-100 scale
	MaxLengthRatio   float64  `toml:"max_length_ratio"`
	MaxCloseGapDays  int      `toml:"max_close_gap_days"`
	MinVolume        float64  `toml:"min_volume"`
	RunInterval      duration `toml:"run_interval"`
}

// TierConfig holds per-tier alert admission parameters.
type TierConfig struct {
	MinScore      float64  `toml:"min_score"`
	MaxPerDay     int      `toml:"max_per_day"`
	DeliveryDelay duration `toml:"delivery_delay"`
}

// AlertConfig holds the tier tables and recent-alert cache bounds.
type AlertConfig struct {
	Basic          TierConfig `toml:"basic"`
	Premium        TierConfig `toml:"premium"`
	Pro            TierConfig `toml:"pro"`
	RecentGlobal   int        `toml:"recent_global"`
	RecentPerTier  int        `toml:"recent_per_tier"`
	NotifyMinScore float64    `toml:"notify_min_score"`
}

// Policies converts the TOML tier table into the domain representation.
func (a AlertConfig) Policies() map[domain.Tier]domain.TierPolicy {
	return map[domain.Tier]domain.TierPolicy{
		domain.TierBasic:   {MinScore: a.Basic.MinScore, MaxPerDay: a.Basic.MaxPerDay, DeliveryDelay: a.Basic.DeliveryDelay.Duration},
		domain.TierPremium: {MinScore: a.Premium.MinScore, MaxPerDay: a.Premium.MaxPerDay, DeliveryDelay: a.Premium.DeliveryDelay.Duration},
		domain.TierPro:     {MinScore: a.Pro.MinScore, MaxPerDay: a.Pro.MaxPerDay, DeliveryDelay: a.Pro.DeliveryDelay.Duration},
	}
}

// EngineConfig holds pipeline run parameters.
type EngineConfig struct {
	MinVolume   float64  `toml:"min_volume"`
	RunInterval duration `toml:"run_interval"`
	GCInterval  duration `toml:"gc_interval"`
	GCRetention duration `toml:"gc_retention"`
	LockTTL     duration `toml:"lock_ttl"`
}

// NotifyConfig holds operator notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the documented default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "pmradar",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Detector: DetectorConfig{
			SpikeMultiplier:      3.0,
			DivergenceThreshold:  0.30,
			RapidChangeThreshold: 0.10,
			ReversalThreshold:    0.15,
			MinLevelTouches:      3,
			TitleSimilarity:      0.70,
			MinSpread:            0.03,
		},
		Matcher: MatcherConfig{
			SimilarityCutoff: 70,
			MaxLengthRatio:   3.0,
			MaxCloseGapDays:  365,
			MinVolume:        1000,
			RunInterval:      duration{30 * time.Minute},
		},
		Alerts: AlertConfig{
			Basic:          TierConfig{MinScore: 70, MaxPerDay: 5, DeliveryDelay: duration{30 * time.Minute}},
			Premium:        TierConfig{MinScore: 50, MaxPerDay: 20, DeliveryDelay: duration{5 * time.Minute}},
			Pro:            TierConfig{MinScore: 30, MaxPerDay: 100, DeliveryDelay: duration{0}},
			RecentGlobal:   100,
			RecentPerTier:  50,
			NotifyMinScore: 85,
		},
		Engine: EngineConfig{
			MinVolume:   1000,
			RunInterval: duration{15 * time.Minute},
			GCInterval:  duration{6 * time.Hour},
			GCRetention: duration{7 * 24 * time.Hour},
			LockTTL:     duration{10 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"pattern_alert", "run_failed"},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"analyze": true,
	"match":   true,
	"monitor": true,
	"gc":      true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: analyze, match, monitor, gc, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when bucket is set")
	}

	if c.Detector.SpikeMultiplier <= 1 {
		errs = append(errs, "detector: spike_multiplier must be > 1")
	}
	if c.Detector.DivergenceThreshold <= 0 {
		errs = append(errs, "detector: divergence_threshold must be > 0")
	}
	if c.Detector.RapidChangeThreshold <= 0 {
		errs = append(errs, "detector: rapid_change_threshold must be > 0")
	}
	if c.Detector.ReversalThreshold <= 0 {
		errs = append(errs, "detector: reversal_threshold must be > 0")
	}
	if c.Detector.MinLevelTouches < 2 {
		errs = append(errs, "detector: min_level_touches must be >= 2")
	}
	if c.Detector.TitleSimilarity <= 0 || c.Detector.TitleSimilarity > 1 {
		errs = append(errs, "detector: title_similarity must be in (0,1]")
	}
	if c.Detector.MinSpread <= 0 || c.Detector.MinSpread >= 1 {
		errs = append(errs, "detector: min_spread must be in (0,1)")
	}

	if c.Matcher.SimilarityCutoff <= 0 || c.Matcher.SimilarityCutoff > 100 {
		errs = append(errs, "matcher: similarity_cutoff must be in (0,100]")
	}
	if c.Matcher.MaxLengthRatio < 1 {
		errs = append(errs, "matcher: max_length_ratio must be >= 1")
	}
	if c.Matcher.MaxCloseGapDays < 1 {
		errs = append(errs, "matcher: max_close_gap_days must be >= 1")
	}

	for name, tier := range map[string]TierConfig{
		"basic": c.Alerts.Basic, "premium": c.Alerts.Premium, "pro": c.Alerts.Pro,
	} {
		if tier.MinScore < 0 || tier.MinScore > 100 {
			errs = append(errs, fmt.Sprintf("alerts.%s: min_score must be in [0,100]", name))
		}
		if tier.MaxPerDay < 1 {
			errs = append(errs, fmt.Sprintf("alerts.%s: max_per_day must be >= 1", name))
		}
	}
	if c.Alerts.RecentGlobal < 1 {
		errs = append(errs, "alerts: recent_global must be >= 1")
	}
	if c.Alerts.RecentPerTier < 1 {
		errs = append(errs, "alerts: recent_per_tier must be >= 1")
	}

	if c.Engine.MinVolume < 0 {
		errs = append(errs, "engine: min_volume must be >= 0")
	}
	if c.Engine.RunInterval.Duration <= 0 {
		errs = append(errs, "engine: run_interval must be positive")
	}
	if c.Engine.GCRetention.Duration < 0 {
		errs = append(errs, "engine: gc_retention must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
