package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pmradar/pmradar/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Detector.SpikeMultiplier = 1.0
	cfg.Alerts.Basic.MaxPerDay = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation to fail")
	}
	for _, want := range []string{
		`unknown mode "bogus"`,
		`unknown log_level "loud"`,
		"spike_multiplier must be > 1",
		"alerts.basic: max_per_day must be >= 1",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateTierBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "negative min score",
			mutate: func(c *Config) { c.Alerts.Pro.MinScore = -1 },
			want:   "alerts.pro: min_score must be in [0,100]",
		},
		{
			name:   "pool min above max",
			mutate: func(c *Config) { c.Postgres.PoolMinConns = 20 },
			want:   "pool_min_conns must not exceed pool_max_conns",
		},
		{
			name:   "similarity cutoff above scale",
			mutate: func(c *Config) { c.Matcher.SimilarityCutoff = 150 },
			want:   "similarity_cutoff must be in (0,100]",
		},
		{
			name:   "bucket without region",
			mutate: func(c *Config) { c.S3.Bucket = "archive"; c.S3.Region = "" },
			want:   "s3: region must not be empty when bucket is set",
		},
		{
			name:   "negative gc retention",
			mutate: func(c *Config) { c.Engine.GCRetention = duration{-time.Hour} },
			want:   "gc_retention must be >= 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestValidateDSNSkipsHostChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://user:pass@db:5432/pmradar"
	cfg.Postgres.Host = ""
	cfg.Postgres.Port = 0
	cfg.Postgres.Database = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DSN should satisfy connection checks: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "monitor" || cfg.Engine.RunInterval.Duration != 15*time.Minute {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "full"
log_level = "debug"

[postgres]
host = "db.internal"
port = 5433

[detector]
spike_multiplier = 4.0

[engine]
run_interval = "5m"
gc_retention = "48h"

[alerts.basic]
min_score = 80
max_per_day = 3
delivery_delay = "10m"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "full" || cfg.LogLevel != "debug" {
		t.Fatalf("top-level fields = %s/%s", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Port != 5433 {
		t.Fatalf("postgres overrides = %s:%d", cfg.Postgres.Host, cfg.Postgres.Port)
	}
	// Unset keys keep their defaults.
	if cfg.Postgres.Database != "pmradar" {
		t.Fatalf("database = %s, want default", cfg.Postgres.Database)
	}
	if cfg.Detector.SpikeMultiplier != 4.0 {
		t.Fatalf("spike_multiplier = %v", cfg.Detector.SpikeMultiplier)
	}
	if cfg.Engine.RunInterval.Duration != 5*time.Minute {
		t.Fatalf("run_interval = %v", cfg.Engine.RunInterval.Duration)
	}
	if cfg.Engine.GCRetention.Duration != 48*time.Hour {
		t.Fatalf("gc_retention = %v", cfg.Engine.GCRetention.Duration)
	}
	if cfg.Alerts.Basic.MinScore != 80 || cfg.Alerts.Basic.DeliveryDelay.Duration != 10*time.Minute {
		t.Fatalf("basic tier = %+v", cfg.Alerts.Basic)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PMRADAR_MODE", "gc")
	t.Setenv("PMRADAR_POSTGRES_PASSWORD", "secret")
	t.Setenv("PMRADAR_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("PMRADAR_DETECTOR_MIN_SPREAD", "0.05")
	t.Setenv("PMRADAR_ENGINE_GC_RETENTION", "72h")
	t.Setenv("PMRADAR_S3_USE_SSL", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "gc" {
		t.Fatalf("mode = %s", cfg.Mode)
	}
	if cfg.Postgres.Password != "secret" {
		t.Fatal("postgres password override missing")
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Fatalf("redis addr = %s", cfg.Redis.Addr)
	}
	if cfg.Detector.MinSpread != 0.05 {
		t.Fatalf("min_spread = %v", cfg.Detector.MinSpread)
	}
	if cfg.Engine.GCRetention.Duration != 72*time.Hour {
		t.Fatalf("gc_retention = %v", cfg.Engine.GCRetention.Duration)
	}
	if cfg.S3.UseSSL {
		t.Fatal("use_ssl override missing")
	}
}

func TestLoadEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PMRADAR_POSTGRES_PORT", "not-a-number")
	t.Setenv("PMRADAR_ENGINE_RUN_INTERVAL", "soon")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Postgres.Port != 5432 {
		t.Fatalf("port = %d, want default", cfg.Postgres.Port)
	}
	if cfg.Engine.RunInterval.Duration != 15*time.Minute {
		t.Fatalf("run_interval = %v, want default", cfg.Engine.RunInterval.Duration)
	}
}

func TestPolicies(t *testing.T) {
	policies := Defaults().Alerts.Policies()
	if len(policies) != 3 {
		t.Fatalf("got %d policies, want 3", len(policies))
	}
	basic := policies[domain.TierBasic]
	if basic.MinScore != 70 || basic.MaxPerDay != 5 || basic.DeliveryDelay != 30*time.Minute {
		t.Fatalf("basic policy = %+v", basic)
	}
	if policies[domain.TierPro].DeliveryDelay != 0 {
		t.Fatalf("pro delay = %v", policies[domain.TierPro].DeliveryDelay)
	}
}
