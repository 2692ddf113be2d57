package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PMRADAR_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. A missing file is not
// an error: defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PMRADAR_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PMRADAR_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PMRADAR_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PMRADAR_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PMRADAR_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PMRADAR_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PMRADAR_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PMRADAR_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PMRADAR_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PMRADAR_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PMRADAR_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PMRADAR_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PMRADAR_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PMRADAR_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PMRADAR_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PMRADAR_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PMRADAR_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PMRADAR_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PMRADAR_S3_REGION")
	setStr(&cfg.S3.Bucket, "PMRADAR_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PMRADAR_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PMRADAR_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PMRADAR_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PMRADAR_S3_FORCE_PATH_STYLE")

	// ── Detector ──
	setFloat64(&cfg.Detector.SpikeMultiplier, "PMRADAR_DETECTOR_SPIKE_MULTIPLIER")
	setFloat64(&cfg.Detector.DivergenceThreshold, "PMRADAR_DETECTOR_DIVERGENCE_THRESHOLD")
	setFloat64(&cfg.Detector.RapidChangeThreshold, "PMRADAR_DETECTOR_RAPID_CHANGE_THRESHOLD")
	setFloat64(&cfg.Detector.ReversalThreshold, "PMRADAR_DETECTOR_REVERSAL_THRESHOLD")
	setInt(&cfg.Detector.MinLevelTouches, "PMRADAR_DETECTOR_MIN_LEVEL_TOUCHES")
	setFloat64(&cfg.Detector.TitleSimilarity, "PMRADAR_DETECTOR_TITLE_SIMILARITY")
	setFloat64(&cfg.Detector.MinSpread, "PMRADAR_DETECTOR_MIN_SPREAD")

	// ── Matcher ──
	setFloat64(&cfg.Matcher.SimilarityCutoff, "PMRADAR_MATCHER_SIMILARITY_CUTOFF")
	setFloat64(&cfg.Matcher.MaxLengthRatio, "PMRADAR_MATCHER_MAX_LENGTH_RATIO")
	setInt(&cfg.Matcher.MaxCloseGapDays, "PMRADAR_MATCHER_MAX_CLOSE_GAP_DAYS")
	setFloat64(&cfg.Matcher.MinVolume, "PMRADAR_MATCHER_MIN_VOLUME")
	setDuration(&cfg.Matcher.RunInterval, "PMRADAR_MATCHER_RUN_INTERVAL")

	// ── Engine ──
	setFloat64(&cfg.Engine.MinVolume, "PMRADAR_ENGINE_MIN_VOLUME")
	setDuration(&cfg.Engine.RunInterval, "PMRADAR_ENGINE_RUN_INTERVAL")
	setDuration(&cfg.Engine.GCInterval, "PMRADAR_ENGINE_GC_INTERVAL")
	setDuration(&cfg.Engine.GCRetention, "PMRADAR_ENGINE_GC_RETENTION")
	setDuration(&cfg.Engine.LockTTL, "PMRADAR_ENGINE_LOCK_TTL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PMRADAR_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PMRADAR_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PMRADAR_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Top-level ──
	setStr(&cfg.Mode, "PMRADAR_MODE")
	setStr(&cfg.LogLevel, "PMRADAR_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
