package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load merges the file at path (.toml, .yaml or .yml) over Defaults, then
// applies .env and environment overrides. An empty path skips the file.
// The result is not validated; call Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	// Switching network without naming an endpoint picks that network's default.
	if cfg.Network.RPCURL == defaultRPC["mainnet"] {
		if rpc, ok := defaultRPC[cfg.Network.Name]; ok {
			cfg.Network.RPCURL = rpc
		}
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config: unsupported file type %q", ext)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	// Platform conventions first so WAGER_* wins when both are set.
	setInt(&cfg.Server.Port, "PORT")
	setStr(&cfg.Database.DSN, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")

	// ── Server ──
	setInt(&cfg.Server.Port, "WAGER_SERVER_PORT")
	setDuration(&cfg.Server.RequestTimeout, "WAGER_SERVER_REQUEST_TIMEOUT")
	setFloat64(&cfg.Server.RateLimit, "WAGER_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "WAGER_SERVER_RATE_BURST")
	setStringSlice(&cfg.Server.CORSOrigins, "WAGER_SERVER_CORS_ORIGINS")

	// ── Database ──
	setStr(&cfg.Database.DSN, "WAGER_DATABASE_DSN")
	setInt(&cfg.Database.MaxConns, "WAGER_DATABASE_MAX_CONNS")
	setInt(&cfg.Database.MinConns, "WAGER_DATABASE_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "WAGER_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "WAGER_REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "WAGER_REDIS_CACHE_TTL")
	setDuration(&cfg.Redis.LockTTL, "WAGER_REDIS_LOCK_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "WAGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WAGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "WAGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WAGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WAGER_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "WAGER_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.PublicBaseURL, "WAGER_S3_PUBLIC_BASE_URL")

	// ── Pricing / limits ──
	setStr(&cfg.Pricing.Model, "WAGER_PRICING_MODEL")
	setFloat64(&cfg.Pricing.Liquidity, "WAGER_PRICING_LIQUIDITY")
	setFloat64(&cfg.Limits.MaxStakePerMarket, "WAGER_LIMITS_MAX_STAKE_PER_MARKET")
	setFloat64(&cfg.Limits.MaxStakePerCategory, "WAGER_LIMITS_MAX_STAKE_PER_CATEGORY")

	// ── Network ──
	setStr(&cfg.Network.Name, "WAGER_NETWORK_NAME")
	setStr(&cfg.Network.RPCURL, "WAGER_NETWORK_RPC_URL")

	setStr(&cfg.LogLevel, "WAGER_LOG_LEVEL")
}

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

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
