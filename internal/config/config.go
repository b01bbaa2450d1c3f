// Package config loads wager-engine settings from a TOML or YAML file, an
// optional .env file and WAGER_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Database DatabaseConfig `toml:"database" yaml:"database"`
	Redis    RedisConfig    `toml:"redis" yaml:"redis"`
	S3       S3Config       `toml:"s3" yaml:"s3"`
	Pricing  PricingConfig  `toml:"pricing" yaml:"pricing"`
	Limits   LimitsConfig   `toml:"limits" yaml:"limits"`
	Network  NetworkConfig  `toml:"network" yaml:"network"`
	LogLevel string         `toml:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int      `toml:"port" yaml:"port"`
	ReadTimeout     Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     Duration `toml:"idle_timeout" yaml:"idle_timeout"`
	RequestTimeout  Duration `toml:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	// RateLimit is the sustained write requests per second per client IP;
	// zero disables limiting.
	RateLimit   float64  `toml:"rate_limit" yaml:"rate_limit"`
	RateBurst   int      `toml:"rate_burst" yaml:"rate_burst"`
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
}

// DatabaseConfig selects PostgreSQL. An empty DSN means the in-memory store.
type DatabaseConfig struct {
	DSN           string `toml:"dsn" yaml:"dsn"`
	MaxConns      int    `toml:"max_conns" yaml:"max_conns"`
	MinConns      int    `toml:"min_conns" yaml:"min_conns"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
}

// RedisConfig enables the market cache and distributed settlement lock.
type RedisConfig struct {
	URL      string   `toml:"url" yaml:"url"`
	CacheTTL Duration `toml:"cache_ttl" yaml:"cache_ttl"`
	LockTTL  Duration `toml:"lock_ttl" yaml:"lock_ttl"`
}

// S3Config configures market image storage. An empty bucket disables uploads.
type S3Config struct {
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	Region         string `toml:"region" yaml:"region"`
	Bucket         string `toml:"bucket" yaml:"bucket"`
	AccessKey      string `toml:"access_key" yaml:"access_key"`
	SecretKey      string `toml:"secret_key" yaml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style" yaml:"force_path_style"`
	PublicBaseURL  string `toml:"public_base_url" yaml:"public_base_url"`
	MaxUploadBytes int64  `toml:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// PricingConfig selects how market prices follow staked amounts.
type PricingConfig struct {
	Model     string  `toml:"model" yaml:"model"`
	Liquidity float64 `toml:"liquidity" yaml:"liquidity"`
}

// LimitsConfig caps a wallet's open stake. Zero disables a cap.
type LimitsConfig struct {
	MaxStakePerMarket   float64 `toml:"max_stake_per_market" yaml:"max_stake_per_market"`
	MaxStakePerCategory float64 `toml:"max_stake_per_category" yaml:"max_stake_per_category"`
}

// NetworkConfig names the payment network that tx_ref values belong to.
// It is passed to the components that need it; nothing reads it globally.
type NetworkConfig struct {
	Name   string `toml:"name" yaml:"name"`
	RPCURL string `toml:"rpc_url" yaml:"rpc_url"`
}

// Duration wraps time.Duration so it decodes from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

var (
	defaultRPC = map[string]string{
		"mainnet": "https://api.mainnet-beta.solana.com",
		"testnet": "https://api.testnet.solana.com",
	}

	validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validModels    = map[string]bool{"pool": true, "lmsr": true}
)

// Defaults returns a configuration that runs a single in-memory instance.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration{10 * time.Second},
			WriteTimeout:    Duration{10 * time.Second},
			IdleTimeout:     Duration{60 * time.Second},
			RequestTimeout:  Duration{30 * time.Second},
			ShutdownTimeout: Duration{5 * time.Second},
			RateLimit:       20,
			RateBurst:       40,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			MaxConns:      10,
			MinConns:      1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			CacheTTL: Duration{30 * time.Second},
			LockTTL:  Duration{30 * time.Second},
		},
		S3: S3Config{
			Region:         "us-east-1",
			MaxUploadBytes: 5 << 20,
		},
		Pricing: PricingConfig{
			Model:     "pool",
			Liquidity: 100,
		},
		Network: NetworkConfig{
			Name:   "mainnet",
			RPCURL: defaultRPC["mainnet"],
		},
		LogLevel: "info",
	}
}

// Validate reports every invalid setting in one error.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RequestTimeout.Duration <= 0 {
		errs = append(errs, "server: request_timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		errs = append(errs, "server: rate_burst must be >= 1 when rate_limit is set")
	}

	if c.Database.DSN != "" {
		if c.Database.MaxConns < 1 {
			errs = append(errs, "database: max_conns must be >= 1")
		}
		if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
			errs = append(errs, "database: min_conns must be between 0 and max_conns")
		}
	}
	if c.Redis.URL != "" && c.Database.DSN == "" {
		errs = append(errs, "redis: url requires database.dsn (the cache wraps PostgreSQL)")
	}

	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must be set when bucket is set")
	}

	model := strings.ToLower(c.Pricing.Model)
	if !validModels[model] {
		errs = append(errs, fmt.Sprintf("pricing: unknown model %q (valid: pool, lmsr)", c.Pricing.Model))
	}
	if model == "lmsr" && c.Pricing.Liquidity <= 0 {
		errs = append(errs, "pricing: liquidity must be positive for lmsr")
	}

	if c.Limits.MaxStakePerMarket < 0 || c.Limits.MaxStakePerCategory < 0 {
		errs = append(errs, "limits: stake caps must not be negative")
	}

	if _, ok := defaultRPC[c.Network.Name]; !ok {
		errs = append(errs, fmt.Sprintf("network: unknown name %q (valid: mainnet, testnet)", c.Network.Name))
	}
	if c.Network.RPCURL == "" {
		errs = append(errs, "network: rpc_url must not be empty")
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(errs) > 0 {
		return errors.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}
