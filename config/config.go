// Package config loads scenarioctl settings from .scenario.yaml, SCENARIO_*
// environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/aatuh/scenario"
	"github.com/aatuh/scenario/world"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SCENARIO"

// IncludeEmptyEnv forces the empty combination into the solution set when
// set to any non-empty value.
const IncludeEmptyEnv = "WITHOUT_MIGRATIONS"

// RedisConfig holds the Redis world backend settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// StoreConfig selects the backend worlds keep their state in.
type StoreConfig struct {
	Backend     string      `mapstructure:"backend"`
	SQLitePath  string      `mapstructure:"sqlite_path"`
	PostgresDSN string      `mapstructure:"postgres_dsn"`
	Redis       RedisConfig `mapstructure:"redis"`
}

// LedgerConfig controls the enactment ledger. The ledger needs a SQL store.
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Table   string `mapstructure:"table"`
}

// Config holds all runtime configuration for scenarioctl.
type Config struct {
	Network        string       `mapstructure:"network"`
	Deployment     string       `mapstructure:"deployment"`
	DeploymentsDir string       `mapstructure:"deployments_dir"`
	ScenariosDir   string       `mapstructure:"scenarios_dir"`
	Pattern        string       `mapstructure:"pattern"`
	IncludeEmpty   bool         `mapstructure:"include_empty"`
	MaxSize        int          `mapstructure:"max_size"`
	Require        []string     `mapstructure:"require"`
	Parallelism    int          `mapstructure:"parallelism"`
	Proposer       string       `mapstructure:"proposer"`
	Signers        []string     `mapstructure:"signers"`
	FreshWorld     bool         `mapstructure:"fresh_world"`
	Store          StoreConfig  `mapstructure:"store"`
	Ledger         LedgerConfig `mapstructure:"ledger"`
	Verbose        bool         `mapstructure:"verbose"`
	LogFormat      string       `mapstructure:"log_format"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("network", "")
	viper.SetDefault("deployment", "")
	viper.SetDefault("deployments_dir", "deployments")
	viper.SetDefault("scenarios_dir", "scenarios")
	viper.SetDefault("pattern", "")
	viper.SetDefault("include_empty", false)
	viper.SetDefault("max_size", 0)
	viper.SetDefault("require", []string{})
	viper.SetDefault("parallelism", 4)
	viper.SetDefault("proposer", "")
	viper.SetDefault("signers", []string{"deployer"})
	viper.SetDefault("fresh_world", true)
	viper.SetDefault("store.backend", world.KindMemory)
	viper.SetDefault("store.sqlite_path", "scenario.db")
	viper.SetDefault("store.postgres_dsn", "")
	viper.SetDefault("store.redis.address", "127.0.0.1:6379")
	viper.SetDefault("store.redis.password", "")
	viper.SetDefault("store.redis.db", 0)
	viper.SetDefault("store.redis.prefix", "scenario:")
	viper.SetDefault("ledger.enabled", false)
	viper.SetDefault("ledger.table", "scenario_enactments")
	viper.SetDefault("verbose", false)
	viper.SetDefault("log_format", "text")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if os.Getenv(IncludeEmptyEnv) != "" {
		cfg.IncludeEmpty = true
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c Config) Validate() error {
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism)
	}
	if c.MaxSize < 0 {
		return fmt.Errorf("max_size must not be negative, got %d", c.MaxSize)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	switch c.Store.Backend {
	case world.KindMemory, world.KindSQLite, world.KindPostgres, world.KindRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Ledger.Enabled && c.Store.Backend != world.KindSQLite && c.Store.Backend != world.KindPostgres {
		return fmt.Errorf("ledger requires a sqlite or postgres store, got %q", c.Store.Backend)
	}
	return nil
}

// BackendConfig returns the world backend settings.
func (c Config) BackendConfig() world.BackendConfig {
	return world.BackendConfig{
		Kind:        c.Store.Backend,
		SQLitePath:  c.Store.SQLitePath,
		PostgresDSN: c.Store.PostgresDSN,
		Redis: world.RedisConfig{
			Address:  c.Store.Redis.Address,
			Password: c.Store.Redis.Password,
			DB:       c.Store.Redis.DB,
			Prefix:   c.Store.Redis.Prefix,
		},
	}
}

// EnumerateOptions returns the combination selection settings.
func (c Config) EnumerateOptions() scenario.EnumerateOptions {
	return scenario.EnumerateOptions{
		IncludeEmpty: c.IncludeEmpty,
		MaxSize:      c.MaxSize,
		Require:      c.Require,
	}
}

// Actors converts the configured signers.
func (c Config) Actors() []scenario.Actor {
	out := make([]scenario.Actor, len(c.Signers))
	for i, s := range c.Signers {
		out[i] = scenario.Actor(s)
	}
	return out
}
