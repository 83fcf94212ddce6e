package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application config.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Importer ImporterConfig `koanf:"importer"`
	Markets  MarketsConfig  `koanf:"markets"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// ImporterConfig controls the ledger pull loop. SourceURL is the upstream
// JSON-RPC endpoint; an empty URL disables the importer and leaves only the
// push ingestion path.
type ImporterConfig struct {
	Enabled       bool   `koanf:"enabled"`
	SourceURL     string `koanf:"source_url"`
	SourceTimeout string `koanf:"source_timeout"`
	PollInterval  string `koanf:"poll_interval"`
	StartSequence uint32 `koanf:"start_sequence"`
	BatchSize     int    `koanf:"batch_size"`
	WorkerCount   int    `koanf:"worker_count"`
	RetryAttempts int    `koanf:"retry_attempts"`
	RetryBackoff  string `koanf:"retry_backoff"`
}

// MarketsConfig points at the tracked asset-pair registry. An empty or
// missing directory tracks everything.
type MarketsConfig struct {
	ConfigDir string `koanf:"config_dir"`
}

// durationField parses a config duration, mapping empty to the fallback.
func durationField(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be > 0", name)
	}
	return d, nil
}

func (c ImporterConfig) EffectivePollInterval() (time.Duration, error) {
	return durationField("importer.poll_interval", c.PollInterval, 30*time.Second)
}

func (c ImporterConfig) EffectiveSourceTimeout() (time.Duration, error) {
	return durationField("importer.source_timeout", c.SourceTimeout, 20*time.Second)
}

func (c ImporterConfig) EffectiveRetryBackoff() (time.Duration, error) {
	return durationField("importer.retry_backoff", c.RetryBackoff, 500*time.Millisecond)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}
	if c.Database.Type != "" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	if c.Importer.Enabled {
		if strings.TrimSpace(c.Importer.SourceURL) == "" {
			return fmt.Errorf("importer.source_url is required when the importer is enabled")
		}
		if c.Importer.BatchSize <= 0 {
			return fmt.Errorf("importer.batch_size must be > 0")
		}
		if c.Importer.WorkerCount <= 0 {
			return fmt.Errorf("importer.worker_count must be > 0")
		}
		if c.Importer.RetryAttempts <= 0 {
			return fmt.Errorf("importer.retry_attempts must be > 0")
		}
		if _, err := c.Importer.EffectivePollInterval(); err != nil {
			return err
		}
		if _, err := c.Importer.EffectiveSourceTimeout(); err != nil {
			return err
		}
		if _, err := c.Importer.EffectiveRetryBackoff(); err != nil {
			return err
		}
	}

	return nil
}

// Load parses config from file + env and validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.max_body_size_mb": 8,
		"server.mode":             "release",
		"database.type":           "postgres",
		"database.dsn":            "",
		"database.max_open_conns": 25,
		"database.max_idle_conns": 25,
		"database.auto_migrate":   true,
		"importer.enabled":        true,
		"importer.source_url":     "",
		"importer.source_timeout": "20s",
		"importer.poll_interval":  "30s",
		"importer.start_sequence": 0,
		"importer.batch_size":     64,
		"importer.worker_count":   8,
		"importer.retry_attempts": 5,
		"importer.retry_backoff":  "500ms",
		"markets.config_dir":      "./config/markets",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("LEDGERSTATS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "LEDGERSTATS_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
