// Package config loads daemon settings from defaults, an optional YAML file and KEYSWITCH_* variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "KEYSWITCH_"

type Server struct {
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
}

type Store struct {
	Driver  string `yaml:"driver"`
	URL     string `yaml:"url"`
	Key     string `yaml:"key"`
	DataDir string `yaml:"data_dir"`
}

type Keys struct {
	// Prefix names the per-slot variables: <Prefix>_<index>.
	Prefix   string `yaml:"prefix"`
	Timezone string `yaml:"timezone"`
	Provider string `yaml:"provider"`
	// AWSRegion and AWSSecret locate the JSON secret for the aws provider.
	AWSRegion string `yaml:"aws_region"`
	AWSSecret string `yaml:"aws_secret"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type Config struct {
	Server    Server    `yaml:"server"`
	Store     Store     `yaml:"store"`
	Keys      Keys      `yaml:"keys"`
	Log       Log       `yaml:"log"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server:    Server{Addr: ":5000", Metrics: true},
		Store:     Store{Driver: "memory", DataDir: "./data"},
		Keys:      Keys{Prefix: "OPENAIKEY", Timezone: "Local", Provider: "env"},
		Log:       Log{Level: "info", Format: "console"},
		RateLimit: RateLimit{RPS: 5, Burst: 10},
	}
}

// Load applies, in order: defaults, the YAML file at path (skipped when path is empty),
// then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("HTTP_ADDR", &cfg.Server.Addr)
	str("STORE_DRIVER", &cfg.Store.Driver)
	str("STORE_URL", &cfg.Store.URL)
	str("STORE_KEY", &cfg.Store.Key)
	str("DATA_DIR", &cfg.Store.DataDir)
	str("KEY_PREFIX", &cfg.Keys.Prefix)
	str("TIMEZONE", &cfg.Keys.Timezone)
	str("SECRETS_PROVIDER", &cfg.Keys.Provider)
	str("AWS_REGION", &cfg.Keys.AWSRegion)
	str("AWS_SECRET_NAME", &cfg.Keys.AWSSecret)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("LOG_FILE", &cfg.Log.File)

	var errs []error
	if v, ok := os.LookupEnv(EnvPrefix + "METRICS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMETRICS: %w", EnvPrefix, err))
		}
		cfg.Server.Metrics = b
	}
	if v, ok := os.LookupEnv(EnvPrefix + "RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_LIMIT_RPS: %w", EnvPrefix, err))
		}
		cfg.RateLimit.RPS = f
	}
	if v, ok := os.LookupEnv(EnvPrefix + "RATE_LIMIT_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_LIMIT_BURST: %w", EnvPrefix, err))
		}
		cfg.RateLimit.Burst = n
	}
	return errors.Join(errs...)
}

// Validate rejects settings the daemon cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres", "redis":
		if c.Store.URL == "" {
			return fmt.Errorf("store driver %s requires %sSTORE_URL", c.Store.Driver, EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Keys.Provider {
	case "env":
		if strings.TrimSpace(c.Keys.Prefix) == "" {
			return fmt.Errorf("key prefix must not be empty")
		}
	case "aws":
		if c.Keys.AWSRegion == "" || c.Keys.AWSSecret == "" {
			return fmt.Errorf("aws secrets provider requires region and secret name")
		}
	default:
		return fmt.Errorf("unknown secrets provider %q", c.Keys.Provider)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the schedule timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Keys.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(c.Keys.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", c.Keys.Timezone, err)
		}
		return loc, nil
	}
}
