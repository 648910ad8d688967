// config.go: Command configuration loaded from YAML and NEBULA_* environment variables.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sirupsen/logrus"

	"github.com/agilira/nebula"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "NEBULA_CONFIG"

// Config is the command configuration.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Cipher CipherConfig `yaml:"cipher"`
	Pool   PoolConfig   `yaml:"pool"`

	// Password is only read from the environment.
	Password string `yaml:"-" env:"NEBULA_PASSWORD"`
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string `yaml:"level" env:"NEBULA_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"NEBULA_LOG_FORMAT" env-default:"text"`
}

// CipherConfig mirrors the library cipher options.
type CipherConfig struct {
	// Salt replaces the host salt when set.
	Salt       string `yaml:"salt" env:"NEBULA_SALT"`
	Iterations int    `yaml:"iterations" env:"NEBULA_ITERATIONS" env-default:"1000"`
	Schedule   string `yaml:"schedule" env:"NEBULA_SCHEDULE" env-default:"keyed"`
	PRF        string `yaml:"prf" env:"NEBULA_PRF" env-default:"blake3"`
	Padding    bool   `yaml:"padding" env:"NEBULA_PADDING" env-default:"false"`
	ChunkSize  int    `yaml:"chunk_size" env:"NEBULA_CHUNK_SIZE" env-default:"65536"`
}

// PoolConfig mirrors the library pool policy.
type PoolConfig struct {
	MaxPoolSize       int           `yaml:"max_pool_size" env:"NEBULA_POOL_MAX_SIZE" env-default:"1024"`
	ReseedThreshold   int           `yaml:"reseed_threshold" env:"NEBULA_POOL_RESEED_THRESHOLD" env-default:"512"`
	MaxReseedInterval time.Duration `yaml:"max_reseed_interval" env:"NEBULA_POOL_RESEED_INTERVAL" env-default:"60s"`
}

// Load reads path, or the file named by NEBULA_CONFIG when path is empty.
// Without a file only the environment and defaults are used. Environment
// variables override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(PathEnv)
	}

	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, goerrors.Wrap(err, "CONFIG_ENV_ERROR", "cannot read configuration from environment")
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, goerrors.Wrap(err, "CONFIG_NOT_FOUND", fmt.Sprintf("config file %s is not readable", path))
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, goerrors.Wrap(err, "CONFIG_PARSE_ERROR", fmt.Sprintf("cannot load config file %s", path))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Cipher.Iterations < 1 {
		return goerrors.New("CONFIG_INVALID", fmt.Sprintf("cipher.iterations must be positive, got %d", c.Cipher.Iterations))
	}
	if c.Cipher.ChunkSize < 1 {
		return goerrors.New("CONFIG_INVALID", fmt.Sprintf("cipher.chunk_size must be positive, got %d", c.Cipher.ChunkSize))
	}
	if c.Pool.MaxPoolSize < nebula.PRFSize {
		return goerrors.New("CONFIG_INVALID", fmt.Sprintf("pool.max_pool_size must be at least %d, got %d", nebula.PRFSize, c.Pool.MaxPoolSize))
	}
	if c.Pool.ReseedThreshold < 1 {
		return goerrors.New("CONFIG_INVALID", "pool.reseed_threshold must be positive")
	}
	if c.Pool.MaxReseedInterval <= 0 {
		return goerrors.New("CONFIG_INVALID", "pool.max_reseed_interval must be positive")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return goerrors.New("CONFIG_INVALID", fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return goerrors.Wrap(err, "CONFIG_INVALID", "invalid log.level")
	}
	return nil
}

// NewLogger builds a logrus logger from the log section.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
