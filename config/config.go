// Package config loads race settings from defaults, an optional YAML file
// and BLOCKRACE_* environment variables, in that order of precedence.
// Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/mjpowersjr/block-hash-experiments/constants"
	"github.com/mjpowersjr/block-hash-experiments/pace"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "BLOCKRACE_"

// Config holds everything a race run can be tuned with.
type Config struct {
	RPCURL           string        `yaml:"rpc_url" env:"RPC_URL"`
	WSURL            string        `yaml:"ws_url" env:"WS_URL"`
	Horses           int           `yaml:"horses" env:"HORSES"`
	Distance         float64       `yaml:"distance" env:"DISTANCE"`
	ChunkBytes       int           `yaml:"chunk_bytes" env:"CHUNK_BYTES"`
	PaceModulus      int           `yaml:"pace_modulus" env:"PACE_MODULUS"`
	PollDelay        time.Duration `yaml:"poll_delay" env:"POLL_DELAY"`
	HeadPollInterval time.Duration `yaml:"head_poll_interval" env:"HEAD_POLL_INTERVAL"`
	RequestTimeout   time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	LogLevel         string        `yaml:"log_level" env:"LOG_LEVEL"`
	Journal          string        `yaml:"journal" env:"JOURNAL"`
	Start            string        `yaml:"start" env:"START"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		RPCURL:           constants.RPCURL,
		WSURL:            constants.WSURL,
		Horses:           constants.Horses,
		Distance:         constants.TotalDistance,
		ChunkBytes:       constants.ChunkBytes,
		PaceModulus:      constants.PaceModulus,
		PollDelay:        constants.CatchUpDelay,
		HeadPollInterval: constants.HeadPollInterval,
		RequestTimeout:   constants.RequestTimeout,
		LogLevel:         "warn",
		Start:            "latest",
	}
}

// Load builds a config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadFromFile reads a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "disabled": true,
}

// Validate checks that the configuration describes a runnable race.
func (c *Config) Validate() error {
	var errs []error
	if c.RPCURL == "" {
		errs = append(errs, errors.New("rpc_url must not be empty"))
	}
	if c.Horses < 1 {
		errs = append(errs, fmt.Errorf("horses must be at least 1, got %d", c.Horses))
	}
	if !(c.Distance > 0) {
		errs = append(errs, fmt.Errorf("distance must be positive, got %v", c.Distance))
	}
	if c.ChunkBytes < 1 || c.ChunkBytes > constants.MaxChunkBytes {
		errs = append(errs, fmt.Errorf("chunk_bytes must be between 1 and %d, got %d", constants.MaxChunkBytes, c.ChunkBytes))
	}
	if c.PaceModulus < 1 {
		errs = append(errs, fmt.Errorf("pace_modulus must be at least 1, got %d", c.PaceModulus))
	}
	if c.PollDelay < 0 {
		errs = append(errs, fmt.Errorf("poll_delay must be non-negative, got %v", c.PollDelay))
	}
	if c.HeadPollInterval < 0 {
		errs = append(errs, fmt.Errorf("head_poll_interval must be non-negative, got %v", c.HeadPollInterval))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be non-negative, got %v", c.RequestTimeout))
	}
	if c.LogLevel != "" && !validLevels[c.LogLevel] {
		errs = append(errs, fmt.Errorf("invalid log level: %s", c.LogLevel))
	}
	return errors.Join(errs...)
}

// PaceOptions returns the pace derivation settings.
func (c *Config) PaceOptions() pace.Options {
	return pace.Options{ChunkBytes: c.ChunkBytes, Modulus: c.PaceModulus}
}

// RequiredHashBytes is the hash length a block needs to feed every horse.
func (c *Config) RequiredHashBytes() int {
	return c.Horses * c.ChunkBytes
}
