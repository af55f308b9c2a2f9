// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package config loads the configuration of a Fibre server from a YAML file.
//
// A configuration is read from a single explicit path. Fields omitted from the
// file keep their default values (see [Default]), and unknown fields are
// reported as errors.
//
// An example configuration:
//
//	listen: localhost:7070
//	max_payload: 1048576
//	max_input: 4194304
//	max_result: 65536
//	chunk_size: 4096
//	log:
//	  level: debug
//	  development: true
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/creachadair/fibre"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of a Fibre server.
type Config struct {
	// Listen is the address the server listens on. An address of the form
	// host:port is TCP, anything else is a Unix-domain socket path.
	// See [fibre.SplitAddress].
	Listen string `yaml:"listen"`

	// MaxPayload is the largest frame payload, in bytes, accepted from a peer.
	MaxPayload int `yaml:"max_payload"`

	// MaxInput is the largest total size, in bytes, of the encoded inputs of
	// one call, which may arrive over several frames. If zero, MaxPayload is
	// used.
	MaxInput int `yaml:"max_input"`

	// MaxResult is the largest encoded result, in bytes, an endpoint may
	// produce. Larger results fail with an encoding error. If zero, the
	// largest result that fits in a frame of MaxPayload bytes is used.
	MaxResult int `yaml:"max_result"`

	// ChunkSize, if positive, splits outbound call inputs into frames of at
	// most this many bytes.
	ChunkSize int `yaml:"chunk_size"`

	// Log configures the server logger.
	Log LogConfig `yaml:"log"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum level logged: debug, info, warn, or error.
	Level string `yaml:"level"`

	// Development selects human-readable console output instead of JSON.
	Development bool `yaml:"development"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen:     "localhost:7070",
		MaxPayload: fibre.MaxPayload,
		Log:        LogConfig{Level: "info"},
	}
}

// Load reads the configuration file at path, applies defaults for omitted
// fields, and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse reads a configuration in YAML format from r, applies defaults for
// omitted fields, and validates the result. An empty input yields the default
// configuration.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if cfg.MaxInput == 0 {
		cfg.MaxInput = cfg.MaxPayload
	}
	if cfg.MaxResult == 0 && cfg.MaxPayload > resultHeader {
		cfg.MaxResult = cfg.MaxPayload - resultHeader
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resultHeader is the size of the call ID and code at the front of a result
// frame payload.
const resultHeader = 5

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.MaxPayload <= 0 {
		errs = append(errs, fmt.Errorf("max_payload must be positive, got %d", c.MaxPayload))
	} else if c.MaxPayload > fibre.MaxPayload {
		errs = append(errs, fmt.Errorf("max_payload %d exceeds the limit of %d", c.MaxPayload, fibre.MaxPayload))
	}
	if c.MaxInput < 0 {
		errs = append(errs, fmt.Errorf("max_input must not be negative, got %d", c.MaxInput))
	}
	if c.MaxResult < 0 {
		errs = append(errs, fmt.Errorf("max_result must not be negative, got %d", c.MaxResult))
	} else if c.MaxPayload > 0 && c.MaxResult > c.MaxPayload-resultHeader {
		errs = append(errs, fmt.Errorf("max_result %d does not fit in max_payload %d", c.MaxResult, c.MaxPayload))
	}
	if c.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("chunk_size must not be negative, got %d", c.ChunkSize))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Configure applies the node settings of c to n, and returns n.
func (c *Config) Configure(n *fibre.Node) *fibre.Node {
	return n.SetChunkSize(c.ChunkSize).SetMaxInput(c.MaxInput).SetMaxResult(c.MaxResult)
}

func (l LogConfig) level() (zapcore.Level, error) {
	if l.Level == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return lvl, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

// NewLogger constructs a logger as described by l.
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
