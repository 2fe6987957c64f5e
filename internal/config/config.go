// Package config loads zmin configuration from YAML.
//
// A file may set any subset of fields; the rest keep their defaults.
// Unknown keys are rejected so typos surface at startup.
//
//	mode: turbo
//	adapt_every: 128
//	router:
//	  exploration_rate: 0
//	tier:
//	  latency_budget: 20ms
//	log:
//	  enabled: true
//	  level: debug
//	snapshot:
//	  path: /var/lib/zmin/state.zms
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joshuapare/zmin/adapt"
	"github.com/joshuapare/zmin/internal/logger"
)

// EnvPath names the environment variable holding a config file path.
const EnvPath = "ZMIN_CONFIG"

// Log configures the process logger.
type Log struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	JSON    bool   `yaml:"json"`
}

// Snapshot configures warm-start persistence. An empty Path disables it.
type Snapshot struct {
	Path string `yaml:"path"`
	// SaveOnClose writes the learned state when the minifier closes.
	SaveOnClose bool `yaml:"save_on_close"`
}

// Config is the full file format.
type Config struct {
	adapt.Config `yaml:",inline"`

	Log      Log      `yaml:"log"`
	Snapshot Snapshot `yaml:"snapshot"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Config:   adapt.DefaultConfig(),
		Log:      Log{Level: "info"},
		Snapshot: Snapshot{SaveOnClose: true},
	}
}

// Decode reads YAML from r over the defaults.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Decode(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv loads the file named by ZMIN_CONFIG, or the defaults when it is
// unset.
func FromEnv() (Config, error) {
	if path := os.Getenv(EnvPath); path != "" {
		return Load(path)
	}
	return Default(), nil
}

// Validate checks the engine sections and the log level.
func (c Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// LoggerOptions converts the log section. It assumes Validate passed.
func (c Config) LoggerOptions(w io.Writer) logger.Options {
	level, _ := logger.ParseLevel(c.Log.Level)
	return logger.Options{Enabled: c.Log.Enabled, Level: level, Writer: w, JSON: c.Log.JSON}
}

// Encode writes c as YAML.
func (c Config) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
