// Package config loads threadkit settings from TOML or YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/vinayprograms/threadkit/errors"
	"github.com/vinayprograms/threadkit/logging"
)

// EnvPath names an explicit config file, checked before StandardPaths.
const EnvPath = "THREADKIT_CONFIG"

// Config is the full settings tree.
type Config struct {
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
	Spawner    SpawnerConfig    `toml:"spawner" yaml:"spawner"`
	Join       JoinConfig       `toml:"join" yaml:"join"`
	Shutdown   ShutdownConfig   `toml:"shutdown" yaml:"shutdown"`
	Introspect IntrospectConfig `toml:"introspect" yaml:"introspect"`
	NATS       NATSConfig       `toml:"nats" yaml:"nats"`
	Redis      RedisConfig      `toml:"redis" yaml:"redis"`
	Metrics    MetricsConfig    `toml:"metrics" yaml:"metrics"`
	Tracing    TracingConfig    `toml:"tracing" yaml:"tracing"`
}

type LoggingConfig struct {
	Level     string `toml:"level" yaml:"level"`
	Component string `toml:"component" yaml:"component"`
}

type SpawnerConfig struct {
	// MaxThreads caps live threads per spawner; 0 is unlimited.
	MaxThreads int `toml:"max_threads" yaml:"max_threads"`
}

type JoinConfig struct {
	DefaultTimeout string `toml:"default_timeout" yaml:"default_timeout"`
}

type ShutdownConfig struct {
	Timeout         string `toml:"timeout" yaml:"timeout"`
	ContinueOnError bool   `toml:"continue_on_error" yaml:"continue_on_error"`
}

type IntrospectConfig struct {
	// Bus selects the snapshot transport: "none", "memory", "nats" or "redis".
	Bus             string `toml:"bus" yaml:"bus"`
	PublishInterval string `toml:"publish_interval" yaml:"publish_interval"`
	SubjectPrefix   string `toml:"subject_prefix" yaml:"subject_prefix"`
	StallAfter      string `toml:"stall_after" yaml:"stall_after"`
	HTTPAddr        string `toml:"http_addr" yaml:"http_addr"`
	StreamInterval  string `toml:"stream_interval" yaml:"stream_interval"`
}

type NATSConfig struct {
	URL  string `toml:"url" yaml:"url"`
	Name string `toml:"name" yaml:"name"`
}

type RedisConfig struct {
	Addr     string `toml:"addr" yaml:"addr"`
	Password string `toml:"password" yaml:"password"`
	DB       int    `toml:"db" yaml:"db"`
}

type MetricsConfig struct {
	Enabled      bool   `toml:"enabled" yaml:"enabled"`
	Namespace    string `toml:"namespace" yaml:"namespace"`
	PollInterval string `toml:"poll_interval" yaml:"poll_interval"`
}

type TracingConfig struct {
	// Exporter is "none" or "stdout".
	Exporter    string `toml:"exporter" yaml:"exporter"`
	ServiceName string `toml:"service_name" yaml:"service_name"`
	Debug       bool   `toml:"debug" yaml:"debug"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "info", Component: "threadkit"},
		Join:     JoinConfig{DefaultTimeout: "5s"},
		Shutdown: ShutdownConfig{Timeout: "30s", ContinueOnError: true},
		Introspect: IntrospectConfig{
			Bus:             "none",
			PublishInterval: "5s",
			SubjectPrefix:   "threads.snapshot.",
			StallAfter:      "1m",
			HTTPAddr:        ":8089",
			StreamInterval:  "1s",
		},
		NATS:    NATSConfig{URL: "nats://127.0.0.1:4222", Name: "threadkit"},
		Redis:   RedisConfig{Addr: "127.0.0.1:6379"},
		Metrics: MetricsConfig{Enabled: true, Namespace: "threadkit", PollInterval: "5s"},
		Tracing: TracingConfig{Exporter: "none", ServiceName: "threadkit"},
	}
}

// StandardPaths returns the config file locations in order of priority.
func StandardPaths() []string {
	var paths []string
	if p := os.Getenv(EnvPath); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, "threadkit.toml", "threadkit.yaml")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "threadkit", "threadkit.toml"))
	}
	return paths
}

// Load reads path, or the first existing StandardPaths entry when path is
// empty. A missing file is not an error: defaults are returned along with
// the path that was used, which is empty when none was found.
func Load(path string) (*Config, string, error) {
	candidates := []string{path}
	if path == "" {
		candidates = StandardPaths()
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			cfg, err := LoadFile(p)
			return cfg, p, err
		}
	}
	return Default(), "", nil
}

// LoadFile decodes a TOML or YAML file (by extension) over the defaults and
// validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "parse yaml config "+path)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "parse toml config "+path)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerations and duration strings.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, errors.InvalidInput("logging.level: "+err.Error()))
	}
	if c.Spawner.MaxThreads < 0 {
		errs = append(errs, errors.InvalidInput("spawner.max_threads must not be negative"))
	}

	durations := map[string]string{
		"join.default_timeout":        c.Join.DefaultTimeout,
		"shutdown.timeout":            c.Shutdown.Timeout,
		"introspect.publish_interval": c.Introspect.PublishInterval,
		"introspect.stall_after":      c.Introspect.StallAfter,
		"introspect.stream_interval":  c.Introspect.StreamInterval,
		"metrics.poll_interval":       c.Metrics.PollInterval,
	}
	for key, v := range durations {
		if _, err := parseDuration(v); err != nil {
			errs = append(errs, errors.InvalidInput(fmt.Sprintf("%s: %v", key, err)))
		}
	}

	switch c.Introspect.Bus {
	case "", "none", "memory", "nats", "redis":
	default:
		errs = append(errs, errors.InvalidInput("introspect.bus: unknown bus "+c.Introspect.Bus))
	}
	switch c.Tracing.Exporter {
	case "", "none", "stdout":
	default:
		errs = append(errs, errors.InvalidInput("tracing.exporter: unknown exporter "+c.Tracing.Exporter))
	}

	return errors.Join(errs...)
}

func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", v)
	}
	return d, nil
}

// Duration parses a validated duration string; empty or invalid yields 0.
func Duration(v string) time.Duration {
	d, _ := parseDuration(v)
	return d
}

// JoinTimeout returns join.default_timeout.
func (c *Config) JoinTimeout() time.Duration { return Duration(c.Join.DefaultTimeout) }

// ShutdownTimeout returns shutdown.timeout.
func (c *Config) ShutdownTimeout() time.Duration { return Duration(c.Shutdown.Timeout) }

// LogLevel returns the parsed logging level, INFO when invalid.
func (c *Config) LogLevel() logging.Level {
	lvl, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.LevelInfo
	}
	return lvl
}
