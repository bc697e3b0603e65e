// Package config loads the example server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Durations are written as strings
// such as "5s" in the file.
type Config struct {
	Addr        string   `yaml:"addr"`
	Workers     int      `yaml:"workers"`
	Root        string   `yaml:"root"`
	DBPath      string   `yaml:"db_path"`
	MetricsAddr string   `yaml:"metrics_addr"`
	MaxRequests int      `yaml:"max_requests"`
	ReadTimeout Duration `yaml:"read_timeout"`
	SleepDelay  Duration `yaml:"sleep_delay"`
	LogLevel    string   `yaml:"log_level"`
}

// Duration is a time.Duration that unmarshals from a YAML string.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Addr:        "127.0.0.1:7878",
		Workers:     4,
		Root:        "public",
		DBPath:      "",
		MetricsAddr: "",
		MaxRequests: 0,
		ReadTimeout: Duration(5 * time.Second),
		SleepDelay:  Duration(5 * time.Second),
		LogLevel:    "info",
	}
}

// Load reads the YAML file at path on top of the defaults
func Load(path string) (Config, error) {
	cfg := Default()

	// #nosec G304 -- the path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate reports every invalid field at once
func (c Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be greater than zero, got %d", c.Workers))
	}
	if c.Root == "" {
		errs = append(errs, errors.New("root is required"))
	}
	if c.MaxRequests < 0 {
		errs = append(errs, fmt.Errorf("max_requests must not be negative, got %d", c.MaxRequests))
	}
	if c.ReadTimeout < 0 {
		errs = append(errs, errors.New("read_timeout must not be negative"))
	}
	if c.SleepDelay < 0 {
		errs = append(errs, errors.New("sleep_delay must not be negative"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a log_level value to a slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
