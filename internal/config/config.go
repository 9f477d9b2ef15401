// Package config holds the build-time settings shared by every board variant.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// HeapSize is the heap budget in bytes.
	HeapSize int           `yaml:"heap_size"`
	LogLevel zapcore.Level `yaml:"log_level"`

	SettleDelay   time.Duration `yaml:"settle_delay"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	BlinkInterval time.Duration `yaml:"blink_interval"`

	Method string `yaml:"method"`
	Target string `yaml:"target"`
	// RequestTimeout bounds the single request; zero means unbounded.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func Default() Config {
	return Config{
		HeapSize:      60 * 1024,
		LogLevel:      zapcore.InfoLevel,
		SettleDelay:   5000 * time.Millisecond,
		PollInterval:  500 * time.Millisecond,
		BlinkInterval: 600 * time.Millisecond,
		Method:        http.MethodGet,
		Target:        "http://www.example.com/",
	}
}

// Load parses YAML over the defaults. Unknown keys are an error.
func Load(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.HeapSize <= 0 {
		errs = append(errs, fmt.Errorf("heap_size must be positive, got %d", c.HeapSize))
	}
	if c.LogLevel < zapcore.DebugLevel || c.LogLevel > zapcore.FatalLevel {
		errs = append(errs, fmt.Errorf("log_level %q is not supported", c.LogLevel))
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"settle_delay", c.SettleDelay},
		{"poll_interval", c.PollInterval},
		{"blink_interval", c.BlinkInterval},
	} {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, d.v))
		}
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout))
	}
	if c.Method == "" {
		errs = append(errs, errors.New("method is required"))
	}
	if c.Target == "" {
		errs = append(errs, errors.New("target is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
