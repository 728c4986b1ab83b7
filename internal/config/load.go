package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
)

// Load reads a YAML configuration file, layers environment overrides on top,
// and validates the result. A missing file is not an error: defaults plus
// environment are used, matching the container deployment where everything
// is injected via env.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overrides
		case err != nil:
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "read config file").
				WithContext("path", path).Build()
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "parse config file").
					WithContext("path", path).Build()
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write serializes the configuration to a YAML file. Used by `autodoc init`.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "serialize config").Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "write config file").
			WithContext("path", path).Build()
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("AUTODOC_SOURCE_DIR", &cfg.SourceDir)
	setString("AUTODOC_OUTPUT_DIR", &cfg.OutputDir)
	setString("AUTODOC_DEBOUNCE", &cfg.Watch.Debounce)
	setString("AUTODOC_RESCAN_INTERVAL", &cfg.Watch.RescanInterval)
	setBool("AUTODOC_WATCH_ENABLED", &cfg.Watch.Enabled)
	setBool("AUTODOC_RECURSIVE_SCAN", &cfg.Watch.Recursive)
	setInt("AUTODOC_WORKERS", &cfg.Generation.Workers)
	setInt("AUTODOC_MAX_ATTEMPTS", &cfg.Generation.MaxAttempts)
	setBool("AUTODOC_FORCE_ON_START", &cfg.Generation.ForceOnStart)
	setInt("AUTODOC_HTTP_PORT", &cfg.HTTP.Port)
	setBool("AUTODOC_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setBool("AUTODOC_NATS_ENABLED", &cfg.Events.NATSEnabled)
	setString("AUTODOC_NATS_URL", &cfg.Events.NATSURL)
	setString("AUTODOC_NATS_SUBJECT", &cfg.Events.NATSSubject)
	setString("AUTODOC_EVENTSTORE_PATH", &cfg.EventStore.Path)
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behavior. Directory existence is deliberately not checked here:
// the daemon reports an unreadable source directory through health status.
func (c *Config) Validate() error {
	if c.SourceDir == "" {
		return ferrors.ConfigError("source_dir must be set").Build()
	}
	if c.OutputDir == "" {
		return ferrors.ConfigError("output_dir must be set").Build()
	}
	if c.Generation.Workers <= 0 {
		return ferrors.ConfigError("generation.workers must be > 0").
			WithContext("workers", c.Generation.Workers).Build()
	}
	if c.Generation.MaxAttempts <= 0 {
		return ferrors.ConfigError("generation.max_attempts must be > 0").
			WithContext("max_attempts", c.Generation.MaxAttempts).Build()
	}
	if c.Watch.Pattern == "" {
		return ferrors.ConfigError("watch.pattern must be set").Build()
	}
	for _, field := range []struct {
		name, raw string
	}{
		{"watch.debounce", c.Watch.Debounce},
		{"watch.rescan_interval", c.Watch.RescanInterval},
		{"generation.retry_initial_delay", c.Generation.RetryInitialDelay},
		{"generation.retry_max_delay", c.Generation.RetryMaxDelay},
	} {
		if field.raw == "" {
			continue
		}
		if _, err := time.ParseDuration(field.raw); err != nil {
			return ferrors.ConfigError(fmt.Sprintf("%s is not a valid duration", field.name)).
				WithContext("value", field.raw).Build()
		}
	}
	switch c.Generation.RetryBackoff {
	case "", RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential:
	default:
		return ferrors.ConfigError("generation.retry_backoff must be fixed, linear or exponential").
			WithContext("value", string(c.Generation.RetryBackoff)).Build()
	}
	if c.Events.NATSEnabled && c.Events.NATSURL == "" {
		return ferrors.ConfigError("events.nats_url must be set when events.nats_enabled is true").Build()
	}
	return nil
}
