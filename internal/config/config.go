package config

import (
	"time"
)

// RetryBackoffMode selects the growth curve for retry delays.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// Config is the full configuration surface consumed at construction time.
// It is loaded once by the CLI and passed down; nothing in the pipeline
// reads configuration files or environment variables on its own.
type Config struct {
	SourceDir string `yaml:"source_dir"`
	OutputDir string `yaml:"output_dir"`

	Watch      WatchConfig      `yaml:"watch"`
	Generation GenerationConfig `yaml:"generation"`
	HTTP       HTTPConfig       `yaml:"http"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Events     EventsConfig     `yaml:"events"`
	EventStore EventStoreConfig `yaml:"eventstore"`
}

// WatchConfig controls change detection and debouncing.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
	// Debounce is the quiet window after the last change event for a file
	// before a regeneration is triggered.
	Debounce string `yaml:"debounce"`
	// RescanInterval is the period of the full-directory rescan that backs
	// up filesystem notifications.
	RescanInterval string   `yaml:"rescan_interval"`
	Pattern        string   `yaml:"pattern"`
	Exclude        []string `yaml:"exclude"`
	Recursive      bool     `yaml:"recursive"`
}

// GenerationConfig controls the worker pool and retry policy.
type GenerationConfig struct {
	Workers   int  `yaml:"workers"`
	QueueSize int  `yaml:"queue_size"`
	// MaxAttempts bounds total execution attempts per job, first try included.
	MaxAttempts       int              `yaml:"max_attempts"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff"`
	RetryInitialDelay string           `yaml:"retry_initial_delay"`
	RetryMaxDelay     string           `yaml:"retry_max_delay"`
	ForceOnStart      bool             `yaml:"force_on_start"`
}

// HTTPConfig controls the query/status/event HTTP surface.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EventsConfig controls the optional NATS mirror of generation events.
type EventsConfig struct {
	NATSEnabled bool   `yaml:"nats_enabled"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}

// EventStoreConfig controls the job-history SQLite log.
type EventStoreConfig struct {
	// Path of the SQLite database file. ":memory:" keeps history in memory.
	Path string `yaml:"path"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		SourceDir: "./apps",
		OutputDir: "./docs",
		Watch: WatchConfig{
			Enabled:        true,
			Debounce:       "2s",
			RescanInterval: "1m",
			Pattern:        "*.py",
			Exclude: []string{
				"const.py",
				"infra.py",
				"utils.py",
				"__init__.py",
				"apps.py",
				"configuration.py",
				"secrets.py",
			},
		},
		Generation: GenerationConfig{
			Workers:           2,
			QueueSize:         100,
			MaxAttempts:       3,
			RetryBackoff:      RetryBackoffExponential,
			RetryInitialDelay: "1s",
			RetryMaxDelay:     "30s",
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Port:    8400,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Events: EventsConfig{
			NATSSubject: "autodoc.generation",
		},
		EventStore: EventStoreConfig{
			Path: ":memory:",
		},
	}
}

// DebounceInterval returns the parsed debounce window, falling back to the
// default when unset or unparseable.
func (w WatchConfig) DebounceInterval() time.Duration {
	return parseDurationOr(w.Debounce, 2*time.Second)
}

// Rescan returns the parsed rescan period.
func (w WatchConfig) Rescan() time.Duration {
	return parseDurationOr(w.RescanInterval, time.Minute)
}

// RetryInitial returns the parsed initial retry delay.
func (g GenerationConfig) RetryInitial() time.Duration {
	return parseDurationOr(g.RetryInitialDelay, time.Second)
}

// RetryMax returns the parsed retry delay cap.
func (g GenerationConfig) RetryMax() time.Duration {
	return parseDurationOr(g.RetryMaxDelay, 30*time.Second)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
