package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2*time.Second, cfg.Watch.DebounceInterval())
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.Contains(t, cfg.Watch.Exclude, "__init__.py")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Watch.Pattern, cfg.Watch.Pattern)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
source_dir: /srv/apps
watch:
  debounce: 500ms
generation:
  workers: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("AUTODOC_OUTPUT_DIR", "/srv/docs")
	t.Setenv("AUTODOC_MAX_ATTEMPTS", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/apps", cfg.SourceDir)
	assert.Equal(t, "/srv/docs", cfg.OutputDir)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.DebounceInterval())
	assert.Equal(t, 4, cfg.Generation.Workers)
	assert.Equal(t, 5, cfg.Generation.MaxAttempts)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no source dir", func(c *Config) { c.SourceDir = "" }},
		{"zero workers", func(c *Config) { c.Generation.Workers = 0 }},
		{"zero attempts", func(c *Config) { c.Generation.MaxAttempts = 0 }},
		{"bad debounce", func(c *Config) { c.Watch.Debounce = "soon" }},
		{"bad backoff", func(c *Config) { c.Generation.RetryBackoff = "random" }},
		{"nats without url", func(c *Config) { c.Events.NATSEnabled = true; c.Events.NATSURL = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, ferrors.CategoryConfig, ferrors.CategoryOf(err))
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	w := WatchConfig{Debounce: "not-a-duration"}
	assert.Equal(t, 2*time.Second, w.DebounceInterval())
	g := GenerationConfig{}
	assert.Equal(t, time.Second, g.RetryInitial())
	assert.Equal(t, 30*time.Second, g.RetryMax())
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.SourceDir = "/data/apps"
	require.NoError(t, Write(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/apps", loaded.SourceDir)
}
