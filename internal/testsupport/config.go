package testsupport

import (
	"path/filepath"
	"testing"

	"kiln/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.SandboxDir = filepath.Join(base, "sandboxes")
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.ArtifactDir = filepath.Join(base, "artifacts")
	cfg.Paths.TemplateDir = filepath.Join(base, "templates")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Engine.Binary = filepath.Join(base, "bin", "engine")

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithEngineBinary overrides the engine executable path on the test config.
func WithEngineBinary(path string) ConfigOption {
	return func(c *config.Config) {
		c.Engine.Binary = path
	}
}

// WithEncoderBinary overrides the encoder executable path on the test config.
func WithEncoderBinary(path string) ConfigOption {
	return func(c *config.Config) {
		c.Encoder.Binary = path
	}
}

// WithMediaDisabled turns the capture pass off.
func WithMediaDisabled() ConfigOption {
	return func(c *config.Config) {
		c.Media.Enabled = false
	}
}
