package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	SandboxDir  string `toml:"sandbox_dir"`
	CacheDir    string `toml:"cache_dir"`
	ArtifactDir string `toml:"artifact_dir"`
	TemplateDir string `toml:"template_dir"`
	LogDir      string `toml:"log_dir"`
	APIBind     string `toml:"api_bind"`
}

// Engine contains configuration for the batch-mode engine compiler.
type Engine struct {
	Binary         string `toml:"binary"`
	BuildTimeout   int    `toml:"build_timeout"`
	CaptureTimeout int    `toml:"capture_timeout"`
	RuntimeVersion string `toml:"runtime_version"`
}

// BuildTimeoutDuration returns the build timeout as a duration.
func (e Engine) BuildTimeoutDuration() time.Duration {
	return time.Duration(e.BuildTimeout) * time.Second
}

// CaptureTimeoutDuration returns the capture timeout as a duration.
func (e Engine) CaptureTimeoutDuration() time.Duration {
	return time.Duration(e.CaptureTimeout) * time.Second
}

// Encoder contains configuration for the frame-sequence video encoder.
type Encoder struct {
	Binary    string `toml:"binary"`
	Codec     string `toml:"codec"`
	Preset    string `toml:"preset"`
	Quality   int    `toml:"quality"`
	Framerate int    `toml:"framerate"`
}

// Media contains configuration for the capture pass.
type Media struct {
	Enabled     bool `toml:"enabled"`
	Screenshots int  `toml:"screenshots"`
	FrameCount  int  `toml:"frame_count"`
	FrameWidth  int  `toml:"frame_width"`
	FrameHeight int  `toml:"frame_height"`
}

// Draft contains connection settings for the draft generator model.
type Draft struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Workflow contains daemon scheduling configuration.
type Workflow struct {
	MaxConcurrentBuilds int `toml:"max_concurrent_builds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for kiln.
//
// Configuration sections by subsystem:
//   - Paths: working directories and API bind address
//   - Engine: batch-mode compiler binary, timeouts, runtime package pin
//   - Encoder: video encoder binary and encoding parameters
//   - Media: capture pass toggles and frame geometry
//   - Draft: draft generator model connection settings
//   - Workflow: build concurrency
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Engine   Engine   `toml:"engine"`
	Encoder  Encoder  `toml:"encoder"`
	Media    Media    `toml:"media"`
	Draft    Draft    `toml:"draft"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/kiln/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("kiln.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.SandboxDir, c.Paths.CacheDir, c.Paths.ArtifactDir, c.Paths.TemplateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
