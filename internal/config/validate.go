package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.BuildTimeout <= 0 {
		return errors.New("engine.build_timeout must be positive")
	}
	if c.Engine.CaptureTimeout <= 0 {
		return errors.New("engine.capture_timeout must be positive")
	}
	if strings.TrimSpace(c.Engine.RuntimeVersion) == "" {
		return errors.New("engine.runtime_version must be set")
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if c.Encoder.Quality < 0 || c.Encoder.Quality > 51 {
		return fmt.Errorf("encoder.quality must be between 0 and 51, got %d", c.Encoder.Quality)
	}
	if c.Encoder.Framerate <= 0 || c.Encoder.Framerate > 120 {
		return fmt.Errorf("encoder.framerate must be between 1 and 120, got %d", c.Encoder.Framerate)
	}
	return nil
}

func (c *Config) validateMedia() error {
	if !c.Media.Enabled {
		return nil
	}
	if c.Media.Screenshots < 0 || c.Media.Screenshots > 10 {
		return errors.New("media.screenshots must be between 0 and 10")
	}
	if c.Media.FrameCount < 0 {
		return errors.New("media.frame_count must not be negative")
	}
	if c.Media.FrameWidth <= 0 || c.Media.FrameHeight <= 0 {
		return errors.New("media.frame_width and media.frame_height must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxConcurrentBuilds <= 0 {
		return errors.New("workflow.max_concurrent_builds must be positive")
	}
	return nil
}
