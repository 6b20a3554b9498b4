package config

import "strings"

// normalize expands path fields and fills blanks with defaults so every
// consumer sees absolute paths and usable values.
func (c *Config) normalize() error {
	fields := []*string{
		&c.Paths.SandboxDir,
		&c.Paths.CacheDir,
		&c.Paths.ArtifactDir,
		&c.Paths.TemplateDir,
		&c.Paths.LogDir,
	}
	defaults := []string{
		defaultSandboxDir,
		defaultCacheDir,
		defaultArtifactDir,
		defaultTemplateDir,
		defaultLogDir,
	}
	for i, field := range fields {
		value := strings.TrimSpace(*field)
		if value == "" {
			value = defaults[i]
		}
		expanded, err := expandPath(value)
		if err != nil {
			return err
		}
		*field = expanded
	}

	if binary := strings.TrimSpace(c.Engine.Binary); binary != "" {
		expanded, err := expandPath(binary)
		if err != nil {
			return err
		}
		c.Engine.Binary = expanded
	}

	c.Encoder.Binary = strings.TrimSpace(c.Encoder.Binary)
	if c.Encoder.Binary == "" {
		c.Encoder.Binary = defaultEncoderBinary
	}
	if strings.TrimSpace(c.Encoder.Codec) == "" {
		c.Encoder.Codec = defaultEncoderCodec
	}
	if strings.TrimSpace(c.Encoder.Preset) == "" {
		c.Encoder.Preset = defaultEncoderPreset
	}
	if c.Encoder.Quality <= 0 {
		c.Encoder.Quality = defaultEncoderCRF
	}
	if c.Encoder.Framerate <= 0 {
		c.Encoder.Framerate = defaultFramerate
	}

	if strings.TrimSpace(c.Paths.APIBind) == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if c.Workflow.MaxConcurrentBuilds <= 0 {
		c.Workflow.MaxConcurrentBuilds = defaultMaxConcurrent
	}
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaultLogFormat
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}
