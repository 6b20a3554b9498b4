package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/runner"
	"kiln/internal/sandbox"
)

// Capturer drives the engine's headless capture pass and encodes the frame
// dump into a preview video. Every step is best effort: media problems are
// logged, never escalated, because a playable build without a preview still
// ships.
type Capturer struct {
	cfg    *config.Config
	runner *runner.Runner
	logger *slog.Logger
}

// NewCapturer constructs a Capturer sharing the pipeline's process runner.
func NewCapturer(cfg *config.Config, run *runner.Runner, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Capturer{
		cfg:    cfg,
		runner: run,
		logger: logging.NewComponentLogger(logger, "media"),
	}
}

// Capture runs the engine capture hook against the built project and returns
// the directory holding screenshots and frames. Returns empty string when
// capture is disabled or failed.
func (c *Capturer) Capture(ctx context.Context, jobID, projectRoot string, registerKill func(kill func())) string {
	if !c.cfg.Media.Enabled {
		return ""
	}

	captureDir := filepath.Join(projectRoot, "Capture")
	if err := os.MkdirAll(captureDir, 0o755); err != nil {
		c.logger.Warn("capture directory creation failed",
			logging.String(logging.FieldJobID, jobID), logging.Error(err))
		return ""
	}

	req := runner.Request{
		Binary: c.cfg.Engine.Binary,
		Args: []string{
			"-batchmode",
			"-projectPath", projectRoot,
			"-executeMethod", sandbox.CaptureMethod,
			"-logFile", "-",
			"-quit",
		},
		Dir: projectRoot,
		Env: append(os.Environ(),
			"KILN_CAPTURE_DIR="+captureDir,
			"KILN_FRAME_WIDTH="+strconv.Itoa(c.cfg.Media.FrameWidth),
			"KILN_FRAME_HEIGHT="+strconv.Itoa(c.cfg.Media.FrameHeight),
		),
		Timeout:      c.cfg.Engine.CaptureTimeoutDuration(),
		RegisterKill: registerKill,
	}
	if _, err := c.runner.Run(ctx, req); err != nil {
		c.logger.Warn("media capture failed, continuing without previews",
			logging.String(logging.FieldJobID, jobID), logging.Error(err))
		return ""
	}

	c.EncodeVideo(ctx, jobID, captureDir)
	return captureDir
}

// EncodeVideo turns the numbered frame dump into preview.mp4 with the
// configured encoder. Skipped when no frames were captured.
func (c *Capturer) EncodeVideo(ctx context.Context, jobID, captureDir string) {
	firstFrame := filepath.Join(captureDir, "frames", "frame_0000.png")
	if _, err := os.Stat(firstFrame); err != nil {
		c.logger.Info("no frames captured, skipping video encode",
			logging.String(logging.FieldJobID, jobID))
		return
	}

	output := filepath.Join(captureDir, "preview.mp4")
	req := runner.Request{
		Binary: c.cfg.Encoder.Binary,
		Args: []string{
			"-y",
			"-framerate", strconv.Itoa(c.cfg.Encoder.Framerate),
			"-i", filepath.Join(captureDir, "frames", "frame_%04d.png"),
			"-c:v", c.cfg.Encoder.Codec,
			"-preset", c.cfg.Encoder.Preset,
			"-crf", strconv.Itoa(c.cfg.Encoder.Quality),
			"-pix_fmt", "yuv420p",
			"-movflags", "+faststart",
			output,
		},
		Dir:     captureDir,
		Env:     os.Environ(),
		Timeout: c.cfg.Engine.CaptureTimeoutDuration(),
	}
	if _, err := c.runner.Run(ctx, req); err != nil {
		c.logger.Warn("video encode failed, continuing without preview",
			logging.String(logging.FieldJobID, jobID), logging.Error(err))
		_ = os.Remove(output)
		return
	}
	if info, err := os.Stat(output); err != nil || info.Size() == 0 {
		c.logger.Warn(fmt.Sprintf("encoder produced no usable output for job %s", jobID))
		_ = os.Remove(output)
	}
}
