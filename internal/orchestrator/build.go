package orchestrator

import (
	"context"
	"errors"
	"os"
	"time"

	"kiln/internal/buildcache"
	"kiln/internal/jobs"
	"kiln/internal/logging"
	"kiln/internal/overrides"
	"kiln/internal/runner"
	"kiln/internal/sandbox"
	"kiln/internal/services"
)

// Pipeline step names, used as timing keys and metric labels.
const (
	stepPrepare = "prepare"
	stepRestore = "cache_restore"
	stepBuild   = "build"
	stepCapture = "capture"
	stepPublish = "publish"
	stepSave    = "cache_save"
)

// runBuild drives one job through the pipeline. It owns the job's state
// transitions from running to a terminal status.
func (m *Manager) runBuild(jobID string) {
	ctx, cancel := context.WithCancel(m.baseCtx)
	defer cancel()

	job, err := m.store.GetByID(ctx, jobID)
	if err != nil || job == nil {
		m.logger.Error("could not load dispatched job",
			logging.String(logging.FieldJobID, jobID), logging.Error(err))
		return
	}
	if job.Status != jobs.StatusQueued {
		// Canceled while waiting for a build slot.
		return
	}

	if !m.registry.Register(jobID, cancel) {
		m.logger.Warn("job already executing", logging.String(logging.FieldJobID, jobID))
		return
	}
	defer m.registry.Unregister(jobID)

	now := time.Now().UTC()
	job.Status = jobs.StatusRunning
	job.StartedAt = &now
	job.ErrorMessage = ""
	if err := m.store.Update(ctx, job); err != nil {
		m.logger.Error("could not mark job running",
			logging.String(logging.FieldJobID, jobID), logging.Error(err))
		return
	}

	if m.metrics != nil {
		m.metrics.ActiveBuilds.Inc()
		defer m.metrics.ActiveBuilds.Dec()
	}

	start := time.Now()
	timings := map[string]time.Duration{}
	buildErr := m.executeSteps(ctx, job, timings)

	job.SetTimings(timings)
	switch {
	case buildErr == nil:
		job.SetReady()
	case errors.Is(ctx.Err(), context.Canceled) && m.baseCtx.Err() == nil:
		job.SetFailed(jobs.CancelReason)
	default:
		job.SetFailed(services.Message(buildErr))
	}

	// Persist the terminal state with a fresh context: the build context
	// is canceled when the job was killed.
	persistCtx, cancelPersist := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelPersist()
	if err := m.store.Update(persistCtx, job); err != nil {
		m.logger.Error("could not persist job completion",
			logging.String(logging.FieldJobID, jobID), logging.Error(err))
	}

	if m.metrics != nil {
		m.metrics.BuildsFinished.WithLabelValues(string(job.Target), string(job.Status)).Inc()
		m.metrics.BuildDuration.WithLabelValues(string(job.Target)).Observe(time.Since(start).Seconds())
	}
	if buildErr != nil {
		m.logger.Error("build failed",
			logging.String(logging.FieldJobID, jobID),
			logging.String("status", string(job.Status)),
			logging.Error(buildErr))
		return
	}
	m.logger.Info("build ready",
		logging.String(logging.FieldJobID, jobID),
		logging.Duration("elapsed", time.Since(start)))
}

func (m *Manager) executeSteps(ctx context.Context, job *jobs.Job, timings map[string]time.Duration) error {
	cfg, err := m.jobOverrides(job)
	if err != nil {
		return err
	}

	var ws *sandbox.Workspace
	err = m.timed(timings, stepPrepare, func() error {
		var prepErr error
		ws, prepErr = m.preparer.Prepare(ctx, job.ID, job.TemplateRef, cfg)
		return prepErr
	})
	if err != nil {
		return err
	}
	defer ws.Remove()

	cacheKey := buildcache.Key(job.TemplateRef, m.cfg.Engine.RuntimeVersion, string(job.Target))
	_ = m.timed(timings, stepRestore, func() error {
		restored := m.cache.Restore(cacheKey, ws.Root)
		if m.metrics != nil {
			result := "miss"
			if restored {
				result = "hit"
			}
			m.metrics.CacheRestores.WithLabelValues(result).Inc()
		}
		return nil
	})

	err = m.timed(timings, stepBuild, func() error {
		return m.invokeEngine(ctx, job, ws.Root)
	})
	if err != nil {
		return err
	}

	_ = m.timed(timings, stepCapture, func() error {
		captureDir := m.capturer.Capture(ctx, job.ID, ws.Root, nil)
		if captureDir == "" {
			return nil
		}
		cover, shots, video := m.assembler.PublishMedia(ctx, job.ID, captureDir)
		job.CoverRef = cover
		job.SetScreenshotRefs(shots)
		job.VideoRef = video
		return nil
	})

	// The warm Library tree is worth keeping even if publication fails.
	_ = m.timed(timings, stepSave, func() error {
		m.cache.Save(cacheKey, ws.Root)
		return nil
	})

	return m.timed(timings, stepPublish, func() error {
		if err := m.assembler.Verify(ws.Root, job.Target); err != nil {
			return err
		}
		refs, err := m.assembler.Publish(ctx, job.ID, ws.Root, job.Target)
		if err != nil {
			return err
		}
		job.ResultRef = refs.Result
		if refs.WebArchive != "" {
			job.WebArchiveRef = refs.WebArchive
		}
		if refs.WebEntry != "" {
			job.WebEntryRef = refs.WebEntry
		}
		if refs.AndroidPackage != "" {
			job.AndroidPackageRef = refs.AndroidPackage
		}
		return nil
	})
}

func (m *Manager) invokeEngine(ctx context.Context, job *jobs.Job, projectRoot string) error {
	method := sandbox.BuildWebMethod
	if job.Target == jobs.TargetAndroid {
		method = sandbox.BuildAndroidMethod
	}
	req := runner.Request{
		Binary: m.cfg.Engine.Binary,
		Args: []string{
			"-batchmode",
			"-nographics",
			"-quit",
			"-projectPath", projectRoot,
			"-executeMethod", method,
			"-logFile", "-",
		},
		Dir:     projectRoot,
		Env:     os.Environ(),
		Timeout: m.cfg.Engine.BuildTimeoutDuration(),
		OnLine: func(line string) {
			lineCtx, cancelLine := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancelLine()
			if err := m.store.UpdateLastLogLine(lineCtx, job.ID, line); err != nil {
				m.logger.Debug("last log line update failed", logging.Error(err))
			}
		},
	}
	_, err := m.runner.Run(ctx, req)
	return err
}

func (m *Manager) jobOverrides(job *jobs.Job) (overrides.Overrides, error) {
	partial, err := overrides.ParsePartial([]byte(job.OverridesJSON))
	if err != nil {
		return overrides.Overrides{}, services.Wrap(services.ErrInvalidInput, "build", "load-overrides",
			"stored overrides are malformed", err)
	}
	return overrides.Merge(partial, overrides.Partial{}), nil
}

func (m *Manager) timed(timings map[string]time.Duration, step string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	timings[step] = elapsed
	if m.metrics != nil {
		m.metrics.StepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
	}
	return err
}
