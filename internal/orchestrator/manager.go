package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"kiln/internal/artifacts"
	"kiln/internal/blobstore"
	"kiln/internal/buildcache"
	"kiln/internal/config"
	"kiln/internal/draft"
	"kiln/internal/jobs"
	"kiln/internal/logging"
	"kiln/internal/media"
	"kiln/internal/metrics"
	"kiln/internal/overrides"
	"kiln/internal/runner"
	"kiln/internal/sandbox"
	"kiln/internal/services"
)

// Manager owns the build pipeline: it accepts submissions, schedules them
// under the concurrency limit, and drives each job through the pipeline.
type Manager struct {
	cfg       *config.Config
	store     *jobs.Store
	registry  *jobs.Registry
	templates blobstore.Store
	preparer  *sandbox.Preparer
	cache     *buildcache.Cache
	runner    *runner.Runner
	capturer  *media.Capturer
	assembler *artifacts.Assembler
	drafter   *draft.Client
	metrics   *metrics.Metrics
	logger    *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// Deps bundles the pipeline collaborators.
type Deps struct {
	Store     *jobs.Store
	Templates blobstore.Store
	Artifacts blobstore.Store
	Drafter   *draft.Client
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// Executor overrides process execution (primarily for tests).
	Executor runner.Executor
}

// New wires a Manager from configuration and its dependencies.
func New(cfg *config.Config, deps Deps) (*Manager, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	cache, err := buildcache.New(cfg.Paths.CacheDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open build cache: %w", err)
	}
	var runnerOpts []runner.Option
	if deps.Executor != nil {
		runnerOpts = append(runnerOpts, runner.WithExecutor(deps.Executor))
	}
	run := runner.New(logger, runnerOpts...)

	maxConcurrent := cfg.Workflow.MaxConcurrentBuilds
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	m := &Manager{
		cfg:        cfg,
		store:      deps.Store,
		registry:   jobs.NewRegistry(),
		templates:  deps.Templates,
		preparer:   sandbox.NewPreparer(cfg, deps.Templates, logger),
		cache:      cache,
		runner:     run,
		capturer:   media.NewCapturer(cfg, run, logger),
		assembler:  artifacts.New(deps.Artifacts, logger),
		drafter:    deps.Drafter,
		metrics:    deps.Metrics,
		logger:     logging.NewComponentLogger(logger, "orchestrator"),
		sem:        make(chan struct{}, maxConcurrent),
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
	}
	return m, nil
}

// RecoverStuck fails jobs left queued or running by a previous daemon
// process. Called once at startup before the API accepts traffic.
func (m *Manager) RecoverStuck(ctx context.Context) error {
	count, err := m.store.ResetStuckRunning(ctx)
	if err != nil {
		return fmt.Errorf("recover stuck jobs: %w", err)
	}
	if count > 0 {
		m.logger.Info("failed jobs interrupted by restart", logging.Int64("count", count))
	}
	return nil
}

// Submit validates the request, creates the job, and schedules the build.
// The returned job is already persisted; the build itself runs asynchronously.
func (m *Manager) Submit(ctx context.Context, templateRef string, target jobs.Target, caller overrides.Partial, description string) (*jobs.Job, error) {
	templateRef = strings.TrimSpace(templateRef)
	if templateRef == "" {
		return nil, services.Wrap(services.ErrInvalidInput, "submit", "validate", "template reference required", nil)
	}
	reader, err := m.templates.Get(ctx, templateRef)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, services.Wrap(services.ErrInvalidInput, "submit", "validate",
				fmt.Sprintf("template %q does not exist", templateRef), nil)
		}
		return nil, services.Wrap(services.ErrTransient, "submit", "validate", "template store unavailable", err)
	}
	// Reject malformed archives here so the job never reaches running.
	checkErr := sandbox.CheckArchive(reader)
	reader.Close()
	if checkErr != nil {
		return nil, checkErr
	}

	draftPartial := m.generateDraft(ctx, description)
	merged := overrides.Merge(caller, draftPartial)
	encoded, err := merged.EncodeJSON()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "submit", "validate", "could not encode overrides", err)
	}

	job, err := m.store.New(ctx, templateRef, target, encoded)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "submit", "enqueue", "could not persist job", err)
	}

	m.dispatch(job.ID, target)
	m.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("template", templateRef),
		logging.String("target", string(target)))
	return job, nil
}

// Rebuild re-runs a finished job, optionally for a different target. Refs of
// the other target survive, so one job can accumulate both a web and an
// android artifact.
func (m *Manager) Rebuild(ctx context.Context, jobID string, target jobs.Target) (*jobs.Job, error) {
	job, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "rebuild", "load", "could not load job", err)
	}
	if job == nil {
		return nil, services.Wrap(services.ErrInvalidInput, "rebuild", "load", "job not found", nil)
	}
	if !job.Status.IsTerminal() {
		return nil, services.Wrap(services.ErrInvalidInput, "rebuild", "validate",
			fmt.Sprintf("job is %s, only finished jobs can be rebuilt", job.Status), nil)
	}
	if target == "" {
		target = job.Target
	}

	job.Target = target
	job.Status = jobs.StatusQueued
	job.ErrorMessage = ""
	job.LastLogLine = ""
	job.StartedAt = nil
	job.FinishedAt = nil
	job.TimingsJSON = ""
	job.ClearTargetRefs(target)
	if err := m.store.Update(ctx, job); err != nil {
		return nil, services.Wrap(services.ErrTransient, "rebuild", "enqueue", "could not persist job", err)
	}

	m.dispatch(job.ID, target)
	m.logger.Info("job requeued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("target", string(target)))
	return job, nil
}

// Cancel stops a queued or running job and returns the job as it stands.
// Running builds are killed; queued builds are failed before their goroutine
// picks them up. Canceling a finished job is a no-op that returns the
// unchanged job.
func (m *Manager) Cancel(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "cancel", "load", "could not load job", err)
	}
	if job == nil {
		return nil, services.Wrap(services.ErrInvalidInput, "cancel", "load", "job not found", nil)
	}
	if job.Status.IsTerminal() {
		return job, nil
	}

	if m.registry.Kill(jobID) {
		// The build goroutine observes the cancellation and records the
		// terminal state itself.
		m.logger.Info("running build canceled", logging.String(logging.FieldJobID, jobID))
		return job, nil
	}

	job.SetFailed(jobs.CancelReason)
	if err := m.store.Update(ctx, job); err != nil {
		return nil, services.Wrap(services.ErrTransient, "cancel", "persist", "could not persist cancellation", err)
	}
	m.logger.Info("queued build canceled", logging.String(logging.FieldJobID, jobID))
	return job, nil
}

// Close stops accepting work and waits for in-flight builds to settle.
func (m *Manager) Close() {
	m.cancelBase()
	m.wg.Wait()
}

func (m *Manager) generateDraft(ctx context.Context, description string) overrides.Partial {
	description = strings.TrimSpace(description)
	if description == "" || m.drafter == nil || !m.drafter.Enabled() {
		return overrides.Partial{}
	}
	partial, err := m.drafter.Generate(ctx, description)
	if err != nil {
		// Draft generation is advisory. A failed draft falls back to
		// caller values and defaults.
		m.logger.Warn("draft generation failed", logging.Error(err))
		if m.metrics != nil {
			m.metrics.DraftRequests.WithLabelValues("error").Inc()
		}
		return overrides.Partial{}
	}
	if m.metrics != nil {
		m.metrics.DraftRequests.WithLabelValues("ok").Inc()
	}
	return partial
}

func (m *Manager) dispatch(jobID string, target jobs.Target) {
	if m.metrics != nil {
		m.metrics.BuildsStarted.WithLabelValues(string(target)).Inc()
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
		case <-m.baseCtx.Done():
			return
		}
		m.runBuild(jobID)
	}()
}
