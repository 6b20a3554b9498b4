package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"kiln/internal/blobstore"
	"kiln/internal/buildcache"
	"kiln/internal/config"
	"kiln/internal/draft"
	"kiln/internal/jobs"
	"kiln/internal/logging"
	"kiln/internal/metrics"
	"kiln/internal/orchestrator"
)

// Daemon wires the job store, the build orchestrator, and the HTTP API into
// one long-running process.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *jobs.Store
	manager   *orchestrator.Manager
	templates blobstore.Store
	artifacts blobstore.Store
	cache     *buildcache.Cache
	metrics   *metrics.Metrics

	listener net.Listener
	server   *http.Server
}

// New constructs a Daemon from configuration. Nothing is started yet.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	templates, err := blobstore.NewLocalFS(cfg.Paths.TemplateDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open template store: %w", err)
	}
	artifactStore, err := blobstore.NewLocalFS(cfg.Paths.ArtifactDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	cache, err := buildcache.New(cfg.Paths.CacheDir, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open build cache: %w", err)
	}

	m := metrics.New()
	manager, err := orchestrator.New(cfg, orchestrator.Deps{
		Store:     store,
		Templates: templates,
		Artifacts: artifactStore,
		Drafter:   draft.NewClient(cfg.Draft),
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		manager:   manager,
		templates: templates,
		artifacts: artifactStore,
		cache:     cache,
		metrics:   m,
	}
	d.server = &http.Server{
		Handler:           d.router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return d, nil
}

// Start recovers interrupted jobs and begins serving the API. It returns
// once the listener is up; Wait on ctx for shutdown.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.manager.RecoverStuck(ctx); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", d.cfg.Paths.APIBind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	d.listener = listener

	go func() {
		if err := d.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		d.Stop()
	}()

	d.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound API address. Empty before Start.
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Stop shuts down the API, waits for in-flight builds, and closes the store.
func (d *Daemon) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = d.server.Shutdown(shutdownCtx)
	d.manager.Close()
	_ = d.store.Close()
}
