package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"kiln/internal/blobstore"
	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/overrides"
	"kiln/internal/services"
)

// Workspace is a prepared build sandbox. Root points at the discovered
// project root inside Dir; the two differ when the archive nests the project
// under intermediate directories.
type Workspace struct {
	Dir  string
	Root string
}

// Remove deletes the sandbox tree. Safe to call multiple times.
func (w *Workspace) Remove() {
	if w == nil || w.Dir == "" {
		return
	}
	_ = os.RemoveAll(w.Dir)
}

// Preparer turns stored template archives into patched, buildable project
// sandboxes.
type Preparer struct {
	cfg    *config.Config
	store  blobstore.Store
	logger *slog.Logger
}

// NewPreparer constructs a Preparer backed by the given template store.
func NewPreparer(cfg *config.Config, store blobstore.Store, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Preparer{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "sandbox"),
	}
}

// Prepare fetches the template archive, extracts it into a fresh sandbox,
// locates the project root, and injects the build hooks and runtime config.
// The caller owns the returned workspace and must Remove it when done.
func (p *Preparer) Prepare(ctx context.Context, jobID, templateRef string, cfg overrides.Overrides) (*Workspace, error) {
	reader, err := p.store.Get(ctx, templateRef)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			msg := fmt.Sprintf("template %q does not exist", templateRef)
			return nil, services.Wrap(services.ErrInvalidInput, "prepare", "fetch-template", msg, err)
		}
		return nil, services.Wrap(services.ErrTransient, "prepare", "fetch-template", "template store read failed", err)
	}
	defer reader.Close()

	dir := filepath.Join(p.cfg.Paths.SandboxDir, jobID)
	if err := os.RemoveAll(dir); err != nil {
		return nil, services.Wrap(services.ErrTransient, "prepare", "create-sandbox", "could not clear sandbox directory", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransient, "prepare", "create-sandbox", "could not create sandbox directory", err)
	}

	ws := &Workspace{Dir: dir}
	if err := p.populate(ws, reader, cfg); err != nil {
		ws.Remove()
		return nil, err
	}

	p.logger.Info("sandbox prepared",
		logging.String(logging.FieldJobID, jobID),
		logging.String("template", templateRef),
		logging.String("root", ws.Root))
	return ws, nil
}

func (p *Preparer) populate(ws *Workspace, archive io.Reader, cfg overrides.Overrides) error {
	if err := extractArchive(archive, ws.Dir); err != nil {
		return err
	}
	root, err := discoverRoot(ws.Dir)
	if err != nil {
		return err
	}
	ws.Root = root
	return injectPatch(root, cfg, p.cfg.Engine.RuntimeVersion)
}
