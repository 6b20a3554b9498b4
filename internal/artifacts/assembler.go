package artifacts

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"

	"kiln/internal/blobstore"
	"kiln/internal/jobs"
	"kiln/internal/logging"
	"kiln/internal/services"
)

// Build output locations produced by the injected build hooks, relative to
// the project root.
const (
	webOutputDir      = "Builds/web"
	webEntryFile      = "index.html"
	androidOutputFile = "Builds/android/game.apk"
)

// Refs identifies the published artifacts for one build.
type Refs struct {
	// Result is the primary artifact: the web entry page or the apk.
	Result string
	// WebArchive is the downloadable zip of the whole web tree. Empty for
	// android builds.
	WebArchive string
	// WebEntry duplicates Result for web builds so both survive a later
	// android rebuild of the same job.
	WebEntry string
	// AndroidPackage is the published apk ref. Empty for web builds.
	AndroidPackage string
}

// Assembler verifies engine build output and publishes it to the artifact
// store.
type Assembler struct {
	store  blobstore.Store
	logger *slog.Logger
}

// New constructs an Assembler.
func New(store blobstore.Store, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Assembler{
		store:  store,
		logger: logging.NewComponentLogger(logger, "artifacts"),
	}
}

// Verify confirms the engine actually produced the expected output for the
// target. A clean engine exit with missing output is still a failure.
func (a *Assembler) Verify(projectRoot string, target jobs.Target) error {
	switch target {
	case jobs.TargetWeb:
		entry := filepath.Join(projectRoot, filepath.FromSlash(webOutputDir), webEntryFile)
		if _, err := os.Stat(entry); err != nil {
			return services.Wrap(services.ErrOutputMissing, "publish", "verify",
				"engine exited cleanly but produced no web build", err)
		}
	case jobs.TargetAndroid:
		apk := filepath.Join(projectRoot, filepath.FromSlash(androidOutputFile))
		if _, err := os.Stat(apk); err != nil {
			return services.Wrap(services.ErrOutputMissing, "publish", "verify",
				"engine exited cleanly but produced no android package", err)
		}
	default:
		return services.Wrap(services.ErrInvalidInput, "publish", "verify",
			fmt.Sprintf("unknown build target %q", target), nil)
	}
	return nil
}

// Publish copies the verified build output into the artifact store under the
// job's namespace and returns the resulting refs.
func (a *Assembler) Publish(ctx context.Context, jobID, projectRoot string, target jobs.Target) (Refs, error) {
	switch target {
	case jobs.TargetWeb:
		return a.publishWeb(ctx, jobID, projectRoot)
	case jobs.TargetAndroid:
		return a.publishAndroid(ctx, jobID, projectRoot)
	default:
		return Refs{}, services.Wrap(services.ErrInvalidInput, "publish", "publish",
			fmt.Sprintf("unknown build target %q", target), nil)
	}
}

func (a *Assembler) publishWeb(ctx context.Context, jobID, projectRoot string) (Refs, error) {
	srcDir := filepath.Join(projectRoot, filepath.FromSlash(webOutputDir))
	files, err := collectFiles(srcDir)
	if err != nil {
		return Refs{}, services.Wrap(services.ErrTransient, "publish", "publish", "could not read web build output", err)
	}

	for _, rel := range files {
		key := path.Join(jobID, "web", rel)
		if err := a.putFile(ctx, key, filepath.Join(srcDir, filepath.FromSlash(rel))); err != nil {
			return Refs{}, err
		}
	}

	archiveKey := path.Join(jobID, "web.zip")
	if err := a.putArchive(ctx, archiveKey, srcDir, files); err != nil {
		return Refs{}, err
	}

	entry := path.Join(jobID, "web", webEntryFile)
	a.logger.Info("web build published",
		logging.String(logging.FieldJobID, jobID),
		logging.Int("files", len(files)))
	return Refs{Result: entry, WebEntry: entry, WebArchive: archiveKey}, nil
}

func (a *Assembler) publishAndroid(ctx context.Context, jobID, projectRoot string) (Refs, error) {
	key := path.Join(jobID, "android", "game.apk")
	src := filepath.Join(projectRoot, filepath.FromSlash(androidOutputFile))
	if err := a.putFile(ctx, key, src); err != nil {
		return Refs{}, err
	}
	a.logger.Info("android build published", logging.String(logging.FieldJobID, jobID))
	return Refs{Result: key, AndroidPackage: key}, nil
}

// PublishMedia stores capture output (cover, screenshots, preview video)
// under the job's media namespace. Missing files are skipped, not errors.
func (a *Assembler) PublishMedia(ctx context.Context, jobID, captureDir string) (cover string, screenshots []string, video string) {
	coverSrc := filepath.Join(captureDir, "cover.png")
	if _, err := os.Stat(coverSrc); err == nil {
		key := path.Join(jobID, "media", "cover.png")
		if err := a.putFile(ctx, key, coverSrc); err != nil {
			a.logger.Warn("cover publish failed", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		} else {
			cover = key
		}
	}

	shots, err := filepath.Glob(filepath.Join(captureDir, "shot_*.png"))
	if err == nil {
		sort.Strings(shots)
		for i, shot := range shots {
			key := path.Join(jobID, "media", fmt.Sprintf("screenshot_%02d.png", i))
			if err := a.putFile(ctx, key, shot); err != nil {
				a.logger.Warn("screenshot publish failed", logging.String(logging.FieldJobID, jobID), logging.Error(err))
				continue
			}
			screenshots = append(screenshots, key)
		}
	}
	// Old capture hooks render no cover; the first screenshot stands in.
	if cover == "" && len(screenshots) > 0 {
		cover = screenshots[0]
	}

	preview := filepath.Join(captureDir, "preview.mp4")
	if _, err := os.Stat(preview); err == nil {
		key := path.Join(jobID, "media", "preview.mp4")
		if err := a.putFile(ctx, key, preview); err != nil {
			a.logger.Warn("video publish failed", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		} else {
			video = key
		}
	}
	return cover, screenshots, video
}

func (a *Assembler) putFile(ctx context.Context, key, src string) error {
	file, err := os.Open(src)
	if err != nil {
		return services.Wrap(services.ErrTransient, "publish", "publish", "could not open build output", err)
	}
	defer file.Close()
	if err := a.store.Put(ctx, key, file); err != nil {
		return services.Wrap(services.ErrTransient, "publish", "publish", "artifact store write failed", err)
	}
	return nil
}

func (a *Assembler) putArchive(ctx context.Context, key, srcDir string, files []string) error {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	writer.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})
	for _, rel := range files {
		entry, err := writer.Create(rel)
		if err != nil {
			writer.Close()
			return services.Wrap(services.ErrTransient, "publish", "publish", "could not build web archive", err)
		}
		file, err := os.Open(filepath.Join(srcDir, filepath.FromSlash(rel)))
		if err != nil {
			writer.Close()
			return services.Wrap(services.ErrTransient, "publish", "publish", "could not build web archive", err)
		}
		_, err = io.Copy(entry, file)
		file.Close()
		if err != nil {
			writer.Close()
			return services.Wrap(services.ErrTransient, "publish", "publish", "could not build web archive", err)
		}
	}
	if err := writer.Close(); err != nil {
		return services.Wrap(services.ErrTransient, "publish", "publish", "could not build web archive", err)
	}
	if err := a.store.Put(ctx, key, &buf); err != nil {
		return services.Wrap(services.ErrTransient, "publish", "publish", "artifact store write failed", err)
	}
	return nil
}

// collectFiles lists regular files under dir as sorted slash-separated
// relative paths.
func collectFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files under %s", dir)
	}
	sort.Strings(files)
	return files, nil
}
