package buildcache

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"kiln/internal/logging"
)

// cachedDir is the project subtree worth carrying between builds. It holds
// the engine's resolved packages and import results, which dominate cold
// build time.
const cachedDir = "Library"

// Cache persists per-template engine caches between builds. Restore and Save
// are best effort: a cache problem slows the build down, it never fails it.
type Cache struct {
	root   string
	logger *slog.Logger
}

// New constructs a cache rooted at dir.
func New(dir string, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		root:   dir,
		logger: logging.NewComponentLogger(logger, "buildcache"),
	}, nil
}

// Restore copies the cached Library tree for key into the project root.
// Returns true when a cache entry was applied. A Library directory already
// present in the project (shipped inside the template archive) wins over
// the cache and is left untouched.
func (c *Cache) Restore(key, projectRoot string) bool {
	dest := filepath.Join(projectRoot, cachedDir)
	if _, err := os.Stat(dest); err == nil {
		c.logger.Debug("project ships its own Library, skipping restore",
			logging.String("key", key))
		return false
	}

	entry := filepath.Join(c.root, key)
	lock := flock.New(entry + ".lock")
	locked, err := lock.TryRLock()
	if err != nil || !locked {
		c.logger.Debug("cache entry locked, building cold", logging.String("key", key))
		return false
	}
	defer lock.Unlock()

	src := filepath.Join(entry, cachedDir)
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return false
	}

	start := time.Now()
	if err := copyTree(src, dest); err != nil {
		c.logger.Warn("cache restore failed, building cold",
			logging.String("key", key),
			logging.Error(err))
		_ = os.RemoveAll(dest)
		return false
	}
	c.logger.Info("cache restored",
		logging.String("key", key),
		logging.Duration("elapsed", time.Since(start)))
	return true
}

// Save replaces the cache entry for key with the project's current Library
// tree. Failures are logged and swallowed.
func (c *Cache) Save(key, projectRoot string) {
	src := filepath.Join(projectRoot, cachedDir)
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return
	}

	entry := filepath.Join(c.root, key)
	lock := flock.New(entry + ".lock")
	locked, err := lock.TryLock()
	if err != nil || !locked {
		c.logger.Debug("cache entry locked, skipping save", logging.String("key", key))
		return
	}
	defer lock.Unlock()

	// Stage next to the entry so the final swap is a rename.
	staging := entry + ".staging"
	_ = os.RemoveAll(staging)
	if err := copyTree(src, filepath.Join(staging, cachedDir)); err != nil {
		c.logger.Warn("cache save failed", logging.String("key", key), logging.Error(err))
		_ = os.RemoveAll(staging)
		return
	}
	if err := os.RemoveAll(entry); err != nil {
		c.logger.Warn("cache save failed", logging.String("key", key), logging.Error(err))
		_ = os.RemoveAll(staging)
		return
	}
	if err := os.Rename(staging, entry); err != nil {
		c.logger.Warn("cache save failed", logging.String("key", key), logging.Error(err))
		_ = os.RemoveAll(staging)
		return
	}
	c.logger.Info("cache saved", logging.String("key", key))
}

// Evict removes a single cache entry.
func (c *Cache) Evict(key string) error {
	if err := os.Remove(filepath.Join(c.root, key+".lock")); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.RemoveAll(filepath.Join(c.root, key))
}

func copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dest string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
