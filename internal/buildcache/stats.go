package buildcache

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Stats summarizes cache disk usage for the operator CLI.
type Stats struct {
	Entries        int    `json:"entries"`
	UsedBytes      int64  `json:"used_bytes"`
	DiskFreeBytes  uint64 `json:"disk_free_bytes"`
	DiskTotalBytes uint64 `json:"disk_total_bytes"`
	Root           string `json:"root"`
}

// Stats walks the cache directory and queries the backing filesystem.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{Root: c.root}

	entries, err := os.ReadDir(c.root)
	if err != nil {
		return Stats{}, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".staging") {
			continue
		}
		stats.Entries++
		size, err := treeSize(filepath.Join(c.root, entry.Name()))
		if err != nil {
			return Stats{}, err
		}
		stats.UsedBytes += size
	}

	var fsStat unix.Statfs_t
	if err := unix.Statfs(c.root, &fsStat); err != nil {
		return Stats{}, err
	}
	blockSize := uint64(fsStat.Bsize)
	stats.DiskFreeBytes = fsStat.Bavail * blockSize
	stats.DiskTotalBytes = fsStat.Blocks * blockSize
	return stats, nil
}

func treeSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
