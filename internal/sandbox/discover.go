package sandbox

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kiln/internal/services"
)

// A directory qualifies as a project root when all three marker directories
// are present.
var rootMarkers = []string{"Assets", "Packages", "ProjectSettings"}

const maxDiscoveryDepth = 3

// discoverRoot finds the project root inside an extracted archive. The search
// is breadth first so the shallowest root wins, bounded at three levels deep.
// Archive noise like __MACOSX and hidden directories is skipped. When no
// directory carries all three markers the extraction root itself is used and
// the engine reports whatever is actually wrong with the tree.
func discoverRoot(dir string) (string, error) {
	queue := []string{dir}
	for depth := 0; depth <= maxDiscoveryDepth && len(queue) > 0; depth++ {
		var next []string
		for _, candidate := range queue {
			if isProjectRoot(candidate) {
				return candidate, nil
			}
			children, err := childDirs(candidate)
			if err != nil {
				return "", services.Wrap(services.ErrTransient, "prepare", "discover-root", "could not scan sandbox", err)
			}
			next = append(next, children...)
		}
		queue = next
	}
	return dir, nil
}

func isProjectRoot(dir string) bool {
	for _, marker := range rootMarkers {
		info, err := os.Stat(filepath.Join(dir, marker))
		if err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

func childDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == "__MACOSX" || strings.HasPrefix(name, ".") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}
