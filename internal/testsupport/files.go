package testsupport

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates a file (and parent directories) with the given contents.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// ZipArchive builds an in-memory zip from a map of archive paths to contents.
// Entries whose path ends in "/" become directories.
func ZipArchive(t testing.TB, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for name, data := range entries {
		if len(name) > 0 && name[len(name)-1] == '/' {
			if _, err := writer.Create(name); err != nil {
				t.Fatalf("create zip dir %s: %v", name, err)
			}
			continue
		}
		entry, err := writer.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := entry.Write(data); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// ProjectArchive builds a zip containing the three engine marker directories,
// optionally nested under a prefix such as "bundle/game/".
func ProjectArchive(t testing.TB, prefix string) []byte {
	t.Helper()
	entries := map[string][]byte{
		prefix + "Assets/scenes/main.scene":       []byte("scene"),
		prefix + "Packages/manifest.json":         []byte(`{"dependencies":{"com.vendor.input":"2.1.0"}}`),
		prefix + "ProjectSettings/settings.asset": []byte("settings"),
	}
	return ZipArchive(t, entries)
}
