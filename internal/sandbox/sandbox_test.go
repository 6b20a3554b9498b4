package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"kiln/internal/blobstore"
	"kiln/internal/overrides"
	"kiln/internal/services"
	"kiln/internal/testsupport"
)

func newPreparer(t *testing.T) (*Preparer, blobstore.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store, err := blobstore.NewLocalFS(cfg.Paths.TemplateDir)
	if err != nil {
		t.Fatalf("open template store: %v", err)
	}
	return NewPreparer(cfg, store, nil), store
}

func putTemplate(t *testing.T, store blobstore.Store, key string, data []byte) {
	t.Helper()
	if err := store.Put(context.Background(), key, bytes.NewReader(data)); err != nil {
		t.Fatalf("put template: %v", err)
	}
}

func TestPrepareFlatArchive(t *testing.T) {
	p, store := newPreparer(t)
	putTemplate(t, store, "runner.zip", testsupport.ProjectArchive(t, ""))

	ws, err := p.Prepare(context.Background(), "job-1", "runner.zip", overrides.Defaults())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer ws.Remove()

	if ws.Root != ws.Dir {
		t.Errorf("root = %q, want sandbox dir %q", ws.Root, ws.Dir)
	}
	for _, rel := range []string{
		"Assets/Kiln/BuildEntry.cs",
		"Assets/Kiln/CaptureEntry.cs",
		"Assets/Kiln/kiln_config.json",
		"Assets/Kiln/Resources/kiln_config.json",
	} {
		if _, err := os.Stat(filepath.Join(ws.Root, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
}

func TestPrepareNestedArchive(t *testing.T) {
	p, store := newPreparer(t)
	putTemplate(t, store, "nested.zip", testsupport.ProjectArchive(t, "bundle/game/"))

	ws, err := p.Prepare(context.Background(), "job-2", "nested.zip", overrides.Defaults())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer ws.Remove()

	want := filepath.Join(ws.Dir, "bundle", "game")
	if ws.Root != want {
		t.Errorf("root = %q, want %q", ws.Root, want)
	}
}

func TestPrepareSkipsArchiveNoise(t *testing.T) {
	p, store := newPreparer(t)
	entries := map[string][]byte{
		"__MACOSX/junk.txt":                             []byte("junk"),
		".hidden/Assets/x":                              []byte("x"),
		"game/Assets/main.scene":                        []byte("scene"),
		"game/Packages/manifest.json":                   []byte(`{"dependencies":{}}`),
		"game/ProjectSettings/settings.asset":           []byte("settings"),
	}
	putTemplate(t, store, "noisy.zip", testsupport.ZipArchive(t, entries))

	ws, err := p.Prepare(context.Background(), "job-3", "noisy.zip", overrides.Defaults())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer ws.Remove()

	if filepath.Base(ws.Root) != "game" {
		t.Errorf("root = %q, want the game directory", ws.Root)
	}
}

func TestPrepareRejectsNonZip(t *testing.T) {
	p, store := newPreparer(t)
	putTemplate(t, store, "bad.zip", []byte("this is not a zip archive"))

	_, err := p.Prepare(context.Background(), "job-4", "bad.zip", overrides.Defaults())
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestPrepareFallsBackWithoutMarkers(t *testing.T) {
	p, store := newPreparer(t)
	entries := map[string][]byte{
		"Assets/scene": []byte("x"),
		"README.md":    []byte("no project here"),
	}
	putTemplate(t, store, "markerless.zip", testsupport.ZipArchive(t, entries))

	ws, err := p.Prepare(context.Background(), "job-5", "markerless.zip", overrides.Defaults())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer ws.Remove()

	if ws.Root != ws.Dir {
		t.Errorf("root = %q, want fallback to sandbox dir %q", ws.Root, ws.Dir)
	}
	if _, err := os.Stat(filepath.Join(ws.Root, filepath.FromSlash(ConfigRelPath()))); err != nil {
		t.Errorf("config not injected at fallback root: %v", err)
	}
}

func TestPrepareUnknownTemplate(t *testing.T) {
	p, _ := newPreparer(t)
	_, err := p.Prepare(context.Background(), "job-6", "missing.zip", overrides.Defaults())
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestPrepareCleansUpOnFailure(t *testing.T) {
	p, store := newPreparer(t)
	putTemplate(t, store, "bad.zip", []byte("nope"))

	_, err := p.Prepare(context.Background(), "job-7", "bad.zip", overrides.Defaults())
	if err == nil {
		t.Fatal("expected failure")
	}
	if _, statErr := os.Stat(filepath.Join(p.cfg.Paths.SandboxDir, "job-7")); !os.IsNotExist(statErr) {
		t.Errorf("sandbox directory left behind after failure")
	}
}

func TestPinRuntimePackage(t *testing.T) {
	p, store := newPreparer(t)
	entries := map[string][]byte{
		"Assets/main.scene":                   []byte("scene"),
		"Packages/manifest.json":              []byte(`{"dependencies":{"com.kiln.runtime":"0.9.0","com.vendor.input":"2.1.0"}}`),
		"Packages/packages-lock.json":         []byte(`{"locked":true}`),
		"ProjectSettings/settings.asset":      []byte("settings"),
		"Library/PackageCache/old-pkg/file":   []byte("stale"),
	}
	putTemplate(t, store, "pinned.zip", testsupport.ZipArchive(t, entries))

	ws, err := p.Prepare(context.Background(), "job-8", "pinned.zip", overrides.Defaults())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer ws.Remove()

	raw, err := os.ReadFile(filepath.Join(ws.Root, "Packages", "manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if got := manifest.Dependencies["com.kiln.runtime"]; got != p.cfg.Engine.RuntimeVersion {
		t.Errorf("runtime pin = %q, want %q", got, p.cfg.Engine.RuntimeVersion)
	}
	if got := manifest.Dependencies["com.vendor.input"]; got != "2.1.0" {
		t.Errorf("existing dependency lost: %q", got)
	}
	if _, err := os.Stat(filepath.Join(ws.Root, "Packages", "packages-lock.json")); !os.IsNotExist(err) {
		t.Error("lock file should be removed after pinning")
	}
	if _, err := os.Stat(filepath.Join(ws.Root, "Library", "PackageCache")); !os.IsNotExist(err) {
		t.Error("package cache should be removed after pinning")
	}
}

func TestInjectedConfigContents(t *testing.T) {
	p, store := newPreparer(t)
	putTemplate(t, store, "runner.zip", testsupport.ProjectArchive(t, ""))

	title := "Space Run"
	cfg := overrides.Merge(overrides.Partial{Title: &title}, overrides.Partial{})
	ws, err := p.Prepare(context.Background(), "job-9", "runner.zip", cfg)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer ws.Remove()

	raw, err := os.ReadFile(filepath.Join(ws.Root, filepath.FromSlash(ConfigRelPath())))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var decoded overrides.Overrides
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if decoded.Title != "Space Run" {
		t.Errorf("title = %q, want Space Run", decoded.Title)
	}
}
