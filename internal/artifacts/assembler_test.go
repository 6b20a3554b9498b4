package artifacts

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"kiln/internal/blobstore"
	"kiln/internal/jobs"
	"kiln/internal/services"
	"kiln/internal/testsupport"
)

func newAssembler(t *testing.T) (*Assembler, blobstore.Store) {
	t.Helper()
	store, err := blobstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return New(store, nil), store
}

func writeWebBuild(t *testing.T, root string) {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(root, "Builds", "web", "index.html"), []byte("<html>game</html>"))
	testsupport.WriteFile(t, filepath.Join(root, "Builds", "web", "Build", "game.wasm"), []byte("wasm-bytes"))
	testsupport.WriteFile(t, filepath.Join(root, "Builds", "web", "Build", "game.data.br"), []byte("br-bytes"))
}

func readBlob(t *testing.T, store blobstore.Store, key string) []byte {
	t.Helper()
	rc, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return data
}

func TestVerifyWeb(t *testing.T) {
	a, _ := newAssembler(t)
	root := t.TempDir()

	if err := a.Verify(root, jobs.TargetWeb); !errors.Is(err, services.ErrOutputMissing) {
		t.Errorf("err = %v, want ErrOutputMissing before build output exists", err)
	}
	writeWebBuild(t, root)
	if err := a.Verify(root, jobs.TargetWeb); err != nil {
		t.Errorf("Verify after build: %v", err)
	}
}

func TestVerifyAndroid(t *testing.T) {
	a, _ := newAssembler(t)
	root := t.TempDir()

	if err := a.Verify(root, jobs.TargetAndroid); !errors.Is(err, services.ErrOutputMissing) {
		t.Errorf("err = %v, want ErrOutputMissing", err)
	}
	testsupport.WriteFile(t, filepath.Join(root, "Builds", "android", "game.apk"), []byte("apk"))
	if err := a.Verify(root, jobs.TargetAndroid); err != nil {
		t.Errorf("Verify after build: %v", err)
	}
}

func TestPublishWeb(t *testing.T) {
	a, store := newAssembler(t)
	root := t.TempDir()
	writeWebBuild(t, root)

	refs, err := a.Publish(context.Background(), "job-1", root, jobs.TargetWeb)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if refs.Result != "job-1/web/index.html" {
		t.Errorf("result ref = %q", refs.Result)
	}
	if refs.WebEntry != refs.Result {
		t.Errorf("web entry = %q, want result ref", refs.WebEntry)
	}
	if refs.WebArchive != "job-1/web.zip" {
		t.Errorf("archive ref = %q", refs.WebArchive)
	}
	if refs.AndroidPackage != "" {
		t.Errorf("android ref should be empty for web publish")
	}

	if got := readBlob(t, store, "job-1/web/Build/game.wasm"); string(got) != "wasm-bytes" {
		t.Errorf("published wasm = %q", got)
	}

	archive := readBlob(t, store, "job-1/web.zip")
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	names := map[string]bool{}
	for _, f := range reader.File {
		names[f.Name] = true
	}
	for _, want := range []string{"index.html", "Build/game.wasm", "Build/game.data.br"} {
		if !names[want] {
			t.Errorf("archive missing %s (have %v)", want, names)
		}
	}
}

func TestPublishAndroid(t *testing.T) {
	a, store := newAssembler(t)
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "Builds", "android", "game.apk"), []byte("apk-bytes"))

	refs, err := a.Publish(context.Background(), "job-2", root, jobs.TargetAndroid)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if refs.Result != "job-2/android/game.apk" || refs.AndroidPackage != refs.Result {
		t.Errorf("refs = %+v", refs)
	}
	if refs.WebArchive != "" || refs.WebEntry != "" {
		t.Errorf("web refs should be empty for android publish: %+v", refs)
	}
	if got := readBlob(t, store, refs.Result); string(got) != "apk-bytes" {
		t.Errorf("published apk = %q", got)
	}
}

func TestPublishMedia(t *testing.T) {
	a, store := newAssembler(t)
	capture := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(capture, "cover.png"), []byte("cover"))
	testsupport.WriteFile(t, filepath.Join(capture, "shot_00.png"), []byte("png0"))
	testsupport.WriteFile(t, filepath.Join(capture, "shot_01.png"), []byte("png1"))
	testsupport.WriteFile(t, filepath.Join(capture, "preview.mp4"), []byte("mp4"))

	cover, shots, video := a.PublishMedia(context.Background(), "job-3", capture)
	if cover != "job-3/media/cover.png" {
		t.Errorf("cover = %q", cover)
	}
	if got := readBlob(t, store, cover); string(got) != "cover" {
		t.Errorf("published cover = %q", got)
	}
	if len(shots) != 2 {
		t.Fatalf("screenshots = %v", shots)
	}
	if video != "job-3/media/preview.mp4" {
		t.Errorf("video = %q", video)
	}
	if got := readBlob(t, store, video); string(got) != "mp4" {
		t.Errorf("published video = %q", got)
	}
}

func TestPublishMediaCoverFallsBackToScreenshot(t *testing.T) {
	a, _ := newAssembler(t)
	capture := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(capture, "shot_00.png"), []byte("png0"))

	cover, shots, _ := a.PublishMedia(context.Background(), "job-5", capture)
	if len(shots) != 1 {
		t.Fatalf("screenshots = %v", shots)
	}
	if cover != shots[0] {
		t.Errorf("cover = %q, want first screenshot %q", cover, shots[0])
	}
}

func TestPublishMediaEmptyDir(t *testing.T) {
	a, _ := newAssembler(t)
	cover, shots, video := a.PublishMedia(context.Background(), "job-4", t.TempDir())
	if cover != "" || len(shots) != 0 || video != "" {
		t.Errorf("expected nothing published, got cover=%q shots=%v video=%q", cover, shots, video)
	}
}
