package blobstore_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kiln/internal/blobstore"
)

func TestPutGetRoundTrip(t *testing.T) {
	store, err := blobstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS failed: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "job-1/web/index.html", strings.NewReader("<html>")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rc, err := store.Get(ctx, "job-1/web/index.html")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != "<html>" {
		t.Fatalf("unexpected contents: %q", data)
	}

	ok, err := store.Exists(ctx, "job-1/web/index.html")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	store, err := blobstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS failed: %v", err)
	}
	_, err = store.Get(context.Background(), "absent/key")
	if !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutReplacesAtomically(t *testing.T) {
	root := t.TempDir()
	store, err := blobstore.NewLocalFS(root)
	if err != nil {
		t.Fatalf("NewLocalFS failed: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "job-1/result.bin", strings.NewReader("first")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	old, err := store.Get(ctx, "job-1/result.bin")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer old.Close()

	// Overwrite while the old handle is open: the reader keeps the
	// complete previous object, never a partial write.
	if err := store.Put(ctx, "job-1/result.bin", strings.NewReader("second")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	data, err := io.ReadAll(old)
	if err != nil || string(data) != "first" {
		t.Fatalf("old handle read %q, %v", data, err)
	}

	fresh, err := store.Get(ctx, "job-1/result.bin")
	if err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	defer fresh.Close()
	data, err = io.ReadAll(fresh)
	if err != nil || string(data) != "second" {
		t.Fatalf("fresh read %q, %v", data, err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "job-1"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".put-") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	store, err := blobstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS failed: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"../outside", "/abs/path", "", "."} {
		if err := store.Put(ctx, key, strings.NewReader("x")); err == nil {
			t.Fatalf("expected rejection for key %q", key)
		}
	}
}
