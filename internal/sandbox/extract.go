package sandbox

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"kiln/internal/services"
)

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// CheckArchive verifies the reader starts with the zip magic bytes. Run at
// submit time so a malformed template is rejected before a job exists.
func CheckArchive(r io.Reader) error {
	header := make([]byte, len(zipMagic))
	n, _ := io.ReadFull(r, header)
	if n < len(zipMagic) || !bytes.Equal(header, zipMagic) {
		return services.Wrap(services.ErrInvalidInput, "submit", "validate-archive", "template archive is not a zip file", nil)
	}
	return nil
}

// extractArchive spools the archive to disk, verifies it is a zip, and
// unpacks it under destDir. Entries escaping destDir are rejected.
func extractArchive(archive io.Reader, destDir string) error {
	spool, err := os.CreateTemp(destDir, "archive-*.zip")
	if err != nil {
		return services.Wrap(services.ErrTransient, "prepare", "extract", "could not spool archive", err)
	}
	spoolPath := spool.Name()
	defer os.Remove(spoolPath)

	size, err := io.Copy(spool, archive)
	if err != nil {
		spool.Close()
		return services.Wrap(services.ErrTransient, "prepare", "extract", "could not spool archive", err)
	}
	if err := spool.Close(); err != nil {
		return services.Wrap(services.ErrTransient, "prepare", "extract", "could not spool archive", err)
	}

	header := make([]byte, len(zipMagic))
	f, err := os.Open(spoolPath)
	if err != nil {
		return services.Wrap(services.ErrTransient, "prepare", "extract", "could not reopen archive", err)
	}
	n, _ := io.ReadFull(f, header)
	f.Close()
	if n < len(zipMagic) || !bytes.Equal(header, zipMagic) {
		return services.Wrap(services.ErrInvalidInput, "prepare", "extract", "template archive is not a zip file", nil)
	}

	reader, err := zip.OpenReader(spoolPath)
	if err != nil {
		return services.Wrap(services.ErrInvalidInput, "prepare", "extract", "template archive is corrupt", err)
	}
	defer reader.Close()
	_ = size

	for _, entry := range reader.File {
		if err := extractEntry(entry, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, destDir string) error {
	cleaned := filepath.Clean(filepath.FromSlash(entry.Name))
	if cleaned == "." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) || cleaned == ".." || filepath.IsAbs(cleaned) {
		return services.Wrap(services.ErrInvalidInput, "prepare", "extract", "template archive contains an unsafe path", nil)
	}
	target := filepath.Join(destDir, cleaned)

	if entry.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return services.Wrap(services.ErrTransient, "prepare", "extract", "could not create directory", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "prepare", "extract", "could not create directory", err)
	}
	src, err := entry.Open()
	if err != nil {
		return services.Wrap(services.ErrInvalidInput, "prepare", "extract", "template archive is corrupt", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return services.Wrap(services.ErrTransient, "prepare", "extract", "could not write extracted file", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return services.Wrap(services.ErrTransient, "prepare", "extract", "could not write extracted file", err)
	}
	return dst.Close()
}
