package skills

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	maxArchiveEntries = 1000
	maxExtractedBytes = 64 << 20
)

var ErrUnsafePath = errors.New("archive entry escapes the extraction directory")

// Extract unpacks a zip archive into dir. Entries with absolute or parent
// paths are rejected, symlinks are skipped, and the total size is capped.
func Extract(data []byte, dir string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	// Insecure names are still listed; entryPath rejects them below.
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return fmt.Errorf("failed to open skill archive: %w", err)
	}
	if len(zr.File) > maxArchiveEntries {
		return fmt.Errorf("skill archive has %d entries, limit is %d", len(zr.File), maxArchiveEntries)
	}

	var total int64
	for _, f := range zr.File {
		rel, err := entryPath(f.Name)
		if err != nil {
			return err
		}
		if rel == "" {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))

		mode := f.Mode()
		switch {
		case mode&os.ModeSymlink != 0:
			continue
		case f.FileInfo().IsDir():
			if err := os.MkdirAll(target, 0700); err != nil {
				return err
			}
			continue
		}

		n, err := extractFile(f, target, maxExtractedBytes-total)
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

// entryPath normalizes a zip entry name to a clean relative slash path.
// Directory entries like "a/" come back as "a"; the root comes back empty.
func entryPath(name string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if strings.HasPrefix(trimmed, "/") || filepath.VolumeName(trimmed) != "" {
		return "", fmt.Errorf("%s: %w", name, ErrUnsafePath)
	}
	clean := path.Clean(trimmed)
	switch {
	case clean == ".":
		return "", nil
	case clean == ".." || strings.HasPrefix(clean, "../"):
		return "", fmt.Errorf("%s: %w", name, ErrUnsafePath)
	}
	return clean, nil
}

func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, err
	}

	// Read one byte past the budget to detect overflow.
	n, err := io.Copy(out, io.LimitReader(rc, budget+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	if n > budget {
		return n, fmt.Errorf("skill archive exceeds %d bytes when extracted", maxExtractedBytes)
	}
	return n, nil
}
