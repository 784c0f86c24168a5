// Package testutil provides common test helpers for vmbridge tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// CreateArtifact writes a small placeholder artifact file under dir and
// returns its path.
func CreateArtifact(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(name+" contents"), 0o644); err != nil {
		t.Fatalf("failed to create artifact %s: %v", path, err)
	}
	return path
}

// CreateDiskImage creates a sparse disk file at the given path with the
// specified size. No space is actually allocated.
func CreateDiskImage(t *testing.T, path string, sizeMB int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create disk image at %s: %v", path, err)
	}
	defer f.Close()

	if err := f.Truncate(sizeMB * 1024 * 1024); err != nil {
		t.Fatalf("failed to truncate disk image to %d MB: %v", sizeMB, err)
	}
}
