package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckLocalFilesystem_AllowsLocalFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	err := checkLocalFilesystem(dbPath, func(string) (string, error) { return "apfs", nil })
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
}

func TestCheckLocalFilesystem_RejectsNetworkFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	err := checkLocalFilesystem(dbPath, func(string) (string, error) { return "nfs", nil })
	if err == nil {
		t.Fatal("expected network filesystem validation error")
	}
	for _, want := range []string{"nfs", "SQLite requires a local filesystem", "catalog.path"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to contain %q, got %q", want, err.Error())
		}
	}
}

func TestCheckLocalFilesystem_ProbesNearestExistingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "nested", "dir", "catalog.db")

	var checked string
	err := checkLocalFilesystem(dbPath, func(path string) (string, error) {
		checked = path
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if checked != root {
		t.Fatalf("expected check of %q, got %q", root, checked)
	}
}

func TestCheckLocalFilesystem_UnsupportedPlatformPasses(t *testing.T) {
	t.Parallel()

	err := checkLocalFilesystem(filepath.Join(t.TempDir(), "catalog.db"), func(string) (string, error) {
		return "", errDetectUnsupported
	})
	if err != nil {
		t.Fatalf("expected unsupported detection to be skipped, got: %v", err)
	}
}

func TestCheckLocalFilesystem_DetectorFailure(t *testing.T) {
	t.Parallel()

	err := checkLocalFilesystem(filepath.Join(t.TempDir(), "catalog.db"), func(string) (string, error) {
		return "", fmt.Errorf("statfs: permission denied")
	})
	if err == nil || !strings.Contains(err.Error(), "detect filesystem") {
		t.Fatalf("expected detector error to surface, got %v", err)
	}
}

func TestIsNetworkFilesystem(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"nfs":    true,
		"SMBFS":  true,
		" cifs ": true,
		"apfs":   false,
		"0xef53": false,
	}
	for fs, want := range cases {
		if got := isNetworkFilesystem(fs); got != want {
			t.Errorf("isNetworkFilesystem(%q)=%v, want %v", fs, got, want)
		}
	}
}
