package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquirePIDLockWritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.db.lock")

	l, err := AcquirePIDLock(path)
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}
	defer l.Release()

	if l.Path() != path {
		t.Fatalf("Path() = %q", l.Path())
	}
	pid, ok := HolderPID(path)
	if !ok || pid != os.Getpid() {
		t.Fatalf("HolderPID = %d, %v; want %d", pid, ok, os.Getpid())
	}
}

func TestAcquirePIDLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db.lock")

	first, err := AcquirePIDLock(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, err = AcquirePIDLock(path)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("second acquire error = %v, want ErrLocked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	again, err := AcquirePIDLock(path)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestAcquirePIDLockEmptyPath(t *testing.T) {
	if _, err := AcquirePIDLock(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestHolderPIDInvalidContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := HolderPID(path); ok {
		t.Fatal("expected HolderPID to fail on garbage")
	}
	if _, ok := HolderPID(filepath.Join(t.TempDir(), "missing")); ok {
		t.Fatal("expected HolderPID to fail on missing file")
	}
}
