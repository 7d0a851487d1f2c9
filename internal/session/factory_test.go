package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFactory_Create(t *testing.T) {
	base := t.TempDir()
	f := Factory{Base: base, Category: "radiation_test"}

	dir, err := f.Create("20260825_143000")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !filepath.IsAbs(dir) {
		t.Errorf("Create should return an absolute path: %q", dir)
	}
	if filepath.Base(dir) != "20260825_143000" {
		t.Errorf("Leaf = %q, want session id", filepath.Base(dir))
	}
	if filepath.Base(filepath.Dir(dir)) != "radiation_test" {
		t.Errorf("Parent = %q, want category", filepath.Dir(dir))
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Created path does not exist: %v", err)
	}
	if !info.IsDir() {
		t.Error("Created path is not a directory")
	}

	// Post-condition: writable immediately after the call returns.
	if err := os.WriteFile(filepath.Join(dir, "probe.txt"), []byte("ok"), 0o644); err != nil {
		t.Errorf("Created directory not writable: %v", err)
	}
}

func TestFactory_CreatesMissingParents(t *testing.T) {
	base := filepath.Join(t.TempDir(), "deep", "nested", "sessions")
	f := Factory{Base: base, Category: "radiation_test"}

	dir, err := f.Create("20260825_143000")
	if err != nil {
		t.Fatalf("Create with missing parents failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Stat after create: %v", err)
	}
}

func TestFactory_CollisionIsError(t *testing.T) {
	base := t.TempDir()
	f := Factory{Base: base, Category: "radiation_test"}

	if _, err := f.Create("20260825_143000"); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	_, err := f.Create("20260825_143000")
	if err == nil {
		t.Fatal("Same-second collision must be an error, not silent reuse")
	}

	var dirErr *DirectoryCreationError
	if !errors.As(err, &dirErr) {
		t.Fatalf("Expected *DirectoryCreationError, got %T: %v", err, err)
	}
	if !errors.Is(err, os.ErrExist) {
		t.Errorf("Collision should unwrap to os.ErrExist: %v", err)
	}
}

func TestFactory_UnwritableBase(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	base := t.TempDir()
	locked := filepath.Join(base, "locked")
	if err := os.Mkdir(locked, 0o555); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	f := Factory{Base: locked, Category: "radiation_test"}
	_, err := f.Create("20260825_143000")
	if err == nil {
		t.Fatal("Expected error for unwritable base")
	}

	var dirErr *DirectoryCreationError
	if !errors.As(err, &dirErr) {
		t.Fatalf("Expected *DirectoryCreationError, got %T: %v", err, err)
	}
}

func TestDirectoryCreationError_Message(t *testing.T) {
	err := &DirectoryCreationError{Path: "/some/path", Err: os.ErrPermission}
	msg := err.Error()
	if msg != "cannot create session directory /some/path: permission denied" {
		t.Errorf("Error() = %q", msg)
	}
}
