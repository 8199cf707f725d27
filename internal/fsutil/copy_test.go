package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyFilePreservesContentAndPermissions(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")

	want := []byte("some executable bytes")
	if err := os.WriteFile(src, want, 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := CopyFile(dst, src); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("copied content = %q, want %q", got, want)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		t.Fatalf("Stat(src) error = %v", err)
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("Stat(dst) error = %v", err)
	}
	if srcInfo.Mode().Perm() != dstInfo.Mode().Perm() {
		t.Errorf("dst perm = %v, want %v", dstInfo.Mode().Perm(), srcInfo.Mode().Perm())
	}
}

func TestCopyFileTruncatesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")

	if err := os.WriteFile(src, []byte("short"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(dst, []byte("a much longer previous destination file"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := CopyFile(dst, src); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "short" {
		t.Errorf("dst content = %q, want %q (old content should be truncated)", got, "short")
	}
}

func TestCopyFileErrorsOnMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFile(filepath.Join(dir, "dst"), filepath.Join(dir, "does-not-exist")); err == nil {
		t.Error("expected an error copying a nonexistent source file")
	}
}
