package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSearchPathsOptional(t *testing.T) {
	tmpDir := t.TempDir()
	file1 := filepath.Join(tmpDir, "homesite.yaml")
	if err := os.WriteFile(file1, []byte("port: 1\n"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{"finds first existing file", []string{filepath.Join(tmpDir, "missing.yaml"), file1}, file1},
		{"returns empty when nothing exists", []string{filepath.Join(tmpDir, "missing.yaml")}, ""},
		{"handles empty path list", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SearchPathsOptional(tt.paths); got != tt.want {
				t.Errorf("SearchPathsOptional() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultConfigPaths(t *testing.T) {
	paths := DefaultConfigPaths("homesite.yaml")
	if len(paths) != 3 {
		t.Fatalf("Expected 3 paths, got %d", len(paths))
	}
	if paths[2] != "/etc/homesite/homesite.yaml" {
		t.Errorf("Expected system path last, got %s", paths[2])
	}
}

func TestFileAndDirExists(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "index.html")
	if err := os.WriteFile(file, []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	if !FileExists(file) {
		t.Error("Expected FileExists to be true for file")
	}
	if FileExists(tmpDir) {
		t.Error("Expected FileExists to be false for directory")
	}
	if !DirExists(tmpDir) {
		t.Error("Expected DirExists to be true for directory")
	}
	if DirExists(file) {
		t.Error("Expected DirExists to be false for file")
	}
	if FileExists(filepath.Join(tmpDir, "nope")) || DirExists(filepath.Join(tmpDir, "nope")) {
		t.Error("Expected missing path to not exist")
	}
}

func TestUpdateSymlinkAtomic(t *testing.T) {
	tmpDir := t.TempDir()
	first := filepath.Join(tmpDir, "releases", "20260101-000000")
	second := filepath.Join(tmpDir, "releases", "20260102-000000")
	for _, d := range []string{first, second} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	link := filepath.Join(tmpDir, "current")

	if err := UpdateSymlinkAtomic(link, first); err != nil {
		t.Fatalf("UpdateSymlinkAtomic() error = %v", err)
	}
	if err := UpdateSymlinkAtomic(link, second); err != nil {
		t.Fatalf("UpdateSymlinkAtomic() error = %v", err)
	}

	target, err := SymlinkTarget(link)
	if err != nil {
		t.Fatalf("SymlinkTarget() error = %v", err)
	}
	if target != second {
		t.Errorf("Expected link to point to %s, got %s", second, target)
	}
	if IsSymlink(link + ".tmp") {
		t.Error("Temporary symlink left behind")
	}
}

func TestSymlinkTarget_NotSymlink(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := SymlinkTarget(file); err == nil {
		t.Error("Expected error for regular file")
	}
}
