package fileutil

import (
	"fmt"
	"os"
)

// UpdateSymlinkAtomic points linkPath at targetPath without a window where
// linkPath is missing: a temporary link is created next to it and renamed
// over the old one.
func UpdateSymlinkAtomic(linkPath, targetPath string) error {
	tmpLink := linkPath + ".tmp"

	// Left over from a previous failed attempt.
	_ = os.Remove(tmpLink)

	if err := os.Symlink(targetPath, tmpLink); err != nil {
		return fmt.Errorf("failed to create temporary symlink: %w", err)
	}

	if err := os.Rename(tmpLink, linkPath); err != nil {
		_ = os.Remove(tmpLink)
		return fmt.Errorf("failed to rename symlink atomically: %w", err)
	}

	return nil
}

// IsSymlink checks if a path is a symlink.
func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}

// SymlinkTarget reads the immediate target of a symlink.
func SymlinkTarget(path string) (string, error) {
	if !IsSymlink(path) {
		return "", fmt.Errorf("path is not a symlink: %s", path)
	}

	target, err := os.Readlink(path)
	if err != nil {
		return "", fmt.Errorf("failed to read symlink target: %w", err)
	}

	return target, nil
}
