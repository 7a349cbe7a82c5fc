package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	uploadNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	pageNamePattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidatePageName ensures a page or article name taken from a URL can only
// name a file directly inside the template directory.
func ValidatePageName(name string) error {
	if name == "" {
		return fmt.Errorf("page name cannot be empty")
	}
	if !pageNamePattern.MatchString(name) {
		return fmt.Errorf("page name contains invalid characters")
	}
	return nil
}

// SanitizeUploadName reduces a client supplied file name to a safe base name.
func SanitizeUploadName(name string) (string, error) {
	// Browsers on Windows may send the full path.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("file name cannot be empty")
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "-") {
		return "", fmt.Errorf("file name cannot start with '.' or '-'")
	}
	if !uploadNamePattern.MatchString(name) {
		return "", fmt.Errorf("file name contains invalid characters (only a-z, A-Z, 0-9, _, ., - allowed)")
	}
	return name, nil
}

// SanitizePathForSymlink prevents path traversal when switching the current
// release. Ensures target path is within the base directory.
func SanitizePathForSymlink(basePath, targetPath string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target path: %w", err)
	}

	cleanBase, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate base path symlinks: %w", err)
	}

	cleanTarget, err := filepath.EvalSymlinks(absTarget)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate target path symlinks: %w", err)
	}

	relPath, err := filepath.Rel(cleanBase, cleanTarget)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: target '%s' is outside base '%s'", cleanTarget, cleanBase)
	}

	return cleanTarget, nil
}
