// Package security guards output paths derived from user input.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// canonical returns the absolute form of path with symlinks resolved in
// the longest prefix that exists on disk. Components that do not exist yet
// are appended unchanged, so a symlinked parent directory cannot be used
// to escape even when the leaf is about to be created.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	existing := abs
	var rest []string
	for {
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Join(parts...), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
}

// ValidatePathWithinDirectory checks that filePath resolves to a location
// inside safeDir. Neither path needs to exist.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	canonicalPath, err := canonical(filePath)
	if err != nil {
		return err
	}
	canonicalSafeDir, err := canonical(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// ValidateOutputDirs checks every dir against root and returns the first
// violation.
func ValidateOutputDirs(root string, dirs ...string) error {
	if root == "" {
		return fmt.Errorf("no output root specified")
	}
	for _, dir := range dirs {
		if err := ValidatePathWithinDirectory(dir, root); err != nil {
			return err
		}
	}
	return nil
}
