// Package security validates caller-supplied filesystem paths.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory rejects paths that escape safeDir once
// cleaned and symlink-resolved. It guards endpoints that accept a data
// file path from the client.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("resolve safe directory: %w", err)
	}

	canonicalPath := resolveSymlinks(absPath)
	canonicalSafeDir := resolveSymlinks(absSafeDir)

	rel, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside %s", filePath, safeDir)
	}
	return nil
}

// resolveSymlinks canonicalises path. When the path itself does not
// exist yet, the nearest existing ancestor is resolved instead, so a
// symlinked parent cannot smuggle the path out of the safe directory.
func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	check := path
	for {
		parent := filepath.Dir(check)
		if parent == check {
			return path
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, err := filepath.Rel(parent, path)
			if err != nil {
				return path
			}
			return filepath.Join(resolved, rel)
		}
		check = parent
	}
}
