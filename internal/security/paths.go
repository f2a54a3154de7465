// Package security guards file paths written by the tracker tools.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDir reports a path that resolves outside every allowed directory.
var ErrOutsideDir = errors.New("path escapes allowed directory")

// canonical resolves symlinks in p. When p does not exist yet, the nearest
// existing ancestor is resolved and the rest of the path appended, so a
// symlinked parent cannot smuggle a new file elsewhere.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, err := filepath.Rel(dir, abs)
			if err != nil {
				return "", err
			}
			return filepath.Join(resolved, rel), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}

// ValidatePathWithin returns nil when path, after cleaning and symlink
// resolution, lies inside dir.
func ValidatePathWithin(path, dir string) error {
	p, err := canonical(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	d, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	if d, err = filepath.EvalSymlinks(d); err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	rel, err := filepath.Rel(d, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%s: %w %s", path, ErrOutsideDir, dir)
	}
	return nil
}

// ValidateOutputPath accepts paths under the working directory, the system
// temp directory or any of extra.
func ValidateOutputPath(path string, extra ...string) error {
	dirs := append([]string{os.TempDir()}, extra...)
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	for _, dir := range dirs {
		if ValidatePathWithin(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("%s: %w (allowed: %s)", path, ErrOutsideDir, strings.Join(dirs, ", "))
}
