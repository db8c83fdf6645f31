// Package security confines every file a tool reads or writes to one working directory.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathValidator resolves tool paths against the working directory and rejects anything
// that escapes it, including through symlinks
type PathValidator struct {
	root     string
	realRoot string
}

// NewPathValidator creates a validator rooted at dir. The directory must exist.
func NewPathValidator(dir string) (*PathValidator, error) {
	if dir == "" {
		return nil, fmt.Errorf("working directory cannot be empty")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot access working directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("working directory is not a directory: %s", dir)
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	return &PathValidator{root: filepath.Clean(abs), realRoot: filepath.Clean(real)}, nil
}

// Root returns the absolute working directory
func (v *PathValidator) Root() string {
	return v.root
}

// ResolveInput returns the absolute path of an existing regular file inside the working
// directory. Relative paths are taken relative to it.
func (v *PathValidator) ResolveInput(path string) (string, error) {
	abs, err := v.absolute(path)
	if err != nil {
		return "", err
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if !v.within(real) {
		return "", fmt.Errorf("path is outside working directory: %s", path)
	}

	info, err := os.Stat(real)
	if err != nil {
		return "", fmt.Errorf("cannot access file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file: %s", path)
	}
	return abs, nil
}

// ResolveOutput returns the absolute path for a file to be written inside the working
// directory. The parent directory must already exist; the file itself may not.
func (v *PathValidator) ResolveOutput(path string) (string, error) {
	abs, err := v.absolute(path)
	if err != nil {
		return "", err
	}

	parent, err := v.ResolveDir(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	target := filepath.Join(parent, filepath.Base(abs))

	if info, err := os.Lstat(target); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			real, err := filepath.EvalSymlinks(target)
			if err != nil || !v.within(real) {
				return "", fmt.Errorf("path is outside working directory: %s", path)
			}
		} else if info.IsDir() {
			return "", fmt.Errorf("output path is a directory: %s", path)
		}
	}
	return target, nil
}

// ResolveDir returns the absolute path of an existing directory inside the working directory
func (v *PathValidator) ResolveDir(path string) (string, error) {
	abs, err := v.absolute(path)
	if err != nil {
		return "", err
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("directory not found: %s", path)
		}
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if !v.within(real) {
		return "", fmt.Errorf("path is outside working directory: %s", path)
	}

	info, err := os.Stat(real)
	if err != nil {
		return "", fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", path)
	}
	return abs, nil
}

func (v *PathValidator) absolute(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	abs := filepath.Clean(path)
	if !v.within(abs) {
		return "", fmt.Errorf("path is outside working directory: %s", path)
	}
	return abs, nil
}

// within reports whether path is the root or below it, comparing against both the
// configured and the symlink-resolved root
func (v *PathValidator) within(path string) bool {
	for _, root := range []string{v.root, v.realRoot} {
		if path == root {
			return true
		}
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
