package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

var (
	ErrPathEscape  = errors.New("path escapes workspace root")
	ErrInvalidPath = errors.New("invalid path")
)

// SplitPath splits a slash-delimited logical path into segments, dropping
// empty and "." segments so "/a/b", "a/b" and "a//b/" are equivalent.
// A ".." segment is rejected.
func SplitPath(p string) ([]string, error) {
	if strings.ContainsRune(p, '\x00') {
		return nil, ErrInvalidPath
	}
	parts := strings.Split(p, "/")
	segs := make([]string, 0, len(parts))
	for _, s := range parts {
		switch s {
		case "", ".":
			continue
		case "..":
			return nil, ErrPathEscape
		}
		segs = append(segs, s)
	}
	return segs, nil
}

// CleanPath returns the canonical "/a/b" form of p.
func CleanPath(p string) (string, error) {
	segs, err := SplitPath(p)
	if err != nil {
		return "", err
	}
	return canonical(segs), nil
}

// leafSegments splits p and requires at least one segment.
func leafSegments(p string) ([]string, error) {
	segs, err := SplitPath(p)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, ErrInvalidPath
	}
	return segs, nil
}

// SafeJoin joins a base directory with a relative path, ensuring the result
// stays within the base directory.
func SafeJoin(baseDir, relativePath string) (string, error) {
	if relativePath == "" {
		return "", ErrInvalidPath
	}

	absJoined, err := filepath.Abs(filepath.Join(baseDir, relativePath))
	if err != nil {
		return "", err
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(absBase, absJoined)
	if err != nil {
		return "", err
	}
	// "..." and "..foo" are valid names, not traversals
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return absJoined, nil
}

// resolveForContainment resolves symlinks along path. For paths that do not
// exist yet, the nearest existing ancestor is resolved and the missing
// suffix re-attached. A file used as an intermediate segment counts as
// missing; callers see the ENOTDIR from their own file operation.
func resolveForContainment(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	current := absPath
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) && !errors.Is(err, syscall.ENOTDIR) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

// IsWithinDirReal reports whether targetPath resolves inside baseDir after
// following symlinks. Used as the guard for every real-mode mutation.
func IsWithinDirReal(baseDir, targetPath string) (bool, error) {
	baseResolved, err := resolveForContainment(baseDir)
	if err != nil {
		return false, err
	}
	targetResolved, err := resolveForContainment(targetPath)
	if err != nil {
		return false, err
	}

	rel, err := filepath.Rel(baseResolved, targetResolved)
	if err != nil {
		return false, err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, nil
	}
	return true, nil
}
