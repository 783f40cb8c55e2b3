package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// RemoveFileAndEmptyParents deletes path and then walks up its parent
// directories removing each one that is empty, stopping at stopAt (which is
// never removed) or at the first non-empty directory. A missing file is not
// an error. Directories outside stopAt are never touched.
//
// Parameters:
//   - path: The file to remove
//   - stopAt: The directory at which cleanup stops
//
// Returns:
//   - An error if the file exists but cannot be removed
func RemoveFileAndEmptyParents(path, stopAt string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	stop := filepath.Clean(stopAt)
	dir := filepath.Dir(filepath.Clean(path))
	for dir != stop && IsWithin(stop, dir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return nil
		}
		if err := os.Remove(dir); err != nil {
			return nil
		}
		dir = filepath.Dir(dir)
	}

	return nil
}

// IsWithin reports whether target is root or lies beneath it. Both paths are
// cleaned first; no symlinks are resolved.
func IsWithin(root, target string) bool {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	if root == target {
		return true
	}

	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}

	return strings.HasPrefix(target, prefix)
}
