package ftpserver

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/cyberinferno/camingest/utils"
)

// ErrOutsideSandbox is returned when a client path resolves above the tenant
// sandbox root.
var ErrOutsideSandbox = errors.New("path outside sandbox")

// Sandbox maps client-visible virtual paths ("/cam1/img.jpg") onto a tenant
// directory on disk. Paths that would leave the root are rejected, never
// clamped.
type Sandbox struct {
	Root string
}

// Virtual normalizes arg against the current virtual directory cwd and
// returns the absolute virtual path.
//
// Parameters:
//   - cwd: Current virtual directory, always absolute
//   - arg: Client-supplied path, absolute or relative
//
// Returns:
//   - The normalized virtual path, beginning with "/"
//   - ErrOutsideSandbox if ".." would climb above the root
func (s Sandbox) Virtual(cwd, arg string) (string, error) {
	var parts []string
	if !strings.HasPrefix(arg, "/") {
		parts = splitVirtual(cwd)
	}

	for _, seg := range strings.Split(arg, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(parts) == 0 {
				return "", ErrOutsideSandbox
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, seg)
		}
	}

	return "/" + strings.Join(parts, "/"), nil
}

// Real maps a normalized virtual path to its location on disk and verifies,
// after resolving symlinks on the longest existing prefix, that the location
// is still inside Root.
func (s Sandbox) Real(virtual string) (string, error) {
	full := filepath.Join(s.Root, filepath.FromSlash(strings.TrimPrefix(virtual, "/")))
	if !utils.IsWithin(s.Root, full) {
		return "", ErrOutsideSandbox
	}

	root, err := filepath.EvalSymlinks(s.Root)
	if err != nil {
		root = filepath.Clean(s.Root)
	}

	probe := full
	for {
		resolved, err := filepath.EvalSymlinks(probe)
		if err == nil {
			if !utils.IsWithin(root, resolved) {
				return "", ErrOutsideSandbox
			}
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("resolve %s: %w", virtual, err)
		}

		parent := filepath.Dir(probe)
		if parent == probe || !utils.IsWithin(s.Root, parent) {
			break
		}
		probe = parent
	}

	return full, nil
}

// Resolve combines Virtual and Real.
func (s Sandbox) Resolve(cwd, arg string) (string, string, error) {
	virtual, err := s.Virtual(cwd, arg)
	if err != nil {
		return "", "", err
	}

	full, err := s.Real(virtual)
	if err != nil {
		return "", "", err
	}

	return virtual, full, nil
}

func splitVirtual(p string) []string {
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" && seg != "." {
			parts = append(parts, seg)
		}
	}

	return parts
}
