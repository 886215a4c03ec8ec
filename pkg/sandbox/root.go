package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// ErrViolation is returned when a path resolves outside the sandbox root.
var ErrViolation = errors.New("path outside allowed directory")

// maxSymlinkHops bounds symlink expansion during resolution.
const maxSymlinkHops = 255

// Root is the single directory all filesystem operations are confined to.
// It is immutable after construction and safe for concurrent use.
type Root struct {
	path string
}

// NewRoot validates dir and returns a Root anchored at its absolute,
// symlink-resolved form. It fails if dir is missing or not a directory.
func NewRoot(dir string) (*Root, error) {
	if dir == "" {
		return nil, fmt.Errorf("sandbox root path cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for sandbox root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid directory: %w", abs, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid directory: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a valid directory", abs)
	}
	return &Root{path: resolved}, nil
}

// Path returns the absolute root path.
func (r *Root) Path() string {
	return r.path
}

// Resolve maps a user-supplied path to its canonical absolute form and
// ensures the result is the root or one of its descendants. Relative paths
// are joined to the root before resolution; absolute paths are resolved as
// given. Symbolic links and ".." segments are followed in order, so a link
// pointing outside the root is caught even when the raw string looks safe.
// The target does not need to exist.
func (r *Root) Resolve(userPath string) (string, error) {
	if strings.IndexByte(userPath, 0) != -1 {
		return "", fmt.Errorf("%w: path contains null byte", ErrViolation)
	}
	candidate := userPath
	if !filepath.IsAbs(candidate) {
		candidate = r.path + string(os.PathSeparator) + candidate
	}
	resolved, err := canonicalize(candidate)
	if err != nil {
		return "", err
	}
	if !Within(resolved, r.path) {
		return "", ErrViolation
	}
	return resolved, nil
}

// Rel returns abs relative to the root using forward slashes. Paths that
// are not under the root are returned unchanged.
func (r *Root) Rel(abs string) string {
	rel, err := filepath.Rel(r.path, abs)
	if err != nil || !Within(abs, r.path) {
		return abs
	}
	return filepath.ToSlash(rel)
}

// Within reports whether path equals base or lies beneath it.
func Within(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

// canonicalize resolves an absolute path one component at a time, the way
// the kernel would: a symlink is expanded before any following ".." is
// applied. Once a component does not exist the remainder is joined lexically.
func canonicalize(abs string) (string, error) {
	pending := splitComponents(abs)
	resolved := string(os.PathSeparator)
	if vol := filepath.VolumeName(abs); vol != "" {
		resolved = vol + string(os.PathSeparator)
	}
	hops := 0
	missing := false

	for len(pending) > 0 {
		comp := pending[0]
		pending = pending[1:]

		switch comp {
		case "", ".":
			continue
		case "..":
			// Climbing out of a missing subtree lands on real components
			// again, which must be checked for links.
			resolved = filepath.Dir(resolved)
			missing = false
			continue
		}

		next := filepath.Join(resolved, comp)
		if missing {
			resolved = next
			continue
		}

		info, err := os.Lstat(next)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
				missing = true
				resolved = next
				continue
			}
			return "", fmt.Errorf("failed to stat %s: %w", next, err)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			resolved = next
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", fmt.Errorf("too many levels of symbolic links resolving %s", abs)
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", fmt.Errorf("failed to read link %s: %w", next, err)
		}
		if filepath.IsAbs(target) {
			resolved = string(os.PathSeparator)
			if vol := filepath.VolumeName(target); vol != "" {
				resolved = vol + string(os.PathSeparator)
			}
		}
		pending = append(splitComponents(target), pending...)
	}
	return filepath.Clean(resolved), nil
}

func splitComponents(p string) []string {
	p = p[len(filepath.VolumeName(p)):]
	return strings.Split(filepath.ToSlash(p), "/")
}
