// Package pathguard resolves workspace-relative paths and rejects escapes.
// Every tool that touches the filesystem routes through a Guard.
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
)

// Guard resolves paths against a fixed workspace root.
type Guard struct {
	root string
}

// New creates a Guard rooted at root. root is resolved to an absolute,
// symlink-free path at construction time.
func New(root string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindConfig, "resolve workspace root", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Root may not exist yet (e.g. output_dir created lazily); fall back
		// to the unresolved absolute path rather than failing construction.
		resolved = abs
	}
	return &Guard{root: resolved}, nil
}

// Root returns the guard's absolute workspace root.
func (g *Guard) Root() string { return g.root }

// Resolve turns a workspace-relative or absolute path into an absolute path
// and verifies it does not escape the workspace after symlink resolution.
func (g *Guard) Resolve(relOrAbs string) (string, error) {
	var candidate string
	if filepath.IsAbs(relOrAbs) {
		candidate = filepath.Clean(relOrAbs)
	} else {
		candidate = filepath.Clean(filepath.Join(g.root, relOrAbs))
	}

	resolved := candidate
	if real, err := filepath.EvalSymlinks(candidate); err == nil {
		resolved = real
	} else if !os.IsNotExist(err) {
		return "", aiwerrors.Wrap(aiwerrors.KindPathEscape, "resolve path", err)
	}
	// A not-yet-existing path is resolved against its nearest existing
	// ancestor so a write to a new file still gets checked for escape.
	if _, err := os.Lstat(resolved); os.IsNotExist(err) {
		if parentReal, perr := resolveExistingAncestor(filepath.Dir(candidate)); perr == nil {
			resolved = filepath.Join(parentReal, filepath.Base(candidate))
		}
	}

	if !g.isWithin(resolved) {
		return "", aiwerrors.New(aiwerrors.KindPathEscape, fmt.Sprintf("path %q escapes workspace %q", relOrAbs, g.root))
	}
	return resolved, nil
}

// IsWithinWorkspace reports whether path (already resolved) is a descendant
// of the workspace root.
func (g *Guard) IsWithinWorkspace(path string) bool {
	return g.isWithin(path)
}

func (g *Guard) isWithin(resolved string) bool {
	rel, err := filepath.Rel(g.root, resolved)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}

// RelativeSlash returns path relative to the workspace root with forward
// slashes, stable across OSes, for display/output.
func (g *Guard) RelativeSlash(path string) (string, error) {
	rel, err := filepath.Rel(g.root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func resolveExistingAncestor(dir string) (string, error) {
	for {
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			return real, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing ancestor for %q", dir)
		}
		dir = parent
	}
}

// DiscoverWorkspace walks from start upward looking for a directory named
// markerDir (".WHISPER"). The parent of markerDir is the workspace root.
// Symlinks are followed with cycle protection via a visited-set of resolved
// directories.
func DiscoverWorkspace(start, markerDir string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	visited := make(map[string]bool)
	for {
		real, err := filepath.EvalSymlinks(dir)
		if err != nil {
			real = dir
		}
		if visited[real] {
			return "", fmt.Errorf("cycle detected while discovering workspace from %q", start)
		}
		visited[real] = true

		marker := filepath.Join(dir, markerDir)
		if info, err := os.Stat(marker); err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %q found above %q", markerDir, start)
		}
		dir = parent
	}
}
