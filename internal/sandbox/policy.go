// Package sandbox enforces path and command containment for every
// filesystem or shell tool a specialist pack exposes to the model.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PermissionDenied is returned whenever the policy rejects a path or
// command. The message is safe to feed back to the model verbatim.
type PermissionDenied struct {
	Reason string
}

func (e *PermissionDenied) Error() string { return e.Reason }

func denied(format string, args ...any) *PermissionDenied {
	return &PermissionDenied{Reason: fmt.Sprintf(format, args...)}
}

// DefaultAllowedCommands is the starting allowlist for shell execution.
// Covers the interpreters, test runners, and text tools an engineering
// task normally needs; pack manifests add their commands to it.
var DefaultAllowedCommands = []string{
	"python", "python3", "pytest", "bash", "sh", "git", "rg",
	"ls", "cat", "sed", "awk", "jq", "pip", "uv", "make", "go",
}

// DefaultMaxOutputChars caps stdout and stderr independently so a runaway
// command cannot blow up memory or the run log.
const DefaultMaxOutputChars = 50_000

// Policy scopes every tool operation to a workspace root.
type Policy struct {
	Root            string
	AllowedCommands []string
	NetworkAllowed  bool
	MaxOutputChars  int
}

// NewPolicy builds a Policy rooted at root with the default allowlist and
// output cap.
func NewPolicy(root string, networkAllowed bool) *Policy {
	return &Policy{
		Root:            root,
		AllowedCommands: append([]string(nil), DefaultAllowedCommands...),
		NetworkAllowed:  networkAllowed,
		MaxOutputChars:  DefaultMaxOutputChars,
	}
}

// SafePath resolves relPath inside the policy root and rejects anything
// that escapes it. Absolute paths are rejected outright; `..` traversal
// and symlink escapes are defeated by resolving before the ancestor check.
func (p *Policy) SafePath(relPath string) (string, error) {
	if strings.ContainsRune(relPath, 0) {
		return "", denied("path contains null byte")
	}
	if relPath == "" {
		return "", denied("empty path")
	}
	if filepath.IsAbs(relPath) || strings.HasPrefix(relPath, "/") {
		return "", denied("path must be relative (e.g. 'app.py' or 'src/app.py'), not absolute: %q", relPath)
	}

	rootAbs, err := filepath.Abs(p.Root)
	if err != nil {
		return "", fmt.Errorf("resolve sandbox root: %w", err)
	}
	rootResolved, err := resolveSymlinks(rootAbs)
	if err != nil {
		rootResolved = rootAbs
	}

	candidate := filepath.Join(rootAbs, relPath)
	resolved, err := resolveSymlinks(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	if !isSubpath(resolved, rootResolved) && !isSubpath(resolved, rootAbs) {
		return "", denied("path %q resolves outside the workspace sandbox; use a relative path that stays within the workspace", relPath)
	}
	return resolved, nil
}

// CommandAllowed checks argv[0] against the allowlist. A bare "*" entry
// allows everything.
func (p *Policy) CommandAllowed(argv0 string) error {
	if argv0 == "" {
		return denied("empty command")
	}
	binary := argv0
	if idx := strings.LastIndex(binary, "/"); idx >= 0 {
		binary = binary[idx+1:]
	}
	if len(p.AllowedCommands) == 0 {
		return denied("no commands are allowed")
	}
	for _, allowed := range p.AllowedCommands {
		if allowed == "*" || binary == allowed {
			return nil
		}
	}
	return denied("command %q is not in the allowed list", binary)
}

// resolveSymlinks resolves symlinks, falling back to resolving the parent
// for paths that do not exist yet (write targets).
func resolveSymlinks(absPath string) (string, error) {
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			parent := filepath.Dir(absPath)
			resolvedParent, err2 := filepath.EvalSymlinks(parent)
			if err2 != nil {
				if os.IsNotExist(err2) {
					return absPath, nil
				}
				return absPath, nil
			}
			return filepath.Join(resolvedParent, filepath.Base(absPath)), nil
		}
		return absPath, nil
	}
	return resolved, nil
}

// isSubpath checks if child is equal to or a descendant of parent.
func isSubpath(child, parent string) bool {
	if child == parent {
		return true
	}
	prefix := parent + string(filepath.Separator)
	return strings.HasPrefix(child, prefix)
}
