// Package sandbox confines file operations to one workspace root and applies
// the read-only, write-approval and size gates.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yohi/antigravity-mcp-bridge/core/bridgewire"
)

// Approver confirms a pending write. A false answer rejects the write.
type Approver interface {
	ApproveWrite(ctx context.Context, path string) (bool, error)
}

// Options configure a Sandbox.
type Options struct {
	Root                 string
	ReadOnly             bool
	RequireWriteApproval bool
	MaxFileSize          int64
	// Ignore hides matching paths from List. Nil hides nothing.
	Ignore interface{ Match(rel string) bool }
	// Approver is consulted when RequireWriteApproval is set.
	Approver Approver
}

// Sandbox serves file operations below a resolved root.
type Sandbox struct {
	root string
	opts Options
}

// New resolves the root (following symlinks) and returns a Sandbox.
func New(opts Options) (*Sandbox, error) {
	abs, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", real)
	}
	if opts.RequireWriteApproval && opts.Approver == nil {
		return nil, errors.New("write approval requires an approver")
	}
	return &Sandbox{root: real, opts: opts}, nil
}

// Root returns the resolved workspace root.
func (s *Sandbox) Root() string { return s.root }

// ReadOnly reports whether writes are disabled.
func (s *Sandbox) ReadOnly() bool { return s.opts.ReadOnly }

// MaxFileSize returns the read ceiling in bytes.
func (s *Sandbox) MaxFileSize() int64 { return s.opts.MaxFileSize }

// Resolve maps a caller supplied relative path to an absolute path inside the
// root. Absolute paths and ".." segments are refused outright. The path is
// then resolved through symlinks (for a path that does not exist yet, its
// nearest existing ancestor is) and must still lie within the root.
func (s *Sandbox) Resolve(rel string) (string, error) {
	if rel == "" {
		return "", bridgewire.NewError(bridgewire.CodeInvalidParams, "Path is required")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) || filepath.VolumeName(rel) != "" {
		return "", bridgewire.NewError(bridgewire.CodeInvalidParams, "Path must be relative")
	}
	for _, seg := range strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", bridgewire.NewError(bridgewire.CodeInvalidParams, "Directory traversal detected")
		}
	}

	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	check, err := resolveExisting(abs)
	if err != nil {
		return "", bridgewire.NewError(bridgewire.CodePathOutsideWorkspace, "Access denied: Unable to resolve path")
	}
	if !s.contains(check) {
		return "", bridgewire.NewError(bridgewire.CodePathOutsideWorkspace, "Access denied: Path is outside workspace")
	}
	return abs, nil
}

// resolveExisting follows symlinks of p. When p does not exist, the nearest
// existing ancestor is resolved and the missing tail appended. A dangling
// symlink cannot be resolved.
func resolveExisting(p string) (string, error) {
	real, err := filepath.EvalSymlinks(p)
	if err == nil {
		return real, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if _, lerr := os.Lstat(p); lerr == nil {
		return "", err
	}
	parent := filepath.Dir(p)
	if parent == p {
		return "", err
	}
	rp, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(rp, filepath.Base(p)), nil
}

func (s *Sandbox) contains(p string) bool {
	if p == s.root {
		return true
	}
	prefix := s.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

// Rel returns the slash separated path of abs relative to the root, or false
// when abs lies outside it.
func (s *Sandbox) Rel(abs string) (string, bool) {
	if !s.contains(abs) {
		return "", false
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
