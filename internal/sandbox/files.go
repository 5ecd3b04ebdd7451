package sandbox

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yohi/antigravity-mcp-bridge/core/bridgewire"
	"github.com/yohi/antigravity-mcp-bridge/core/logx"
)

const binarySniffLen = 8192

// BinaryPlaceholder replaces the content of files that look binary.
const BinaryPlaceholder = "Binary file"

// List returns the files below the root as sorted, slash separated relative
// paths. Ignored directories are not descended into.
func (s *Sandbox) List(ctx context.Context, recursive bool) ([]string, error) {
	files := []string{}
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == s.root {
				return err
			}
			logx.Log.Debug().Err(err).Str("path", p).Msg("skipping unreadable entry")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == s.root {
			return nil
		}
		rel, ok := s.Rel(p)
		if !ok {
			return nil
		}
		if s.opts.Ignore != nil && s.opts.Ignore.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if info, err := os.Stat(p); err != nil || info.IsDir() {
				return nil
			}
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Read returns the text content of a file. Oversized files are rejected
// before being loaded; files with a NUL byte in the first 8 KiB are reported
// as binary.
func (s *Sandbox) Read(ctx context.Context, rel string) (string, error) {
	abs, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", bridgewire.NewError(bridgewire.CodeFileNotFound, "File not found: %s", rel)
	}
	if info.IsDir() {
		return "", bridgewire.NewError(bridgewire.CodeInvalidParams, "Path is a directory: %s", rel)
	}
	if s.opts.MaxFileSize > 0 && info.Size() > s.opts.MaxFileSize {
		return "", bridgewire.NewError(bridgewire.CodeFileTooLarge, "File exceeds maximum size (%d > %d bytes)", info.Size(), s.opts.MaxFileSize)
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", bridgewire.NewError(bridgewire.CodeFileNotFound, "File not found: %s", rel)
		}
		return "", err
	}
	if isBinary(b) {
		return BinaryPlaceholder, nil
	}
	return strings.ToValidUTF8(string(b), "\uFFFD"), nil
}

func isBinary(b []byte) bool {
	if len(b) > binarySniffLen {
		b = b[:binarySniffLen]
	}
	return bytes.IndexByte(b, 0) >= 0
}

// Write stores content at rel, creating parent directories. It returns the
// confirmation message.
func (s *Sandbox) Write(ctx context.Context, rel, content string) (string, error) {
	if s.opts.ReadOnly {
		return "", bridgewire.NewError(bridgewire.CodeReadOnlyViolation, "Write operations are disabled (read-only mode)")
	}
	abs, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}
	if s.opts.RequireWriteApproval {
		ok, err := s.opts.Approver.ApproveWrite(ctx, rel)
		if err != nil {
			return "", err
		}
		if !ok {
			logx.Log.Info().Str("path", rel).Msg("Write rejected by user")
			return "", bridgewire.NewError(bridgewire.CodeUserRejected, "Write operation rejected by user")
		}
	} else {
		logx.Log.Info().Str("path", rel).Msg("Writing file")
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", err
	}
	logx.Log.Info().Str("path", rel).Msg("File written")
	return "File written: " + rel, nil
}
