// Package ignore decides which workspace paths are hidden from listings and
// file events.
package ignore

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the per-workspace ignore file.
const FileName = ".antigravityignore"

// Defaults are always ignored.
var Defaults = []string{".git", "node_modules", "dist", "out"}

// Matcher holds the ignore set of one workspace root. Plain names match any
// path segment, entries with a slash match a path prefix and entries with
// glob metacharacters are doublestar patterns.
type Matcher struct {
	root  string
	extra []string

	mu       sync.RWMutex
	names    map[string]struct{}
	prefixes []string
	globs    []string
}

// New builds a matcher for root and loads its ignore file.
func New(root string, extra []string) *Matcher {
	m := &Matcher{root: root, extra: extra}
	_ = m.Reload()
	return m
}

// Reload rebuilds the set from the defaults, the configured entries and the
// ignore file. A missing file is not an error.
func (m *Matcher) Reload() error {
	entries := append(append([]string{}, Defaults...), m.extra...)
	fileEntries, err := readFile(filepath.Join(m.root, FileName))
	entries = append(entries, fileEntries...)

	names := map[string]struct{}{}
	var prefixes, globs []string
	for _, e := range entries {
		e = strings.Trim(strings.TrimSpace(filepath.ToSlash(e)), "/")
		switch {
		case e == "":
		case strings.ContainsAny(e, "*?[{"):
			if doublestar.ValidatePattern(e) {
				globs = append(globs, e)
			}
		case strings.Contains(e, "/"):
			prefixes = append(prefixes, e)
		default:
			names[e] = struct{}{}
		}
	}

	m.mu.Lock()
	m.names, m.prefixes, m.globs = names, prefixes, globs
	m.mu.Unlock()
	return err
}

func readFile(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// Match reports whether rel, a slash separated path relative to the root, is
// ignored. A path is ignored when it or any of its parent directories is.
func (m *Matcher) Match(rel string) bool {
	rel = strings.Trim(path.Clean(filepath.ToSlash(rel)), "/")
	if rel == "" || rel == "." {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	segs := strings.Split(rel, "/")
	for _, s := range segs {
		if _, ok := m.names[s]; ok {
			return true
		}
	}
	for _, p := range m.prefixes {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	for _, g := range m.globs {
		for i := range segs {
			if ok, _ := doublestar.Match(g, strings.Join(segs[:i+1], "/")); ok {
				return true
			}
			if !strings.Contains(g, "/") {
				if ok, _ := doublestar.Match(g, segs[i]); ok {
					return true
				}
			}
		}
	}
	return false
}

// IsIgnoreFile reports whether rel names the root ignore file.
func IsIgnoreFile(rel string) bool {
	return strings.Trim(filepath.ToSlash(rel), "/") == FileName
}
