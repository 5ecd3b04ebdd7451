// Package watch turns file system changes under the workspace root into
// workspace/event notifications.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/yohi/antigravity-mcp-bridge/core/bridgewire"
	"github.com/yohi/antigravity-mcp-bridge/core/logx"
	"github.com/yohi/antigravity-mcp-bridge/internal/ignore"
)

// EmitFunc receives every event that survives filtering.
type EmitFunc func(bridgewire.WorkspaceEventParams)

// Watcher watches a workspace root recursively. Directories created after
// start are added as they appear.
type Watcher struct {
	root   string
	ignore *ignore.Matcher
	emit   EmitFunc
	fsw    *fsnotify.Watcher
}

// New starts watching root. root should already be absolute with symlinks
// resolved so event paths can be made relative to it.
func New(root string, ign *ignore.Matcher, emit EmitFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: root, ignore: ign, emit: emit, fsw: fsw}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree adds dir and every non-ignored directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(p); ok && rel != "" && w.ignore.Match(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			logx.Log.Warn().Err(err).Str("path", p).Msg("watch add failed")
		}
		return nil
	})
}

func (w *Watcher) rel(p string) (string, bool) {
	r, err := filepath.Rel(w.root, p)
	if err != nil {
		return "", false
	}
	r = filepath.ToSlash(r)
	if r == "." {
		return "", true
	}
	if r == ".." || strings.HasPrefix(r, "../") {
		return "", false
	}
	return r, true
}

// Classify maps an fsnotify operation to an event type.
func Classify(op fsnotify.Op) (bridgewire.EventType, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return bridgewire.EventFileCreated, true
	case op.Has(fsnotify.Write), op.Has(fsnotify.Chmod):
		return bridgewire.EventFileChanged, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return bridgewire.EventFileDeleted, true
	}
	return "", false
}

// Run delivers events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logx.Log.Error().Err(err).Msg("workspace watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	kind, ok := Classify(ev.Op)
	if !ok {
		return
	}
	rel, ok := w.rel(ev.Name)
	if !ok || rel == "" {
		return
	}
	if ignore.IsIgnoreFile(rel) {
		if err := w.ignore.Reload(); err != nil {
			logx.Log.Warn().Err(err).Msg("reload ignore file")
		}
	}
	if w.ignore.Match(rel) {
		return
	}
	if kind == bridgewire.EventFileCreated {
		if fi, err := os.Lstat(ev.Name); err == nil && fi.IsDir() {
			_ = w.addTree(ev.Name)
		}
	}
	logx.Log.Debug().Str("type", string(kind)).Str("path", rel).Msg("workspace event")
	w.emit(bridgewire.WorkspaceEventParams{Type: kind, Path: rel})
}
