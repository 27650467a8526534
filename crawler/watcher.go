// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of changes to settle.
const DefaultDebounce = 2 * time.Second

// Watcher observes a local directory tree and calls a trigger once changes
// have settled for the debounce window.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher for root.
func NewWatcher(root string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		logger:   slog.Default().With("component", "watcher", "root", root),
	}
}

// Run blocks until ctx is done, calling trigger after each settled burst of
// relevant changes. Trigger errors are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context, trigger func(context.Context) error) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(fw, event) {
				continue
			}
			w.logger.Debug("change observed", "path", event.Name, "op", event.Op.String())
			pending = true
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			w.logger.Info("changes settled, triggering ingestion")
			if err := trigger(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("triggered ingestion failed", "err", err)
			}
		}
	}
}

// relevant filters out hidden paths and permission changes, and starts
// watching directories created after startup.
func (w *Watcher) relevant(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	if isHidden(filepath.Base(event.Name)) {
		return false
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, event.Name); err != nil {
				w.logger.Warn("cannot watch new directory", "path", event.Name, "err", err)
			}
			return false
		}
	}
	return true
}

// addTree adds dir and every non-hidden directory below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && isHidden(d.Name()) {
			return fs.SkipDir
		}
		return fw.Add(p)
	})
}
