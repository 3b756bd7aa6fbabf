// Copyright 2025 Tom Barlow
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

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow absorbs the burst of events a single editor save
// produces (typically a rename plus a create plus one or more writes).
const debounceWindow = 250 * time.Millisecond

// Watcher reloads an agent-set file whenever it changes on disk,
// grounded on the teacher's internal/controller/filewatcher.Watcher
// and Debouncer, narrowed from arbitrary include/exclude glob trees
// down to a single watched file.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	onChange func(*AgentSet, error)

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher opens an fsnotify watch on the directory containing path
// (fsnotify does not reliably track a single renamed-over file, so the
// parent directory is watched and events are filtered by basename,
// matching the teacher's own approach for editor-style atomic saves).
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	dir := filepath.Dir(absPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		path:   absPath,
		fsw:    fsw,
		logger: logger.With(slog.String("component", "config.watcher"), slog.String("path", absPath)),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start begins watching. onChange is called with the freshly loaded
// agent set after every debounced change to the watched file, or with
// a non-nil error if the reload failed (the previous AgentSet, if any,
// remains in effect; it is the caller's responsibility to ignore a
// failed reload rather than apply a nil AgentSet).
func (w *Watcher) Start(ctx context.Context, onChange func(*AgentSet, error)) {
	w.onChange = onChange
	go w.loop(ctx)
}

// Stop releases the underlying fsnotify watch.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	<-w.doneCh
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceWindow)
			}
			timerC = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", slog.Any("error", err))
		case <-timerC:
			timerC = nil
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("agent set reload failed", slog.Any("error", err))
			} else {
				w.logger.Info("agent set reloaded")
			}
			if w.onChange != nil {
				w.onChange(cfg, err)
			}
		}
	}
}
