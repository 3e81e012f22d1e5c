/*
DESCRIPTION
  watch.go provides watching of the configuration file for changes.

AUTHORS
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ausocean/utils/logging"
)

// watcher calls a function when a file changes. Bursts of events within the
// debounce period result in a single call.
type watcher struct {
	log      logging.Logger
	w        *fsnotify.Watcher
	name     string
	debounce time.Duration
	onChange func()
	done     chan struct{}
}

// watchConfig starts watching the file at path. The containing directory is
// watched so that files replaced by editors are still seen.
func watchConfig(l logging.Logger, path string, debounce time.Duration, onChange func()) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	err = fw.Add(filepath.Dir(abs))
	if err != nil {
		fw.Close()
		return nil, err
	}
	w := &watcher{
		log:      l,
		w:        fw,
		name:     abs,
		debounce: debounce,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.watch()
	l.Info(pkg+"watching configuration", "path", abs)
	return w, nil
}

// Close stops watching.
func (w *watcher) Close() error {
	err := w.w.Close()
	<-w.done
	return err
}

func (w *watcher) watch() {
	defer close(w.done)
	var timer <-chan time.Time
	for {
		select {
		case e, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.name || e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.log.Debug(pkg+"configuration file event", "op", e.Op.String())
			timer = time.After(w.debounce)
		case <-timer:
			timer = nil
			w.onChange()
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.log.Warning(pkg+"configuration watcher error", "error", err)
		}
	}
}
