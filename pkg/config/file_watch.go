package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchFile watches path's containing directory (fsnotify can't watch a
// single file reliably across editors that rewrite-via-rename) and calls
// reload on debounced write/create events, until stop is closed. Grounded
// on the teacher's file-provider watch loop.
func watchFile(path string, stop <-chan struct{}, reload func()) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	defer w.Close()

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return
	}

	const debounce = 100 * time.Millisecond
	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			reload()
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}
