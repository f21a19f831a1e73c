package refs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"regraph/internal/object"

	"github.com/fsnotify/fsnotify"
)

// Event reports a reference that changed on disk. Target is the ref's value
// after the change, or the zero ID if the ref was removed.
type Event struct {
	Name   string
	Target object.ID
}

// Watcher streams reference updates from the refs directory.
type Watcher struct {
	store  *Store
	fsw    *fsnotify.Watcher
	events chan Event
	errs   chan error
	done   chan struct{}
}

// Watch starts watching the store's refs directory, including subdirectories
// created later.
func (s *Store) Watch() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	refsDir := filepath.Join(s.root, "refs")
	err = filepath.WalkDir(refsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching refs directory: %w", err)
	}

	w := &Watcher{
		store:  s,
		fsw:    fsw,
		events: make(chan Event, 16),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Events delivers ref updates until the watcher is closed.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors delivers watcher failures.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	defer close(w.events)
	for {
		select {
		case <-w.done:
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".tmp-") {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// New ref namespace (e.g. refs/heads/feature/): watch it too.
			w.fsw.Add(ev.Name)
			return
		}
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return
	}

	rel, err := filepath.Rel(w.store.root, ev.Name)
	if err != nil {
		return
	}
	name := filepath.ToSlash(rel)
	if ValidateName(name) != nil {
		return
	}

	var target object.ID
	if t, sym, err := w.store.read(name); err == nil && sym == "" {
		target = t
	}
	select {
	case w.events <- Event{Name: name, Target: target}:
	case <-w.done:
	}
}
