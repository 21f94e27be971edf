// Package watcher observes the Jupyter runtime directory for connection
// files appearing and disappearing, turning filesystem events into
// kernel lifecycle transitions (spec.md §4.H).
package watcher

import (
	"path/filepath"
	"strings"

	"github.com/dstq/kernelbus/connection"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EventKind distinguishes a discovered runtime from one that has gone
// away.
type EventKind int

const (
	// Discovered reports a new connection file found in the runtime
	// directory (spec.md §4.H "starting" transition).
	Discovered EventKind = iota
	// Removed reports the removal (or rename) of a connection file that
	// was previously reported as Discovered (spec.md §4.H "terminated"
	// transition).
	Removed
)

// Event is a single runtime lifecycle transition.
type Event struct {
	Kind EventKind
	Path string
	Info *connection.Info // nil for Removed
}

// Watcher monitors a runtime directory's *.json connection files.
type Watcher struct {
	fsw    *fsnotify.Watcher
	dir    string
	events chan Event
	errs   chan error
	known  map[string]bool // paths reported as Discovered; touched only by loop
}

// New starts watching dir for connection-file create/remove events. The
// caller must call Close when done.
func New(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithMessage(err, "watcher: creating fsnotify watcher")
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, errors.WithMessagef(err, "watcher: watching %q", dir)
	}
	w := &Watcher{
		fsw:    fsw,
		dir:    dir,
		events: make(chan Event, 16),
		errs:   make(chan error, 1),
		known:  make(map[string]bool),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				close(w.events)
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				continue
			}
			klog.Warningf("watcher: fsnotify error on %q: %v", w.dir, err)
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, ".json") {
		return
	}
	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if w.known[ev.Name] {
			return
		}
		info, err := connection.Load(ev.Name)
		if err != nil {
			// A partially-written file, or not a connection file at all;
			// not fatal to the watch loop (spec.md §4.H tolerant read).
			klog.V(2).Infof("watcher: skipping %q: %v", ev.Name, err)
			return
		}
		w.known[ev.Name] = true
		w.events <- Event{Kind: Discovered, Path: ev.Name, Info: info}
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if !w.known[ev.Name] {
			return
		}
		delete(w.known, ev.Name)
		w.events <- Event{Kind: Removed, Path: ev.Name}
	}
}

// Events returns the channel of lifecycle transitions.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel of underlying fsnotify errors (buffered,
// lossy past the first unread error).
func (w *Watcher) Errors() <-chan error { return w.errs }

// Close stops watching and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }

// KernelID derives the runtime id from a connection-file path, e.g.
// "kernel-abc123.json" -> "abc123" (spec.md §4.H naming convention).
func KernelID(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".json")
	return strings.TrimPrefix(base, "kernel-")
}
