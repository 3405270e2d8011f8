// Package watcher monitors the input file and reports when its content has
// changed and settled.
package watcher

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/blake2b"
)

// Event represents a settled change of the watched file.
type Event struct {
	Path      string
	Hash      [32]byte
	Size      int64
	Timestamp time.Time
}

// Watcher monitors a single file for changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration

	// State tracking
	lastChange time.Time
	pending    bool
	lastHash   [32]byte
	stateMu    sync.Mutex

	events chan Event
	errors chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher for path. An event is emitted once the file has not
// been written for the debounce interval and its content differs from the
// last reported content.
func New(path string, debounce time.Duration) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = 10 * time.Millisecond
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		path:      absPath,
		debounce:  debounce,
		events:    make(chan Event, 16),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel of change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching. The current content becomes the baseline, so no
// event is emitted until the file actually changes.
func (w *Watcher) Start() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", w.path)
	}

	hash, _, err := HashFile(w.path)
	if err != nil {
		return err
	}
	w.stateMu.Lock()
	w.lastHash = hash
	w.stateMu.Unlock()

	// Watch the directory so editors that replace the file are seen.
	if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()

	return nil
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsWatcher.Close()
}

// eventLoop handles fsnotify events.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			w.stateMu.Lock()
			w.lastChange = time.Now()
			w.pending = true
			w.stateMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.sendErr(err)
		}
	}
}

// debounceLoop periodically checks whether a pending change has settled.
func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	tick := w.debounce / 4
	if tick < 5*time.Millisecond {
		tick = 5 * time.Millisecond
	}
	if tick > time.Second {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case now := <-ticker.C:
			w.checkStable(now)
		}
	}
}

// checkStable emits an event when the file has been quiet for the debounce
// interval. The lock is released while hashing.
func (w *Watcher) checkStable(now time.Time) {
	w.stateMu.Lock()
	if !w.pending || w.lastChange.After(now.Add(-w.debounce)) {
		w.stateMu.Unlock()
		return
	}
	changedAt := w.lastChange
	w.stateMu.Unlock()

	hash, size, err := HashFile(w.path)
	if err != nil {
		// Replaced files briefly disappear; the Create event rearms us.
		if !errors.Is(err, fs.ErrNotExist) {
			w.sendErr(err)
		}
		w.stateMu.Lock()
		if w.lastChange.Equal(changedAt) {
			w.pending = false
		}
		w.stateMu.Unlock()
		return
	}

	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	// Modified during hashing: let it settle again.
	if !w.lastChange.Equal(changedAt) {
		return
	}
	w.pending = false

	if hash == w.lastHash {
		return
	}

	select {
	case w.events <- Event{Path: w.path, Hash: hash, Size: size, Timestamp: now}:
		w.lastHash = hash
	default:
		// Event channel full, try again on the next tick
		w.pending = true
	}
}

func (w *Watcher) sendErr(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

// HashFile computes the BLAKE2b-256 hash of a file using streaming.
// The result equals the digest the text source computes over the same content.
func HashFile(path string) ([32]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, 0, err
	}
	defer f.Close()

	h, _ := blake2b.New256(nil)
	size, err := io.Copy(h, f)
	if err != nil {
		return [32]byte{}, 0, err
	}

	var hash [32]byte
	copy(hash[:], h.Sum(nil))
	return hash, size, nil
}
