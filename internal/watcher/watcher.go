// Package watcher reports changes to stories files on disk.
//
// Stories files are replaced by rename, which swaps the inode, so the
// watcher watches each file's parent directory and filters events by
// path. Bursts of events for one file are debounced into a single call.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long a file must be quiet before OnChange fires.
const DefaultDebounce = 50 * time.Millisecond

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger for watch errors.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// WithDirs watches extra directories. Files in them are reported when
// the matcher accepts them.
func WithDirs(dirs ...string) Option {
	return func(w *Watcher) { w.extraDirs = append(w.extraDirs, dirs...) }
}

// WithMatcher accepts files beyond the explicit paths, e.g. files that
// match a tier glob.
func WithMatcher(match func(path string) bool) Option {
	return func(w *Watcher) { w.match = match }
}

// Watcher calls OnChange for every debounced change to a watched file.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	onChange func(path string)

	debounce  time.Duration
	extraDirs []string
	match     func(path string) bool
	log       zerolog.Logger

	mu      sync.Mutex
	timers  map[string]debounced
	gen     uint64
	closed  bool
	pending sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// debounced is the pending callback for one path. gen identifies the
// event that scheduled it.
type debounced struct {
	timer *time.Timer
	gen   uint64
}

// New starts watching paths. Directories that do not exist are skipped;
// at least one directory must be watchable.
func New(paths []string, onChange func(path string), opts ...Option) (*Watcher, error) {
	w := &Watcher{
		files:    make(map[string]bool),
		onChange: onChange,
		debounce: DefaultDebounce,
		log:      zerolog.Nop(),
		timers:   make(map[string]debounced),
	}
	for _, opt := range opts {
		opt(w)
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for _, d := range w.extraDirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, err
		}
		dirs[abs] = true
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := 0
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				w.log.Debug().Str("dir", dir).Msg("not watching missing directory")
				continue
			}
			_ = fw.Close()
			return nil, err
		}
		watched++
	}
	if watched == 0 {
		_ = fw.Close()
		return nil, errors.New("watcher: none of the stories directories exist")
	}

	w.watcher = fw
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Close stops watching. Pending debounced calls are dropped; a call
// already in progress finishes before Close returns.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, d := range w.timers {
		if d.timer.Stop() {
			w.pending.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()

	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	w.pending.Wait()
	return err
}

// run processes filesystem events from fsnotify.
func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watching stories files")
		}
	}
}

// handleEvent debounces a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	path, err := filepath.Abs(event.Name)
	if err != nil || !w.wanted(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if d, exists := w.timers[path]; exists && d.timer.Stop() {
		w.pending.Done()
	}
	w.gen++
	gen := w.gen
	w.pending.Add(1)
	timer := time.AfterFunc(w.debounce, func() {
		defer w.pending.Done()
		w.fire(path, gen)
	})
	w.timers[path] = debounced{timer: timer, gen: gen}
}

// fire runs onChange for path. A callback whose timer was replaced by a
// later event still fires, but only the latest one clears the entry.
func (w *Watcher) fire(path string, gen uint64) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if w.timers[path].gen == gen {
		delete(w.timers, path)
	}
	w.mu.Unlock()

	w.onChange(path)
}

func (w *Watcher) wanted(path string) bool {
	if w.files[path] {
		return true
	}
	return w.match != nil && w.match(path)
}
