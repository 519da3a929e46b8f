// Package watcher turns fsnotify notifications into debounced batches of
// build events.
//
// Events are filtered by glob before they reach the debouncer. Within one
// debounce window every path appears once, in the order it was first seen,
// carrying its most recent event type.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/assetkit/internal/logging"
	"github.com/conneroisu/assetkit/internal/source"
)

// FileWatcher watches for file changes with per-path debouncing
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	logger    logging.Logger
	mutex     sync.RWMutex
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType is the build event kind of a change.
type EventType int

const (
	EventTypeOther EventType = iota
	EventTypeAdded
	EventTypeChanged
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeAdded:
		return "add"
	case EventTypeChanged:
		return "change"
	default:
		return "other"
	}
}

// Actionable reports whether the event may trigger a rebuild.
func (e EventType) Actionable() bool {
	return e == EventTypeAdded || e == EventTypeChanged
}

// TypeOf maps an fsnotify operation to an EventType. Create wins over
// Write when both are set.
func TypeOf(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Create):
		return EventTypeAdded
	case op.Has(fsnotify.Write):
		return EventTypeChanged
	default:
		return EventTypeOther
	}
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// ChangeHandler handles file change events
type ChangeHandler func(events []ChangeEvent) error

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	index   map[string]int
	mutex   sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// NewDebouncer creates a Debouncer that flushes delay after the last event.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		events: make(chan ChangeEvent, 256),
		output: make(chan []ChangeEvent, 16),
		index:  make(map[string]int),
		done:   make(chan struct{}),
	}
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}

	return &FileWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(debounceDelay),
		logger:    logger.WithComponent("watcher"),
	}, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddPath adds a path to watch
func (fw *FileWatcher) AddPath(path string) error {
	cleanPath, err := validatePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return fw.watcher.Add(cleanPath)
}

// AddRecursive adds a directory and all subdirectories to watch
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot, err := validatePath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.WalkDir(cleanRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); path != cleanRoot && (name == ".git" || name == "node_modules") {
			return filepath.SkipDir
		}

		return fw.watcher.Add(path)
	})
}

// WatchGlobs watches the static roots of patterns recursively and only
// lets matching files through. Roots that do not exist yet are skipped.
func (fw *FileWatcher) WatchGlobs(patterns []string) error {
	for _, root := range source.Roots(patterns) {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			fw.logger.Debug(context.Background(), "Skipping missing watch root", "root", root)
			continue
		}
		if err := fw.AddRecursive(root); err != nil {
			return err
		}
	}
	fw.AddFilter(GlobFilter(patterns))

	return nil
}

// validatePath cleans path and rejects relative paths that climb above the
// working directory.
func validatePath(path string) (string, error) {
	cleanPath := filepath.Clean(path)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path contains directory traversal: %s", path)
	}

	return cleanPath, nil
}

// Start starts the file watcher
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.debouncer.start(ctx)
	go fw.processEvents(ctx)
	go fw.watchLoop(ctx)

	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	fw.debouncer.stop()
	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	info, statErr := os.Stat(event.Name)

	// New directories below a watched root are watched too.
	if statErr == nil && info.IsDir() {
		if event.Op.Has(fsnotify.Create) {
			if err := fw.AddRecursive(event.Name); err != nil {
				fw.logger.Warn(ctx, err, "Cannot watch new directory", "path", event.Name)
			}
		}
		return
	}

	if !fw.accepts(event.Name) {
		return
	}

	changeEvent := ChangeEvent{
		Type: TypeOf(event.Op),
		Path: filepath.Clean(event.Name),
	}
	if statErr == nil {
		changeEvent.ModTime = info.ModTime()
		changeEvent.Size = info.Size()
	}

	select {
	case fw.debouncer.events <- changeEvent:
	case <-ctx.Done():
	}
}

func (fw *FileWatcher) accepts(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()

	for _, filter := range fw.filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.Output():
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(events); err != nil {
					fw.logger.Error(ctx, err, "File watcher handler error", "events", len(events))
				}
			}
		}
	}
}

func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.stop()
			return
		case event := <-d.events:
			d.Add(event)
		}
	}
}

// Add records event and restarts the debounce timer.
func (d *Debouncer) Add(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if i, ok := d.index[event.Path]; ok {
		d.pending[i] = event
	} else {
		d.index[event.Path] = len(d.pending)
		d.pending = append(d.pending, event)
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

// Output delivers debounced batches.
func (d *Debouncer) Output() <-chan []ChangeEvent {
	return d.output
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	if len(d.pending) == 0 {
		d.mutex.Unlock()
		return
	}
	events := d.pending
	d.pending = nil
	d.index = make(map[string]int)
	d.mutex.Unlock()

	// a stopped debouncer drops the batch instead of blocking the timer goroutine
	select {
	case d.output <- events:
	case <-d.done:
	}
}

func (d *Debouncer) stop() {
	d.once.Do(func() { close(d.done) })

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
}

// GlobFilter accepts paths matched by any of patterns.
func GlobFilter(patterns []string) FileFilter {
	return func(path string) bool {
		return source.Match(patterns, path)
	}
}

// NotUnder rejects paths inside dir, typically the output directory.
func NotUnder(dir string) FileFilter {
	dir = filepath.Clean(dir)
	return func(path string) bool {
		rel, err := filepath.Rel(dir, filepath.Clean(path))
		return err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
	}
}

// NoGitFilter rejects paths inside .git directories.
func NoGitFilter(path string) bool {
	return !strings.HasPrefix(path, ".git/") && !strings.Contains(path, "/.git/")
}

// NoNodeModulesFilter rejects installed package sources.
func NoNodeModulesFilter(path string) bool {
	return !strings.HasPrefix(path, "node_modules/") && !strings.Contains(path, "/node_modules/")
}
