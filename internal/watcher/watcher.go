// Package watcher follows a share directory and reports files that appear
// or disappear, so they can be published or unpublished automatically.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"peersync/internal/lib/logger/handlers/slogdiscard"
)

type FileWatcher struct {
	watcher   *fsnotify.Watcher
	handler   Handler
	errors    chan error
	config    Config
	logger    *slog.Logger
	debouncer *Debouncer
	stopChan  chan struct{}
	closed    bool
	wg        sync.WaitGroup
	mu        sync.Mutex
}

func NewFileWatcher(h Handler, config Config) (*FileWatcher, error) {
	if config.DebounceDuration == 0 {
		config.DebounceDuration = DefaultDebounceDuration
	}
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.IgnorePatterns == nil {
		config.IgnorePatterns = IgnoredPatterns
	}
	if config.Logger == nil {
		config.Logger = slogdiscard.NewDiscardLogger()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		watcher:   w,
		handler:   h,
		errors:    make(chan error, config.BufferSize),
		config:    config,
		logger:    config.Logger.With(slog.String("component", "watcher")),
		debouncer: NewDebouncer(config.DebounceDuration),
		stopChan:  make(chan struct{}),
	}

	fw.wg.Add(1)
	go fw.run()

	return fw, nil
}

// Watch follows a single directory, not its subdirectories.
func (fw *FileWatcher) Watch(dir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return ErrWatcherClosed
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}

	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	fw.logger.Info("Watching directory", slog.String("dir", dir))
	return nil
}

func (fw *FileWatcher) run() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.stopChan:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fw.shouldProcessEvent(event) {
				fw.processEvent(event)
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.handleError(err)
		}
	}
}

func (fw *FileWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&WatchedEvents == 0 {
		return false
	}

	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	for _, pattern := range fw.config.IgnorePatterns {
		if strings.Contains(base, pattern) {
			fw.logger.Debug("Ignoring file", slog.String("path", event.Name), slog.String("pattern", pattern))
			return false
		}
	}

	return true
}

// processEvent waits for the path to settle, then reports what is there.
func (fw *FileWatcher) processEvent(event fsnotify.Event) {
	path := event.Name

	fw.debouncer.Debounce(path, func() {
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if err := fw.handler.FileRemoved(path); err != nil {
				fw.handleError(fmt.Errorf("failed to handle removal of %s: %w", path, err))
			}
		case err != nil:
			fw.handleError(fmt.Errorf("stat %s: %w", path, err))
		case info.Mode().IsRegular():
			if err := fw.handler.FileAdded(path); err != nil {
				fw.handleError(fmt.Errorf("failed to handle %s: %w", path, err))
			}
		}
	})
}

func (fw *FileWatcher) handleError(err error) {
	select {
	case fw.errors <- err:
	default:
		fw.logger.Warn("Error buffer full, dropping error", slog.String("error", err.Error()))
	}
}

func (fw *FileWatcher) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return nil
	}
	fw.closed = true

	close(fw.stopChan)
	fw.debouncer.Stop()
	fw.wg.Wait()

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Errors reports handler and fsnotify failures. It is never closed.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}
