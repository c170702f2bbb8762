package watcher

import (
	"log/slog"
	"time"
)

// Handler reacts to settled changes of regular files in the watched
// directory. Paths are absolute or relative the way Watch received them.
type Handler interface {
	FileAdded(path string) error
	FileRemoved(path string) error
}

// Config holds FileWatcher settings.
type Config struct {
	DebounceDuration time.Duration
	BufferSize       int
	IgnorePatterns   []string
	Logger           *slog.Logger
}
