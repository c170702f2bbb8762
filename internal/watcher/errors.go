package watcher

import "errors"

var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrInvalidPath   = errors.New("invalid path")
	ErrNotADirectory = errors.New("path is not a directory")
)
