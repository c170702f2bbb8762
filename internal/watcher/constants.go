package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	DefaultDebounceDuration = 500 * time.Millisecond
	DefaultBufferSize       = 100
)

var (
	// events that can change what the directory offers
	WatchedEvents = fsnotify.Create | fsnotify.Write | fsnotify.Rename | fsnotify.Remove

	// editor leftovers and in-flight downloads
	IgnoredPatterns = []string{
		":Zone.Identifier",
		".tmp",
		".part",
		"~",
	}
)
