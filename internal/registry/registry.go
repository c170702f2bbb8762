// Package registry maps published filenames to the users publishing them.
package registry

import (
	"slices"
	"strings"
	"sync"
)

// Registry is the coordinator's publication table. Filenames are opaque
// keys compared byte for byte; a filename without publishers is not kept.
type Registry struct {
	mu      sync.RWMutex
	entries map[string][]string
	// order keeps filenames in first-publication order.
	order []string
}

func New() *Registry {
	return &Registry{
		entries: make(map[string][]string),
	}
}

// Publish adds username to the publishers of filename. It is idempotent
// and reports whether the username was newly added.
func (r *Registry) Publish(filename, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	publishers, ok := r.entries[filename]
	if !ok {
		r.order = append(r.order, filename)
	}
	if slices.Contains(publishers, username) {
		return false
	}
	r.entries[filename] = append(publishers, username)
	return true
}

// Unpublish removes username from the publishers of filename and drops the
// entry once it is empty. It returns ErrNotPublished when username was not
// publishing filename.
func (r *Registry) Unpublish(filename, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	publishers, ok := r.entries[filename]
	if !ok {
		return ErrNotPublished
	}
	i := slices.Index(publishers, username)
	if i < 0 {
		return ErrNotPublished
	}

	publishers = slices.Delete(publishers, i, i+1)
	if len(publishers) > 0 {
		r.entries[filename] = publishers
		return nil
	}

	delete(r.entries, filename)
	if j := slices.Index(r.order, filename); j >= 0 {
		r.order = slices.Delete(r.order, j, j+1)
	}
	return nil
}

// ListFilenames returns every published filename. Callers must not rely on
// the order.
func (r *Registry) ListFilenames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.order)
}

// Publishers returns the users publishing filename in publication order.
func (r *Registry) Publishers(filename string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	publishers, ok := r.entries[filename]
	if !ok {
		return nil, false
	}
	return slices.Clone(publishers), true
}

// Search returns filenames containing substring (literal, case-sensitive)
// that are published by at least one user other than excluding.
func (r *Registry) Search(substring, excluding string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found []string
	for _, filename := range r.order {
		if !strings.Contains(filename, substring) {
			continue
		}
		if slices.ContainsFunc(r.entries[filename], func(u string) bool { return u != excluding }) {
			found = append(found, filename)
		}
	}
	return found
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
