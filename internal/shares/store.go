// Package shares persists the set of files a peer has published so the
// publications can be replayed after a restart or a re-authentication.
package shares

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const SharesBucket = "shares"

// Share is one published file.
type Share struct {
	Filename    string
	Path        string
	PublishedAt time.Time
}

type Config struct {
	Path       string
	FileMode   os.FileMode
	Options    *bbolt.Options
	Serializer Serializer
}

// Store is a bbolt-backed set of shares keyed by filename.
type Store struct {
	db         *bbolt.DB
	mu         sync.RWMutex
	serializer Serializer
}

func Open(cfg Config) (*Store, error) {
	if cfg.Serializer == nil {
		cfg.Serializer = &GobSerializer{}
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0600
	}
	if cfg.Options == nil {
		cfg.Options = &bbolt.Options{Timeout: time.Second}
	}

	db, err := bbolt.Open(cfg.Path, cfg.FileMode, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("open shares db %s: %w", cfg.Path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(SharesBucket)); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Store{db: db, serializer: cfg.Serializer}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return ErrNilDB
	}
	return s.db.Close()
}

// Put records or replaces a share.
func (s *Store) Put(sh Share) error {
	if sh.Filename == "" {
		return ErrEmptyFilename
	}

	data, err := s.serializer.Serialize(sh)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(SharesBucket))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(sh.Filename), data)
	})
}

func (s *Store) Get(filename string) (Share, error) {
	var sh Share

	s.mu.RLock()
	defer s.mu.RUnlock()

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(SharesBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		data := bucket.Get([]byte(filename))
		if data == nil {
			return ErrShareNotFound
		}
		return s.serializer.Deserialize(data, &sh)
	})
	if err != nil {
		return Share{}, err
	}
	return sh, nil
}

// All returns every share ordered by publication time.
func (s *Store) All() ([]Share, error) {
	var all []Share

	s.mu.RLock()
	defer s.mu.RUnlock()

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(SharesBucket))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(_, v []byte) error {
			var sh Share
			if err := s.serializer.Deserialize(v, &sh); err != nil {
				return err
			}
			all = append(all, sh)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].PublishedAt.Before(all[j].PublishedAt)
	})
	return all, nil
}

// Delete removes a share. Deleting an unknown filename is not an error.
func (s *Store) Delete(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(SharesBucket))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(filename))
	})
}
