// Package storage handles low level I/O for world content blobs: one file
// per world under a configured directory, fronted by an in-memory read
// cache. World metadata lives in the relational store, not here.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	worldFileExt = ".wld"
	// Blobs stay cached for a while after their last read; a save always
	// refreshes the entry.
	cacheTTL = 5 * time.Minute
)

type Store struct {
	log *logrus.Logger
	dir string

	mu    sync.Mutex
	cache *gocache.Cache
}

// New creates the blob store rooted at dir, creating the directory if
// needed.
func New(dir string, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating world storage directory: %w", err)
	}
	return &Store{
		log:   logger,
		dir:   dir,
		cache: gocache.New(cacheTTL, 10*time.Minute),
	}, nil
}

// Put overwrites the content blob for a world. The file is truncated so a
// shorter save can never leave stale bytes behind.
func (s *Store) Put(worldID int32, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if blob == nil {
		blob = []byte{}
	}
	if err := os.WriteFile(s.fileName(worldID), blob, 0o644); err != nil {
		return fmt.Errorf("writing world %d content: %w", worldID, err)
	}
	s.cache.Set(cacheKey(worldID), blob, gocache.DefaultExpiration)

	s.log.Debugf("stored %d content bytes for world %d", len(blob), worldID)
	return nil
}

// Get returns the content blob for a world. A world that has never been
// saved yields an empty blob and found=false, never an error.
func (s *Store) Get(worldID int32) (blob []byte, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache.Get(cacheKey(worldID)); ok {
		return cached.([]byte), true, nil
	}

	blob, err = os.ReadFile(s.fileName(worldID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []byte{}, false, nil
		}
		return nil, false, fmt.Errorf("reading world %d content: %w", worldID, err)
	}

	s.cache.Set(cacheKey(worldID), blob, gocache.DefaultExpiration)
	return blob, true, nil
}

// Delete removes a world's content blob, if present.
func (s *Store) Delete(worldID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Delete(cacheKey(worldID))
	if err := os.Remove(s.fileName(worldID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing world %d content: %w", worldID, err)
	}
	return nil
}

func (s *Store) fileName(worldID int32) string {
	return filepath.Join(s.dir, strconv.Itoa(int(worldID))+worldFileExt)
}

func cacheKey(worldID int32) string {
	return strconv.Itoa(int(worldID))
}
