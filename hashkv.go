// Package hashkv is an embedded, single-writer, file-backed key-value
// store: a hashed index of redundant blocks over an append-only value
// region, with an optional inverted index for byte-prefix search.
package hashkv

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"hashkv/internal/errs"
	"hashkv/internal/invindex"
	"hashkv/internal/primary"
	"hashkv/internal/sysutil"
)

const (
	primaryFileName = "primary.hkv"
	indexFileName   = "index.hkv"
	lockFileName    = ".hashkv.lock"
)

// KV is one result row from Search.
type KV struct {
	Key   []byte
	Value []byte
}

// Store is a single open database directory. A Store must not be opened
// from more than one *Store in the same process at a time (Open takes
// out a cross-process advisory lock, which a second in-process Open
// would just fail to acquire); within one *Store, methods are safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	dir     string
	flock   *flock.Flock
	primary *primary.Store
	index   *invindex.Store // nil unless WithSearch was given
	opts    Options
}

// Open opens the store rooted at dir, creating it if necessary.
func Open(dir string, optFns ...OptionFunc) (*Store, error) {
	opts := newOptions(optFns...)
	if opts.searchEnabled && opts.maxIndexKeyLen == 0 {
		return nil, fmt.Errorf("%w: max index key length must be > 0 when search is enabled", errs.ErrInvalidConfiguration)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &errs.IOError{Err: err}
	}

	fl := flock.New(filepath.Join(dir, lockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, &errs.IOError{Err: err}
	}
	if !locked {
		return nil, fmt.Errorf("hashkv: store at %q is locked by another writer", dir)
	}

	pageSize := sysutil.GetPageSize()

	primaryStore, err := primary.Open(filepath.Join(dir, primaryFileName), opts.maxKeys, opts.redundantBlocks, pageSize, opts.bufferPoolCapacity)
	if err != nil {
		fl.Unlock()
		return nil, err
	}

	var indexStore *invindex.Store
	if opts.searchEnabled {
		indexStore, err = invindex.Open(filepath.Join(dir, indexFileName), opts.maxKeys, opts.redundantBlocks, opts.maxIndexKeyLen, pageSize, opts.bufferPoolCapacity)
		if err != nil {
			primaryStore.Close()
			fl.Unlock()
			return nil, err
		}
	}

	logrus.WithFields(logrus.Fields{"dir": dir, "search": opts.searchEnabled}).Info("hashkv: store opened")

	return &Store{dir: dir, flock: fl, primary: primaryStore, index: indexStore, opts: opts}, nil
}

// Set stores value under key. ttlSeconds, when non-nil, makes the entry
// expire ttlSeconds after now; a nil ttlSeconds means no expiry.
func (s *Store) Set(key, value []byte, ttlSeconds *uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiry uint64
	if ttlSeconds != nil {
		expiry = uint64(sysutil.Now()) + uint64(*ttlSeconds)
	}

	kvAddress, err := s.primary.Set(key, value, expiry)
	if err != nil {
		return err
	}

	if s.index != nil {
		if err := s.index.Add(key, uint64(kvAddress), expiry); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the current value for key, or (nil, nil) if key is absent,
// deleted, or expired.
func (s *Store) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok, err := s.primary.Get(key, sysutil.Now())
	if err != nil || !ok {
		return nil, err
	}
	return value, nil
}

// Delete removes key. Deleting a missing key succeeds silently.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.primary.Delete(key); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Remove(key); err != nil {
			return err
		}
	}
	return nil
}

// Clear empties the store, leaving an empty primary (and, if search is
// enabled, inverted-index) file in its place.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.primary.Clear(); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Clear(); err != nil {
			return err
		}
	}
	return nil
}

// Search returns every live, non-expired (key, value) pair whose key
// contains term, skipping the first skip matches and returning at most
// limit of them (limit of 0 means unbounded). Search returns an error if
// the store was opened without WithSearch.
func (s *Store) Search(term []byte, skip, limit uint64) ([]KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index == nil {
		return nil, fmt.Errorf("hashkv: search is not enabled for store at %q", s.dir)
	}

	addrs, err := s.index.Search(term, skip, limit)
	if err != nil {
		return nil, err
	}

	now := sysutil.Now()
	results := make([]KV, 0, len(addrs))
	for _, addr := range addrs {
		key, value, ok, err := s.primary.GetAt(int64(addr), now)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		results = append(results, KV{Key: key, Value: value})
	}
	return results, nil
}

// Compact rewrites both files in place, dropping tombstoned and expired
// entries. It blocks all other Store operations for its duration.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logrus.WithField("dir", s.dir).Info("hashkv: compaction starting")

	now := sysutil.Now()
	if err := s.primary.Compact(now); err != nil {
		logrus.WithError(err).WithField("dir", s.dir).Error("hashkv: primary compaction failed")
		return err
	}
	if s.index != nil {
		if err := s.index.Compact(func(key []byte) (bool, uint64) {
			addr, ok, err := s.primary.AddressOf(key, now)
			return err == nil && ok, uint64(addr)
		}); err != nil {
			logrus.WithError(err).WithField("dir", s.dir).Error("hashkv: inverted-index compaction failed")
			return err
		}
	}

	logrus.WithField("dir", s.dir).Info("hashkv: compaction finished")
	return nil
}

// Close releases the store's file handles and its cross-process lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.index != nil {
		if err := s.index.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.primary.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.flock.Unlock(); err != nil && firstErr == nil {
		firstErr = &errs.IOError{Err: err}
	}
	return firstErr
}
