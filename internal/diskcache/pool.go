// Package diskcache wraps a single backing file with a page-granularity
// buffer pool split into an index partition and a key/value partition,
// each an independent LRU over fixed-size pages.
package diskcache

import (
	"io"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"hashkv/internal/errs"
)

// Kind selects which LRU partition a read should be cached in.
type Kind int

const (
	KindIndex Kind = iota
	KindKeyValue
)

// Pool serializes reads and writes against one backing file behind a
// two-partition page cache. All exported methods are safe to call from
// multiple goroutines.
type Pool struct {
	file         *os.File
	path         string
	bufferSize   int
	fileSizeHint int64
	indexCache   *lru.Cache[int64, *buffer]
	kvCache      *lru.Cache[int64, *buffer]

	mu sync.Mutex
}

// Open opens path, creating it (and calling initIfMissing for the initial
// bytes to write) if it does not already exist or is empty. capacity is
// the total number of pages to keep cached, split 2:3 between the index
// and key/value partitions with the index side capped to indexBlocks,
// since it can never usefully hold more pages than there are blocks.
func Open(path string, bufferSize, capacity, indexBlocks int, initIfMissing func() ([]byte, error)) (*Pool, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		logrus.WithError(err).WithField("path", path).Error("hashkv: failed to open backing file")
		return nil, &errs.IOError{Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		logrus.WithError(err).WithField("path", path).Error("hashkv: failed to stat backing file")
		return nil, &errs.IOError{Err: err}
	}

	var sizeHint int64
	if info.Size() == 0 {
		initBytes, err := initIfMissing()
		if err != nil {
			f.Close()
			return nil, err
		}
		n, err := f.WriteAt(initBytes, 0)
		if err != nil {
			f.Close()
			logrus.WithError(err).WithField("path", path).Error("hashkv: failed to write initial header")
			return nil, &errs.IOError{Err: err}
		}
		sizeHint = int64(n)
	} else {
		sizeHint = info.Size()
	}

	idxCap := capacity * 2 / 5
	if idxCap < 1 {
		idxCap = 1
	}
	kvCap := capacity - idxCap
	if indexBlocks > 0 && idxCap > indexBlocks {
		kvCap += idxCap - indexBlocks
		idxCap = indexBlocks
	}
	if idxCap < 1 {
		idxCap = 1
	}
	if kvCap < 1 {
		kvCap = 1
	}

	indexCache, err := lru.New[int64, *buffer](idxCap)
	if err != nil {
		f.Close()
		return nil, &errs.IOError{Err: err}
	}
	kvCache, err := lru.New[int64, *buffer](kvCap)
	if err != nil {
		f.Close()
		return nil, &errs.IOError{Err: err}
	}

	return &Pool{
		file:         f,
		path:         path,
		bufferSize:   bufferSize,
		fileSizeHint: sizeHint,
		indexCache:   indexCache,
		kvCache:      kvCache,
	}, nil
}

// FileSize returns the current logical end of the file — the offset the
// next Append will land at.
func (p *Pool) FileSize() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fileSizeHint
}

// ReadAt returns a copy of size bytes starting at offset. Reads that fit
// within a single page are served from (and populate) the LRU partition
// chosen by kind; reads spanning more than one page bypass the cache.
func (p *Pool) ReadAt(offset int64, size int, kind Kind) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pageStart := offset - offset%int64(p.bufferSize)
	pageEnd := pageStart + int64(p.bufferSize)
	if offset+int64(size) > pageEnd {
		return p.readDirect(offset, size)
	}

	cache := p.cacheFor(kind)
	buf, ok := cache.Get(pageStart)
	if !ok {
		data, err := p.loadPage(pageStart)
		if err != nil {
			logrus.WithError(err).WithField("page", pageStart).Error("hashkv: page load failed")
			return nil, err
		}
		buf = &buffer{leftOffset: pageStart, data: data}
		cache.Add(pageStart, buf)
	}

	start := offset - pageStart
	if start+int64(size) > int64(len(buf.data)) {
		logrus.WithFields(logrus.Fields{"offset": offset, "size": size}).Error("hashkv: read-at past end of page")
		return nil, &errs.IOError{Err: io.ErrUnexpectedEOF}
	}
	out := make([]byte, size)
	copy(out, buf.data[start:start+int64(size)])
	return out, nil
}

// Append writes b at the current end of file and returns the offset it
// was written at.
func (p *Pool) Append(b []byte) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset := p.fileSizeHint
	n, err := p.file.WriteAt(b, offset)
	if err != nil {
		logrus.WithError(err).WithField("offset", offset).Error("hashkv: append failed")
		return 0, &errs.IOError{Err: err}
	}
	if n != len(b) {
		logrus.WithField("offset", offset).Error("hashkv: append wrote short")
		return 0, &errs.IOError{Err: io.ErrShortWrite}
	}
	p.fileSizeHint += int64(n)
	p.invalidateRange(offset, len(b))
	return offset, nil
}

// ReplaceAt overwrites an existing byte range in place. The range must
// already exist within the file (it is used for index slots and for
// patching already-appended entries, never to grow the file).
func (p *Pool) ReplaceAt(offset int64, b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.file.WriteAt(b, offset)
	if err != nil {
		logrus.WithError(err).WithField("offset", offset).Error("hashkv: replace-at failed")
		return &errs.IOError{Err: err}
	}
	if n != len(b) {
		logrus.WithField("offset", offset).Error("hashkv: replace-at wrote short")
		return &errs.IOError{Err: io.ErrShortWrite}
	}
	p.invalidateRange(offset, len(b))
	return nil
}

// ClearFile truncates the file and rewrites it with headerAndIndex,
// purging both cache partitions.
func (p *Pool) ClearFile(headerAndIndex []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.file.Truncate(0); err != nil {
		logrus.WithError(err).WithField("path", p.path).Error("hashkv: truncate failed")
		return &errs.IOError{Err: err}
	}
	n, err := p.file.WriteAt(headerAndIndex, 0)
	if err != nil {
		logrus.WithError(err).WithField("path", p.path).Error("hashkv: failed to rewrite header after clear")
		return &errs.IOError{Err: err}
	}
	if n != len(headerAndIndex) {
		logrus.WithField("path", p.path).Error("hashkv: wrote short header after clear")
		return &errs.IOError{Err: io.ErrShortWrite}
	}
	p.fileSizeHint = int64(n)
	p.indexCache.Purge()
	p.kvCache.Purge()
	return nil
}

// ReplaceFile atomically swaps the backing file for newPath: it closes the
// current file, renames newPath over it, reopens, and purges both caches.
// newPath must be on the same filesystem as p's path. The rename alone
// (not a Remove followed by a Rename) is what makes this atomic: if it
// fails, the original file is untouched.
func (p *Pool) ReplaceFile(newPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.file.Close(); err != nil {
		return &errs.IOError{Err: err}
	}
	if err := os.Rename(newPath, p.path); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"path": p.path, "tmp": newPath}).Error("hashkv: failed to rename compacted file into place")
		return &errs.IOError{Err: err}
	}
	f, err := os.OpenFile(p.path, os.O_RDWR, 0o644)
	if err != nil {
		logrus.WithError(err).WithField("path", p.path).Error("hashkv: failed to reopen file after compaction swap")
		return &errs.IOError{Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		logrus.WithError(err).WithField("path", p.path).Error("hashkv: failed to stat file after compaction swap")
		return &errs.IOError{Err: err}
	}

	p.file = f
	p.fileSizeHint = info.Size()
	p.indexCache.Purge()
	p.kvCache.Purge()
	return nil
}

// Close releases the backing file handle.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.file.Close(); err != nil {
		logrus.WithError(err).WithField("path", p.path).Error("hashkv: failed to close backing file")
		return &errs.IOError{Err: err}
	}
	return nil
}

func (p *Pool) cacheFor(kind Kind) *lru.Cache[int64, *buffer] {
	if kind == KindIndex {
		return p.indexCache
	}
	return p.kvCache
}

func (p *Pool) loadPage(pageStart int64) ([]byte, error) {
	length := p.bufferSize
	if pageStart+int64(length) > p.fileSizeHint {
		length = int(p.fileSizeHint - pageStart)
	}
	if length <= 0 {
		return nil, nil
	}
	buf := make([]byte, length)
	if _, err := p.file.ReadAt(buf, pageStart); err != nil && err != io.EOF {
		return nil, &errs.IOError{Err: err}
	}
	return buf, nil
}

func (p *Pool) readDirect(offset int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := p.file.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, &errs.IOError{Err: err}
	}
	return buf, nil
}

// invalidateRange drops every cached page in either partition that
// overlaps [offset, offset+size), called with mu already held.
func (p *Pool) invalidateRange(offset int64, size int) {
	end := offset + int64(size)
	for _, c := range [2]*lru.Cache[int64, *buffer]{p.indexCache, p.kvCache} {
		for _, k := range c.Keys() {
			if k < end && k+int64(p.bufferSize) > offset {
				c.Remove(k)
			}
		}
	}
}
