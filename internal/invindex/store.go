package invindex

import (
	"bytes"
	"encoding/binary"

	"hashkv/internal/blockindex"
	"hashkv/internal/codec"
	"hashkv/internal/diskcache"
	"hashkv/internal/errs"
)

// Store is the on-disk inverted index: one circular doubly-linked list of
// InvertedIndexEntry nodes per distinct key prefix, reachable from the
// index region by the same redundant-block probing the primary file uses.
type Store struct {
	pool           *diskcache.Pool
	layout         Layout
	path           string
	bufferCapacity int
}

// Open opens (creating if absent) the inverted-index file at path. As in
// the primary file, an existing on-disk header wins over the caller's
// current arguments.
func Open(path string, maxKeys uint64, redundantBlocks uint16, maxIndexKeyLen uint64, pageSize int, bufferCapacity int) (*Store, error) {
	requested := codec.Header{
		Magic:           Magic,
		BlockSize:       uint32(pageSize),
		MaxKeys:         maxKeys,
		RedundantBlocks: redundantBlocks,
		MaxIndexKeyLen:  maxIndexKeyLen,
	}
	layout := NewLayout(requested)

	pool, err := diskcache.Open(path, pageSize, bufferCapacity, layout.NumberOfIndexBlocks(), func() ([]byte, error) {
		return initBytes(requested, layout), nil
	})
	if err != nil {
		return nil, err
	}

	headerBytes, err := pool.ReadAt(0, codec.HeaderSize, diskcache.KindIndex)
	if err != nil {
		pool.Close()
		return nil, err
	}
	stored, err := codec.DecodeHeader(headerBytes)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if stored.Magic != Magic {
		pool.Close()
		return nil, &errs.ParseError{Reason: "inverted index file: bad magic"}
	}

	return &Store{pool: pool, layout: NewLayout(stored), path: path, bufferCapacity: bufferCapacity}, nil
}

func initBytes(h codec.Header, layout Layout) []byte {
	buf := make([]byte, layout.ValuesStartPoint())
	copy(buf, codec.EncodeHeader(h))
	return buf
}

func (s *Store) Close() error { return s.pool.Close() }

func (s *Store) Clear() error {
	return s.pool.ClearFile(initBytes(s.layout.Header, s.layout))
}

func readSlot(pool *diskcache.Pool, offset int64) (uint64, error) {
	b, err := pool.ReadAt(offset, 8, diskcache.KindIndex)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func writeSlot(pool *diskcache.Pool, offset int64, value uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, value)
	return pool.ReplaceAt(offset, b)
}

func readEntryAt(pool *diskcache.Pool, offset int64) (codec.InvertedIndexEntry, error) {
	head, err := pool.ReadAt(offset, 4, diskcache.KindKeyValue)
	if err != nil {
		return codec.InvertedIndexEntry{}, err
	}
	size, err := codec.PeekEntrySize(head)
	if err != nil {
		return codec.InvertedIndexEntry{}, err
	}
	full, err := pool.ReadAt(offset, int(size), diskcache.KindKeyValue)
	if err != nil {
		return codec.InvertedIndexEntry{}, err
	}
	return codec.DecodeInvertedIndexEntry(full)
}

func (s *Store) patchEntry(offset int64, mutate func(*codec.InvertedIndexEntry)) error {
	ent, err := readEntryAt(s.pool, offset)
	if err != nil {
		return err
	}
	mutate(&ent)
	return s.pool.ReplaceAt(offset, codec.EncodeInvertedIndexEntry(ent))
}

func prefixLen(key []byte, maxLen int) int {
	if len(key) > maxLen {
		return maxLen
	}
	return len(key)
}

// Add inserts or refreshes key's membership in every prefix of length
// 1..=min(len(key), max_index_key_len).
func (s *Store) Add(key []byte, kvAddress uint64, expiry uint64) error {
	n := prefixLen(key, s.layout.MaxIndexKeyLen())
	for i := 1; i <= n; i++ {
		if err := s.addPrefix(key[:i], key, kvAddress, expiry); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) addPrefix(prefix, key []byte, kvAddress, expiry uint64) error {
	offsets := blockindex.SlotOffsets(s.layout.Geometry, prefix)
	for _, slotOffset := range offsets {
		ptr, err := readSlot(s.pool, slotOffset)
		if err != nil {
			return err
		}
		if ptr == 0 {
			return s.appendRoot(slotOffset, prefix, key, kvAddress, expiry)
		}

		rootOff := int64(ptr)
		root, err := readEntryAt(s.pool, rootOff)
		if err != nil {
			return err
		}
		if !bytes.Equal(root.IndexKey, prefix) {
			continue
		}

		curOff := rootOff
		for {
			cur, err := readEntryAt(s.pool, curOff)
			if err != nil {
				return err
			}
			if bytes.Equal(cur.Key, key) {
				return s.patchEntry(curOff, func(e *codec.InvertedIndexEntry) {
					e.Expiry = expiry
					e.KVAddress = kvAddress
					e.IsDeleted = false
				})
			}
			next := int64(cur.NextOffset)
			if next == rootOff {
				break
			}
			curOff = next
		}

		return s.insertBeforeRoot(rootOff, root, prefix, key, kvAddress, expiry)
	}
	return errs.ErrCollisionSaturated
}

func (s *Store) appendRoot(slotOffset int64, prefix, key []byte, kvAddress, expiry uint64) error {
	selfOffset := s.pool.FileSize()
	entry := codec.InvertedIndexEntry{
		IndexKey: prefix, Key: key, IsRoot: true,
		Expiry: expiry, NextOffset: uint64(selfOffset), PreviousOffset: uint64(selfOffset), KVAddress: kvAddress,
	}
	offset, err := s.pool.Append(codec.EncodeInvertedIndexEntry(entry))
	if err != nil {
		return err
	}
	return writeSlot(s.pool, slotOffset, uint64(offset))
}

// insertBeforeRoot splices a new node in just before the prefix's root,
// which also means just after the root's current predecessor. The new
// node is fully written (with correct next/previous already set) before
// either existing neighbor's pointer is patched to reference it.
func (s *Store) insertBeforeRoot(rootOff int64, root codec.InvertedIndexEntry, prefix, key []byte, kvAddress, expiry uint64) error {
	predOff := int64(root.PreviousOffset)
	entry := codec.InvertedIndexEntry{
		IndexKey: prefix, Key: key, IsRoot: false,
		Expiry: expiry, NextOffset: uint64(rootOff), PreviousOffset: uint64(predOff), KVAddress: kvAddress,
	}
	newOff, err := s.pool.Append(codec.EncodeInvertedIndexEntry(entry))
	if err != nil {
		return err
	}
	if err := s.patchEntry(predOff, func(e *codec.InvertedIndexEntry) { e.NextOffset = uint64(newOff) }); err != nil {
		return err
	}
	return s.patchEntry(rootOff, func(e *codec.InvertedIndexEntry) { e.PreviousOffset = uint64(newOff) })
}

// Remove unlinks key from every prefix chain it was added under. Missing
// keys, and keys already removed, are a silent no-op.
func (s *Store) Remove(key []byte) error {
	n := prefixLen(key, s.layout.MaxIndexKeyLen())
	for i := 1; i <= n; i++ {
		if err := s.removePrefix(key[:i], key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) removePrefix(prefix, key []byte) error {
	offsets := blockindex.SlotOffsets(s.layout.Geometry, prefix)
	for _, slotOffset := range offsets {
		ptr, err := readSlot(s.pool, slotOffset)
		if err != nil {
			return err
		}
		if ptr == 0 {
			continue
		}

		rootOff := int64(ptr)
		root, err := readEntryAt(s.pool, rootOff)
		if err != nil {
			return err
		}
		if !bytes.Equal(root.IndexKey, prefix) {
			continue
		}

		curOff := rootOff
		for {
			cur, err := readEntryAt(s.pool, curOff)
			if err != nil {
				return err
			}
			if !cur.IsDeleted && bytes.Equal(cur.Key, key) {
				return s.unlink(slotOffset, curOff, cur)
			}
			next := int64(cur.NextOffset)
			if next == rootOff {
				break
			}
			curOff = next
		}
		return nil
	}
	return nil
}

func (s *Store) unlink(slotOffset, curOff int64, cur codec.InvertedIndexEntry) error {
	prevOff := int64(cur.PreviousOffset)
	nextOff := int64(cur.NextOffset)

	if err := s.patchEntry(curOff, func(e *codec.InvertedIndexEntry) { e.IsDeleted = true }); err != nil {
		return err
	}

	if prevOff == curOff && nextOff == curOff {
		return writeSlot(s.pool, slotOffset, 0)
	}

	if err := s.patchEntry(prevOff, func(e *codec.InvertedIndexEntry) { e.NextOffset = uint64(nextOff) }); err != nil {
		return err
	}
	if err := s.patchEntry(nextOff, func(e *codec.InvertedIndexEntry) { e.PreviousOffset = uint64(prevOff) }); err != nil {
		return err
	}

	if cur.IsRoot {
		if err := s.patchEntry(nextOff, func(e *codec.InvertedIndexEntry) { e.IsRoot = true }); err != nil {
			return err
		}
		return writeSlot(s.pool, slotOffset, uint64(nextOff))
	}
	return nil
}

// Search returns, in chain-traversal order, the primary-file offsets of
// every live entry whose key contains term as a contiguous substring, after
// applying skip/limit.
func (s *Store) Search(term []byte, skip, limit uint64) ([]uint64, error) {
	n := prefixLen(term, s.layout.MaxIndexKeyLen())
	if n == 0 {
		return nil, nil
	}
	prefix := term[:n]

	offsets := blockindex.SlotOffsets(s.layout.Geometry, prefix)
	for _, slotOffset := range offsets {
		ptr, err := readSlot(s.pool, slotOffset)
		if err != nil {
			return nil, err
		}
		if ptr == 0 {
			continue
		}

		rootOff := int64(ptr)
		root, err := readEntryAt(s.pool, rootOff)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(root.IndexKey, prefix) {
			continue
		}

		var matches []uint64
		curOff := rootOff
		for {
			cur, err := readEntryAt(s.pool, curOff)
			if err != nil {
				return nil, err
			}
			if !cur.IsDeleted && bytes.Contains(cur.Key, term) {
				matches = append(matches, cur.KVAddress)
			}
			next := int64(cur.NextOffset)
			if next == rootOff {
				break
			}
			curOff = next
		}
		return paginate(matches, skip, limit), nil
	}
	return nil, nil
}

func paginate(matches []uint64, skip, limit uint64) []uint64 {
	if skip >= uint64(len(matches)) {
		return nil
	}
	matches = matches[skip:]
	if limit == 0 || limit >= uint64(len(matches)) {
		return matches
	}
	return matches[:limit]
}
