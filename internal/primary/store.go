package primary

import (
	"bytes"
	"encoding/binary"

	"hashkv/internal/blockindex"
	"hashkv/internal/codec"
	"hashkv/internal/diskcache"
	"hashkv/internal/errs"
)

// Store is the on-disk hashed key-value file: Set/Get/Delete probe a
// key's redundant block chain for a matching slot, exactly as described
// for the inverted-index file's prefix chains, but one level flatter
// (slot -> entry, no linked list).
type Store struct {
	pool           *diskcache.Pool
	layout         Layout
	path           string
	bufferCapacity int
}

// Open opens (creating if absent) the primary file at path. When the file
// already exists, the on-disk header wins over maxKeys/redundantBlocks:
// geometry is always recomputed from what was actually written at
// creation time, never from the caller's current arguments.
func Open(path string, maxKeys uint64, redundantBlocks uint16, pageSize int, bufferCapacity int) (*Store, error) {
	requested := codec.Header{Magic: Magic, BlockSize: uint32(pageSize), MaxKeys: maxKeys, RedundantBlocks: redundantBlocks}
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
		return nil, &errs.ParseError{Reason: "primary file: bad magic"}
	}

	return &Store{pool: pool, layout: NewLayout(stored), path: path, bufferCapacity: bufferCapacity}, nil
}

func initBytes(h codec.Header, layout Layout) []byte {
	buf := make([]byte, layout.ValuesStartPoint())
	copy(buf, codec.EncodeHeader(h))
	return buf
}

func (s *Store) Close() error { return s.pool.Close() }

func (s *Store) Layout() Layout { return s.layout }

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

func readEntryAt(pool *diskcache.Pool, offset int64) (codec.KeyValueEntry, error) {
	head, err := pool.ReadAt(offset, 4, diskcache.KindKeyValue)
	if err != nil {
		return codec.KeyValueEntry{}, err
	}
	size, err := codec.PeekEntrySize(head)
	if err != nil {
		return codec.KeyValueEntry{}, err
	}
	full, err := pool.ReadAt(offset, int(size), diskcache.KindKeyValue)
	if err != nil {
		return codec.KeyValueEntry{}, err
	}
	return codec.DecodeKeyValueEntry(full)
}

// Set stores key/value with the given absolute expiry (0 means no expiry)
// and returns the file offset the new entry was appended at, so that an
// inverted index can reference it.
func (s *Store) Set(key, value []byte, expiry uint64) (int64, error) {
	offsets := blockindex.SlotOffsets(s.layout.Geometry, key)
	for _, slotOffset := range offsets {
		ptr, err := readSlot(s.pool, slotOffset)
		if err != nil {
			return 0, err
		}
		if ptr == 0 {
			return s.appendAndPoint(key, value, expiry, slotOffset)
		}
		ent, err := readEntryAt(s.pool, int64(ptr))
		if err != nil {
			return 0, err
		}
		if bytes.Equal(ent.Key, key) {
			return s.appendAndPoint(key, value, expiry, slotOffset)
		}
	}
	return 0, errs.ErrCollisionSaturated
}

func (s *Store) appendAndPoint(key, value []byte, expiry uint64, slotOffset int64) (int64, error) {
	enc := codec.EncodeKeyValueEntry(codec.KeyValueEntry{Key: key, Value: value, Expiry: expiry})
	offset, err := s.pool.Append(enc)
	if err != nil {
		return 0, err
	}
	if err := writeSlot(s.pool, slotOffset, uint64(offset)); err != nil {
		return 0, err
	}
	return offset, nil
}

// Get returns the live, non-expired value for key, if any.
func (s *Store) Get(key []byte, now int64) ([]byte, bool, error) {
	offsets := blockindex.SlotOffsets(s.layout.Geometry, key)
	for _, slotOffset := range offsets {
		ptr, err := readSlot(s.pool, slotOffset)
		if err != nil {
			return nil, false, err
		}
		if ptr == 0 {
			continue
		}
		ent, err := readEntryAt(s.pool, int64(ptr))
		if err != nil {
			return nil, false, err
		}
		if bytes.Equal(ent.Key, key) {
			return liveValue(ent, now)
		}
	}
	return nil, false, nil
}

func liveValue(ent codec.KeyValueEntry, now int64) ([]byte, bool, error) {
	if ent.IsDeleted {
		return nil, false, nil
	}
	if ent.Expiry != 0 && ent.Expiry <= uint64(now) {
		return nil, false, nil
	}
	return ent.Value, true, nil
}

// GetAt reads the entry at a known absolute offset, used to materialize
// inverted-index search hits without re-hashing the key.
func (s *Store) GetAt(offset int64, now int64) (key, value []byte, ok bool, err error) {
	ent, err := readEntryAt(s.pool, offset)
	if err != nil {
		return nil, nil, false, err
	}
	value, ok, err = liveValue(ent, now)
	if err != nil || !ok {
		return nil, nil, false, err
	}
	return ent.Key, value, true, nil
}

// Exists reports whether key currently has a live, non-expired entry.
func (s *Store) Exists(key []byte, now int64) (bool, error) {
	_, ok, err := s.Get(key, now)
	return ok, err
}

// AddressOf reports the current file offset of key's live, non-expired
// entry, so a caller (the inverted index's compaction, in particular) can
// keep a reference pointed at where the key lives now rather than at a
// stale pre-compaction offset.
func (s *Store) AddressOf(key []byte, now int64) (int64, bool, error) {
	offsets := blockindex.SlotOffsets(s.layout.Geometry, key)
	for _, slotOffset := range offsets {
		ptr, err := readSlot(s.pool, slotOffset)
		if err != nil {
			return 0, false, err
		}
		if ptr == 0 {
			continue
		}
		ent, err := readEntryAt(s.pool, int64(ptr))
		if err != nil {
			return 0, false, err
		}
		if bytes.Equal(ent.Key, key) {
			if _, ok, err := liveValue(ent, now); err != nil || !ok {
				return 0, false, err
			}
			return int64(ptr), true, nil
		}
	}
	return 0, false, nil
}

// Delete zeroes key's index slot. It is idempotent: deleting a missing
// key, or one already deleted, succeeds silently.
func (s *Store) Delete(key []byte) error {
	offsets := blockindex.SlotOffsets(s.layout.Geometry, key)
	for _, slotOffset := range offsets {
		ptr, err := readSlot(s.pool, slotOffset)
		if err != nil {
			return err
		}
		if ptr == 0 {
			continue
		}
		ent, err := readEntryAt(s.pool, int64(ptr))
		if err != nil {
			return err
		}
		if bytes.Equal(ent.Key, key) {
			return writeSlot(s.pool, slotOffset, 0)
		}
	}
	return nil
}

func (s *Store) Clear() error {
	return s.pool.ClearFile(initBytes(s.layout.Header, s.layout))
}
