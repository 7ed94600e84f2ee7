package invindex

import (
	"github.com/sirupsen/logrus"

	"hashkv/internal/codec"
	"hashkv/internal/diskcache"
)

// Compact rewrites the inverted-index file into a temporary sibling: for
// every prefix's chain it drops tombstoned entries and entries whose key
// resolve reports as gone, then re-emits the survivors as a fresh circular
// list before swapping the file in under the original path. resolve also
// reports the key's current primary-file address, since the primary file
// is typically compacted first and reassigns every surviving entry's
// offset — entries kept here must point at where the key lives now, not
// at the stale address they were indexed under before compaction.
func (s *Store) Compact(resolve func(key []byte) (live bool, addr uint64)) error {
	logrus.WithField("path", s.path).Info("hashkv: inverted-index compaction starting")
	tmpPath := s.path + ".compact"
	layout := s.layout

	newPool, err := diskcache.Open(tmpPath, int(layout.Header.BlockSize), s.bufferCapacity, layout.NumberOfIndexBlocks(), func() ([]byte, error) {
		return initBytes(layout.Header, layout), nil
	})
	if err != nil {
		return err
	}

	for block := 0; block < layout.NumberOfIndexBlocks(); block++ {
		for slot := 0; slot < layout.ItemsPerIndexBlock(); slot++ {
			slotOffset := int64(codec.HeaderSize) + int64(block)*int64(layout.NetBlockSize()) + int64(slot)*8

			ptr, err := readSlot(s.pool, slotOffset)
			if err != nil {
				newPool.Close()
				return err
			}
			if ptr == 0 {
				continue
			}

			live, err := s.collectLiveChain(int64(ptr), resolve)
			if err != nil {
				newPool.Close()
				return err
			}
			if len(live) == 0 {
				continue
			}

			newRootOff, err := emitFreshList(newPool, live)
			if err != nil {
				newPool.Close()
				return err
			}
			if err := writeSlot(newPool, slotOffset, newRootOff); err != nil {
				newPool.Close()
				return err
			}
		}
	}

	if err := newPool.Close(); err != nil {
		return err
	}
	if err := s.pool.ReplaceFile(tmpPath); err != nil {
		return err
	}
	logrus.WithField("path", s.path).Info("hashkv: inverted-index compaction finished")
	return nil
}

func (s *Store) collectLiveChain(rootOff int64, resolve func([]byte) (bool, uint64)) ([]codec.InvertedIndexEntry, error) {
	var live []codec.InvertedIndexEntry
	curOff := rootOff
	for {
		cur, err := readEntryAt(s.pool, curOff)
		if err != nil {
			return nil, err
		}
		if !cur.IsDeleted {
			if ok, addr := resolve(cur.Key); ok {
				cur.KVAddress = addr
				live = append(live, cur)
			}
		}
		next := int64(cur.NextOffset)
		if next == rootOff {
			break
		}
		curOff = next
	}
	return live, nil
}

// emitFreshList appends entries to pool as a brand new circular list,
// returning the offset of its new root.
func emitFreshList(pool *diskcache.Pool, entries []codec.InvertedIndexEntry) (uint64, error) {
	base := pool.FileSize()
	offsets := make([]int64, len(entries))
	cursor := base
	for i, e := range entries {
		offsets[i] = cursor
		cursor += codec.InvertedIndexEntrySize(e)
	}

	n := len(entries)
	for i, e := range entries {
		e.IsRoot = i == 0
		e.IsDeleted = false
		e.NextOffset = uint64(offsets[(i+1)%n])
		e.PreviousOffset = uint64(offsets[(i-1+n)%n])
		if _, err := pool.Append(codec.EncodeInvertedIndexEntry(e)); err != nil {
			return 0, err
		}
	}
	return uint64(offsets[0]), nil
}
