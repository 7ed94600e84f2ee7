package primary

import (
	"github.com/sirupsen/logrus"

	"hashkv/internal/codec"
	"hashkv/internal/diskcache"
)

// Compact rewrites the primary file into a temporary sibling, dropping
// tombstoned and expired entries, then swaps it in under the original
// path. Surviving entries keep their slot but not their offset.
func (s *Store) Compact(now int64) error {
	logrus.WithField("path", s.path).Info("hashkv: primary compaction starting")
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

			ent, err := readEntryAt(s.pool, int64(ptr))
			if err != nil {
				newPool.Close()
				return err
			}
			if ent.IsDeleted || (ent.Expiry != 0 && ent.Expiry <= uint64(now)) {
				continue
			}

			newOffset, err := newPool.Append(codec.EncodeKeyValueEntry(ent))
			if err != nil {
				newPool.Close()
				return err
			}
			if err := writeSlot(newPool, slotOffset, uint64(newOffset)); err != nil {
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
	logrus.WithField("path", s.path).Info("hashkv: primary compaction finished")
	return nil
}
