package codec

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"hashkv/internal/errs"
)

// invFixedSize: size(4) + index_key_size(4) + key_size(4) + is_deleted(1) +
// is_root(1) + expiry(8) + next(8) + previous(8) + kv_address(8).
const invFixedSize = 4 + 4 + 4 + 1 + 1 + 8 + 8 + 8 + 8

// InvertedIndexEntry is one node of a prefix's circular doubly-linked list
// in the inverted-index file.
type InvertedIndexEntry struct {
	IndexKey       []byte
	Key            []byte
	IsDeleted      bool
	IsRoot         bool
	Expiry         uint64
	NextOffset     uint64
	PreviousOffset uint64
	KVAddress      uint64
}

// InvertedIndexEntrySize reports the exact encoded length of e without
// encoding it.
func InvertedIndexEntrySize(e InvertedIndexEntry) int64 {
	return int64(invFixedSize + len(e.IndexKey) + len(e.Key))
}

func EncodeInvertedIndexEntry(e InvertedIndexEntry) []byte {
	size := invFixedSize + len(e.IndexKey) + len(e.Key)
	b := make([]byte, 0, size)
	be := binary.BigEndian
	b = be.AppendUint32(b, uint32(size))
	b = be.AppendUint32(b, uint32(len(e.IndexKey)))
	b = append(b, e.IndexKey...)
	b = be.AppendUint32(b, uint32(len(e.Key)))
	b = append(b, e.Key...)
	if e.IsDeleted {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	if e.IsRoot {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = be.AppendUint64(b, e.Expiry)
	b = be.AppendUint64(b, e.NextOffset)
	b = be.AppendUint64(b, e.PreviousOffset)
	b = be.AppendUint64(b, e.KVAddress)
	return b
}

func DecodeInvertedIndexEntry(b []byte) (InvertedIndexEntry, error) {
	size, err := PeekEntrySize(b)
	if err != nil {
		return InvertedIndexEntry{}, err
	}
	if int(size) > len(b) || int(size) < invFixedSize {
		logrus.WithFields(logrus.Fields{"size": size, "buf_len": len(b)}).Error("hashkv: inverted entry size out of bounds")
		return InvertedIndexEntry{}, &errs.ParseError{Reason: "inverted entry size out of bounds"}
	}
	be := binary.BigEndian
	off := 4

	indexKeySize := be.Uint32(b[off : off+4])
	off += 4
	if off+int(indexKeySize) > int(size) {
		logrus.WithFields(logrus.Fields{"index_key_size": indexKeySize, "size": size}).Error("hashkv: inverted entry index_key_size exceeds entry size")
		return InvertedIndexEntry{}, &errs.ParseError{Reason: "inverted entry index_key_size exceeds entry size"}
	}
	indexKey := make([]byte, indexKeySize)
	copy(indexKey, b[off:off+int(indexKeySize)])
	off += int(indexKeySize)

	if off+4 > int(size) {
		logrus.WithFields(logrus.Fields{"off": off, "size": size}).Error("hashkv: inverted entry truncated before key_size")
		return InvertedIndexEntry{}, &errs.ParseError{Reason: "inverted entry truncated before key_size"}
	}
	keySize := be.Uint32(b[off : off+4])
	off += 4
	if off+int(keySize) > int(size) {
		logrus.WithFields(logrus.Fields{"key_size": keySize, "size": size}).Error("hashkv: inverted entry key_size exceeds entry size")
		return InvertedIndexEntry{}, &errs.ParseError{Reason: "inverted entry key_size exceeds entry size"}
	}
	key := make([]byte, keySize)
	copy(key, b[off:off+int(keySize)])
	off += int(keySize)

	if off+2+8+8+8+8 > int(size) {
		logrus.WithFields(logrus.Fields{"off": off, "size": size}).Error("hashkv: inverted entry truncated before trailer")
		return InvertedIndexEntry{}, &errs.ParseError{Reason: "inverted entry truncated before trailer"}
	}
	isDeleted := b[off] != 0
	off++
	isRoot := b[off] != 0
	off++
	expiry := be.Uint64(b[off : off+8])
	off += 8
	next := be.Uint64(b[off : off+8])
	off += 8
	prev := be.Uint64(b[off : off+8])
	off += 8
	kvAddr := be.Uint64(b[off : off+8])

	return InvertedIndexEntry{
		IndexKey:       indexKey,
		Key:            key,
		IsDeleted:      isDeleted,
		IsRoot:         isRoot,
		Expiry:         expiry,
		NextOffset:     next,
		PreviousOffset: prev,
		KVAddress:      kvAddr,
	}, nil
}
