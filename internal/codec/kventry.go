package codec

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"hashkv/internal/errs"
)

// kvFixedSize is the byte cost of every field except the variable-length
// key and value: size(4) + key_size(4) + expiry(8) + is_deleted(1).
const kvFixedSize = 4 + 4 + 8 + 1

// KeyValueEntry is the append-only record stored in the primary file.
type KeyValueEntry struct {
	Key       []byte
	Value     []byte
	Expiry    uint64
	IsDeleted bool
}

// EncodeKeyValueEntry lays out e as size, key_size, key, expiry,
// is_deleted, value.
func EncodeKeyValueEntry(e KeyValueEntry) []byte {
	size := kvFixedSize + len(e.Key) + len(e.Value)
	b := make([]byte, 0, size)
	be := binary.BigEndian
	b = be.AppendUint32(b, uint32(size))
	b = be.AppendUint32(b, uint32(len(e.Key)))
	b = append(b, e.Key...)
	b = be.AppendUint64(b, e.Expiry)
	if e.IsDeleted {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	return append(b, e.Value...)
}

// DecodeKeyValueEntry parses a buffer holding at least one full entry
// starting at offset 0 of b.
func DecodeKeyValueEntry(b []byte) (KeyValueEntry, error) {
	size, err := PeekEntrySize(b)
	if err != nil {
		return KeyValueEntry{}, err
	}
	if int(size) > len(b) || int(size) < kvFixedSize {
		logrus.WithFields(logrus.Fields{"size": size, "buf_len": len(b)}).Error("hashkv: kv entry size out of bounds")
		return KeyValueEntry{}, &errs.ParseError{Reason: "kv entry size out of bounds"}
	}
	be := binary.BigEndian
	keySize := be.Uint32(b[4:8])
	if int(keySize) > int(size)-kvFixedSize {
		logrus.WithFields(logrus.Fields{"key_size": keySize, "size": size}).Error("hashkv: kv entry key_size exceeds entry size")
		return KeyValueEntry{}, &errs.ParseError{Reason: "kv entry key_size exceeds entry size"}
	}
	keyEnd := 8 + int(keySize)
	if keyEnd+9 > int(size) {
		logrus.WithFields(logrus.Fields{"key_end": keyEnd, "size": size}).Error("hashkv: kv entry truncated before expiry/is_deleted")
		return KeyValueEntry{}, &errs.ParseError{Reason: "kv entry truncated before expiry/is_deleted"}
	}

	key := make([]byte, keySize)
	copy(key, b[8:keyEnd])
	expiry := be.Uint64(b[keyEnd : keyEnd+8])
	isDeleted := b[keyEnd+8] != 0

	valStart := keyEnd + 9
	value := make([]byte, int(size)-valStart)
	copy(value, b[valStart:int(size)])

	return KeyValueEntry{Key: key, Value: value, Expiry: expiry, IsDeleted: isDeleted}, nil
}

// PeekEntrySize reads only the leading 4-byte size field that both entry
// kinds start with, without requiring the rest of the entry in hand yet.
func PeekEntrySize(b []byte) (uint32, error) {
	if len(b) < 4 {
		logrus.WithField("buf_len", len(b)).Error("hashkv: buffer shorter than size field")
		return 0, &errs.ParseError{Reason: "buffer shorter than size field"}
	}
	return binary.BigEndian.Uint32(b[0:4]), nil
}
