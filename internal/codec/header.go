// Package codec implements the big-endian, fixed-layout binary encodings
// shared by the primary key-value file and the inverted-index file: the
// 100-byte header and the two variable-length entry records.
package codec

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"hashkv/internal/errs"
)

// HeaderSize is the fixed byte size of every hashkv file header, regardless
// of which fields a particular file kind actually uses.
const HeaderSize = 100

// Header is the first 100 bytes of both the primary and the inverted-index
// file. MaxIndexKeyLen is only meaningful in the inverted-index header; it
// is left zero (and still written, satisfying the reserved-must-be-zero
// rule) in the primary header.
type Header struct {
	Magic           [16]byte
	BlockSize       uint32
	MaxKeys         uint64
	RedundantBlocks uint16
	MaxIndexKeyLen  uint64
}

// EncodeHeader renders h into a fresh 100-byte buffer, zeroing everything
// past the fields it knows about.
func EncodeHeader(h Header) []byte {
	b := make([]byte, HeaderSize)
	copy(b[0:16], h.Magic[:])
	binary.BigEndian.PutUint32(b[16:20], h.BlockSize)
	binary.BigEndian.PutUint64(b[20:28], h.MaxKeys)
	binary.BigEndian.PutUint16(b[28:30], h.RedundantBlocks)
	binary.BigEndian.PutUint64(b[30:38], h.MaxIndexKeyLen)
	return b
}

// DecodeHeader parses the first 100 bytes of a hashkv file. It does not
// check the magic; callers compare it against the magic of the file kind
// they expect to open.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		logrus.WithField("buf_len", len(b)).Error("hashkv: header shorter than 100 bytes")
		return Header{}, &errs.ParseError{Reason: "header shorter than 100 bytes"}
	}
	var h Header
	copy(h.Magic[:], b[0:16])
	h.BlockSize = binary.BigEndian.Uint32(b[16:20])
	h.MaxKeys = binary.BigEndian.Uint64(b[20:28])
	h.RedundantBlocks = binary.BigEndian.Uint16(b[28:30])
	h.MaxIndexKeyLen = binary.BigEndian.Uint64(b[30:38])
	return h, nil
}
