// Package blockindex computes the derived geometry of a hashed, redundant-
// block index region and the xxhash-based slot probing shared by the
// primary file and the inverted-index file.
package blockindex

import (
	"github.com/cespare/xxhash/v2"

	"hashkv/internal/codec"
)

// Geometry is the layout derived from a file's header: how many 8-byte
// slots fit in a block, how many blocks exist (including redundant ones),
// and where the index region ends.
type Geometry struct {
	ItemsPerBlock  int
	NumberOfBlocks int
	NetBlockSize   int
}

// NewGeometry derives a Geometry from header fields. The declared block
// size is rounded down to whole slots: NetBlockSize is the largest
// multiple of 8 not exceeding BlockSize.
func NewGeometry(h codec.Header) Geometry {
	itemsPerBlock := int(h.BlockSize) / 8
	if itemsPerBlock < 1 {
		itemsPerBlock = 1
	}
	numBlocks := int(ceilDiv(h.MaxKeys, uint64(itemsPerBlock))) + int(h.RedundantBlocks)
	if numBlocks < 1 {
		numBlocks = 1
	}
	return Geometry{
		ItemsPerBlock:  itemsPerBlock,
		NumberOfBlocks: numBlocks,
		NetBlockSize:   itemsPerBlock * 8,
	}
}

// ValuesStartPoint is the absolute offset where the append-only value
// region begins, right after the header and every index block.
func (g Geometry) ValuesStartPoint() int64 {
	return int64(codec.HeaderSize) + int64(g.NetBlockSize)*int64(g.NumberOfBlocks)
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Hash64 is the hash used to place a key (or index prefix) within a block.
func Hash64(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// SlotOffsets returns, in probe order, the absolute byte offset of key's
// 8-byte slot in every block. Hash64 picks the slot position within a
// block; blocks are probed in order from block 0 through the last
// redundant block.
func SlotOffsets(g Geometry, key []byte) []int64 {
	withinBlock := int64(Hash64(key)%uint64(g.ItemsPerBlock)) * 8
	offsets := make([]int64, g.NumberOfBlocks)
	for i := 0; i < g.NumberOfBlocks; i++ {
		offsets[i] = int64(codec.HeaderSize) + int64(i)*int64(g.NetBlockSize) + withinBlock
	}
	return offsets
}
