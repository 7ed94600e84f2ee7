// Package primary implements the hashed, redundant-block key-value file:
// an 8-byte-slot index region followed by an append-only region of
// KeyValueEntry records.
package primary

import (
	"hashkv/internal/blockindex"
	"hashkv/internal/codec"
)

// Magic identifies a primary hashkv file.
var Magic = [16]byte{'S', 'c', 'd', 'b', ' ', 'v', 'e', 'r', 's', 'n', ' ', '0', '.', '0', '0', '1'}

// Layout is a header plus its derived index geometry.
type Layout struct {
	Header   codec.Header
	Geometry blockindex.Geometry
}

func NewLayout(h codec.Header) Layout {
	return Layout{Header: h, Geometry: blockindex.NewGeometry(h)}
}

func (l Layout) ValuesStartPoint() int64  { return l.Geometry.ValuesStartPoint() }
func (l Layout) ItemsPerIndexBlock() int  { return l.Geometry.ItemsPerBlock }
func (l Layout) NumberOfIndexBlocks() int { return l.Geometry.NumberOfBlocks }
func (l Layout) NetBlockSize() int        { return l.Geometry.NetBlockSize }
