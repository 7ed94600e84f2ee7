// Package invindex implements the inverted-index file: a hashed index
// region keyed by key prefixes, each slot pointing at the root of a
// circular doubly-linked list of InvertedIndexEntry nodes sharing that
// prefix.
package invindex

import (
	"hashkv/internal/blockindex"
	"hashkv/internal/codec"
)

// Magic identifies an inverted-index hashkv file.
var Magic = [16]byte{'S', 'c', 'd', 'b', 'I', 'n', 'd', 'e', 'x', ' ', 'v', '0', '.', '0', '0', '1'}

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
func (l Layout) MaxIndexKeyLen() int      { return int(l.Header.MaxIndexKeyLen) }
