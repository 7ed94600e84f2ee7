package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Magic:           [16]byte{'S', 'c', 'd', 'b', ' ', 'v', 'e', 'r', 's', 'n', ' ', '0', '.', '0', '0', '1'},
		BlockSize:       4096,
		MaxKeys:         1_000_000,
		RedundantBlocks: 1,
		MaxIndexKeyLen:  3,
	}

	enc := EncodeHeader(h)
	require.Len(t, enc, HeaderSize)

	got, err := DecodeHeader(enc)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestDecodeHeaderTooShort(t *testing.T) {
	_, err := DecodeHeader(make([]byte, 10))
	require.Error(t, err)
}

func TestKeyValueEntryRoundTrip(t *testing.T) {
	e := KeyValueEntry{Key: []byte("hey"), Value: []byte("English"), Expiry: 123, IsDeleted: false}
	enc := EncodeKeyValueEntry(e)

	size, err := PeekEntrySize(enc)
	require.NoError(t, err)
	require.EqualValues(t, len(enc), size)

	got, err := DecodeKeyValueEntry(enc)
	require.NoError(t, err)
	require.Equal(t, e, got)
}

func TestKeyValueEntryRoundTripEmptyValue(t *testing.T) {
	e := KeyValueEntry{Key: []byte("k"), Value: nil, Expiry: 0, IsDeleted: true}
	enc := EncodeKeyValueEntry(e)

	got, err := DecodeKeyValueEntry(enc)
	require.NoError(t, err)
	require.Equal(t, []byte("k"), got.Key)
	require.Empty(t, got.Value)
	require.True(t, got.IsDeleted)
}

func TestDecodeKeyValueEntryRejectsTruncated(t *testing.T) {
	e := KeyValueEntry{Key: []byte("hey"), Value: []byte("English")}
	enc := EncodeKeyValueEntry(e)

	_, err := DecodeKeyValueEntry(enc[:len(enc)-3])
	require.Error(t, err)
}

func TestInvertedIndexEntryRoundTrip(t *testing.T) {
	e := InvertedIndexEntry{
		IndexKey: []byte("he"), Key: []byte("hey"), IsDeleted: false, IsRoot: true,
		Expiry: 0, NextOffset: 200, PreviousOffset: 200, KVAddress: 100,
	}
	enc := EncodeInvertedIndexEntry(e)
	require.EqualValues(t, InvertedIndexEntrySize(e), len(enc))

	got, err := DecodeInvertedIndexEntry(enc)
	require.NoError(t, err)
	require.Equal(t, e, got)
}

func TestDecodeInvertedIndexEntryRejectsBadSize(t *testing.T) {
	_, err := DecodeInvertedIndexEntry([]byte{0, 0, 0, 255})
	require.Error(t, err)
}
