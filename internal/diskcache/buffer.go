package diskcache

// buffer is one page-aligned window of file content, keyed in the LRU
// cache by its left (absolute) offset.
type buffer struct {
	leftOffset int64
	data       []byte
}
