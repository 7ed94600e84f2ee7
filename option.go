package hashkv

// Options configures a Store. Use the With* functions with Open rather
// than constructing Options directly.
type Options struct {
	maxKeys            uint64
	redundantBlocks    uint16
	bufferPoolCapacity int
	maxIndexKeyLen     uint64
	searchEnabled      bool
}

var defaultOptions = Options{
	maxKeys:            1_000_000,
	redundantBlocks:    1,
	bufferPoolCapacity: 10,
	maxIndexKeyLen:     3,
	searchEnabled:      false,
}

// OptionFunc mutates Options; returned by every With* function.
type OptionFunc func(*Options)

// WithMaxKeys sets the expected upper bound on live keys, used to size
// the index region at creation time. It has no effect on a store that
// already exists on disk.
func WithMaxKeys(n uint64) OptionFunc {
	return func(o *Options) { o.maxKeys = n }
}

// WithRedundantBlocks sets how many extra index blocks absorb hash
// collisions beyond the minimum needed for maxKeys. It has no effect on
// a store that already exists on disk.
func WithRedundantBlocks(n uint16) OptionFunc {
	return func(o *Options) { o.redundantBlocks = n }
}

// WithBufferPoolCapacity sets how many pages, total across both the
// index and key/value partitions, the buffer pool keeps cached per file.
func WithBufferPoolCapacity(n int) OptionFunc {
	return func(o *Options) { o.bufferPoolCapacity = n }
}

// WithSearch turns on prefix search and maintains an inverted-index
// file alongside the primary one, indexing prefixes up to
// maxIndexKeyLen bytes long.
func WithSearch(maxIndexKeyLen uint64) OptionFunc {
	return func(o *Options) {
		o.searchEnabled = true
		o.maxIndexKeyLen = maxIndexKeyLen
	}
}

func newOptions(fns ...OptionFunc) Options {
	opt := defaultOptions
	for _, fn := range fns {
		fn(&opt)
	}
	return opt
}
