package hashkv

import "hashkv/internal/errs"

// ErrCollisionSaturated is returned by Set (and internally by the
// inverted index) when every redundant block for a key's hashed slot is
// already occupied by a different key.
var ErrCollisionSaturated = errs.ErrCollisionSaturated

// ErrInvalidConfiguration is returned by Open when the supplied options
// cannot produce a usable store.
var ErrInvalidConfiguration = errs.ErrInvalidConfiguration

// IOError wraps a lower-level I/O failure. Use errors.As to recover the
// underlying error.
type IOError = errs.IOError

// ParseError reports that on-disk bytes did not decode into a valid
// entry, typically a sign of a truncated or corrupted file.
type ParseError = errs.ParseError
