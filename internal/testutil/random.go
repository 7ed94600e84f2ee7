// Package testutil holds small helpers shared across hashkv's test files.
package testutil

import "math/rand"

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomBytes returns a pseudo-random byte slice of the given length,
// good enough for throwaway test keys and values.
func RandomBytes(r *rand.Rand, length int) []byte {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[r.Intn(len(charset))]
	}
	return b
}
