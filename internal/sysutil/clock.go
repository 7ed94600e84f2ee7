package sysutil

import "time"

// Now returns the current Unix timestamp in seconds, the unit every
// expiry field in the store is compared against.
func Now() int64 {
	return time.Now().Unix()
}
