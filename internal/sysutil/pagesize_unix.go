//go:build unix

package sysutil

import "golang.org/x/sys/unix"

// GetPageSize reports the OS memory page size, used as the index block
// size (and buffer pool page size) when a file is created.
func GetPageSize() int {
	return unix.Getpagesize()
}
