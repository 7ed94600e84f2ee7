//go:build windows

package sysutil

import "golang.org/x/sys/windows"

// GetPageSize reports the OS memory page size, used as the index block
// size (and buffer pool page size) when a file is created.
func GetPageSize() int {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)
	return int(info.PageSize)
}
