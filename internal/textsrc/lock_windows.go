//go:build windows

package textsrc

import (
	"os"

	"golang.org/x/sys/windows"
)

// lockShared acquires a shared lock on the first byte range of a file.
func lockShared(f *os.File) error {
	var overlapped windows.Overlapped
	return windows.LockFileEx(windows.Handle(f.Fd()), 0, 0, 1, 0, &overlapped)
}

// unlock releases the lock on a file.
func unlock(f *os.File) error {
	var overlapped windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, &overlapped)
}
