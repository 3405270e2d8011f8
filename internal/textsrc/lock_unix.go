//go:build unix

package textsrc

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockShared acquires a shared lock on a file using flock.
func lockShared(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_SH)
}

// unlock releases the lock on a file.
func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
