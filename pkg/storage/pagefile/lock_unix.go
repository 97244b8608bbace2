//go:build unix

package pagefile

import (
	"os"

	"golang.org/x/sys/unix"

	dberr "recordstore/pkg/error"
)

// lockFile takes an exclusive advisory lock so that two handles never drive
// the same table file.
func lockFile(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil { // #nosec G115
		e := dberr.Newf(dberr.ErrCategorySystem, "FILE_LOCKED", "%s is in use", f.Name()).
			WithHint("close the other manager holding this table first")
		e.Cause = err
		return e
	}
	return nil
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN) // #nosec G115
}
