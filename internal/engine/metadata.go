package engine

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// setPathTimes sets atime and mtime on path without following symlinks.
func setPathTimes(path string, accTime, modTime time.Time) error {
	times := []unix.Timespec{
		unix.NsecToTimespec(accTime.UnixNano()),
		unix.NsecToTimespec(modTime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("utimensat %s: %w", path, err)
	}
	return nil
}

// setFdMetadata applies permission bits and times to an open copy target.
func setFdMetadata(task FileTask, fd *os.File) error {
	rawFd := int(fd.Fd())
	if err := unix.Fchmod(rawFd, task.Mode&0o7777); err != nil {
		return fmt.Errorf("fchmod: %w", err)
	}
	return setFdTimes(rawFd, fd.Name(), task.AccTime, task.ModTime)
}

// reconcileMetadata makes a retrieved file's permission bits, ownership
// and times match the source. Ownership is only changed when chown is true,
// i.e. the process runs with elevated privilege.
func reconcileMetadata(task FileTask, chown bool) error {
	if err := unix.Chmod(task.DstPath, task.Mode&0o7777); err != nil {
		return fmt.Errorf("chmod %s: %w", task.DstPath, err)
	}
	if chown {
		if err := os.Lchown(task.DstPath, int(task.UID), int(task.GID)); err != nil {
			return fmt.Errorf("chown %s: %w", task.DstPath, err)
		}
	}
	return setPathTimes(task.DstPath, task.AccTime, task.ModTime)
}
