// Package fsutil wraps golang.org/x/sys/unix calls the local-copy
// executor needs beyond the standard library: device node creation,
// preallocation with graceful fallback, symlink timestamp updates, and
// device number packing (spec.md §4.E; SPEC_FULL §B).
package fsutil

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Mkdev packs a (major, minor) pair into the kernel's dev_t encoding.
func Mkdev(major, minor uint32) uint64 {
	return unix.Mkdev(major, minor)
}

// Devmajor/Devminor unpack a dev_t back into its major/minor components.
func Devmajor(dev uint64) uint32 { return unix.Major(dev) }
func Devminor(dev uint64) uint32 { return unix.Minor(dev) }

// Mknod creates a device node, FIFO, or socket at path. mode must
// include the S_IF* type bits (the caller's flist.Entry.Mode already
// does).
func Mknod(path string, mode uint32, major, minor uint32) error {
	return unix.Mknod(path, mode, int(Mkdev(major, minor)))
}

// Fallocate preallocates size bytes for the file backing f, falling back
// to Truncate when the filesystem or kernel doesn't support
// fallocate(2) (ENOTSUP/ENOSYS) or rejects the particular mode (EINVAL),
// which happens on some network and overlay filesystems.
func Fallocate(f *os.File, size int64) error {
	err := unix.Fallocate(int(f.Fd()), 0, 0, size)
	switch err {
	case nil:
		return nil
	case unix.ENOTSUP, unix.ENOSYS, unix.EINVAL, unix.EOPNOTSUPP:
		return f.Truncate(size)
	default:
		return err
	}
}

// Lutimes sets a symlink's own modification time without following it,
// using utimensat with AT_SYMLINK_NOFOLLOW (spec.md §3, "Symlink times"
// compatibility flag).
func Lutimes(path string, mtime time.Time) error {
	ts := []unix.Timespec{
		unix.NsecToTimespec(time.Now().UnixNano()), // atime: leave effectively "now"
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, unix.AT_SYMLINK_NOFOLLOW)
}
