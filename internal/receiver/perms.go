package receiver

import (
	"os"
	"time"

	"github.com/oferchen/rsync-sub026/internal/flist"
	"github.com/oferchen/rsync-sub026/internal/fsutil"
)

// setPerms applies mode, ownership and mtime to local according to which
// -p/-o/-g/-t style options are active, mirroring upstream's
// set_file_attrs (spec.md §4.E "Metadata application"). Symlinks use
// Lutimes/Lchown since following them would touch the wrong inode.
func (rt *Transfer) setPerms(local string, entry *flist.Entry) error {
	if entry.IsSymlink() {
		if rt.Opts.PreserveTimes {
			if err := fsutil.Lutimes(local, time.Unix(entry.MTime, int64(entry.MTimeNsec))); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		return rt.setOwner(local, entry, true)
	}

	if rt.Opts.PreservePerms {
		if err := os.Chmod(local, os.FileMode(entry.Mode&0o7777)); err != nil {
			return err
		}
	}
	if err := rt.setOwner(local, entry, false); err != nil {
		return err
	}
	if rt.Opts.PreserveTimes {
		mtime := time.Unix(entry.MTime, int64(entry.MTimeNsec))
		if err := os.Chtimes(local, mtime, mtime); err != nil {
			return err
		}
	}
	return nil
}
