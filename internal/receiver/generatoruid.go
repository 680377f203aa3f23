//go:build linux || darwin

package receiver

import (
	"os"
	"os/user"
	"strconv"
	"syscall"

	"github.com/oferchen/rsync-sub026/internal/flist"
)

var amRoot = os.Getuid() == 0

var inGroup = func() map[uint32]bool {
	m := make(map[uint32]bool)
	u, err := user.Current()
	if err != nil {
		return m
	}
	gids, err := u.GroupIds()
	if err != nil {
		return m
	}
	for _, gidString := range gids {
		gid64, err := strconv.ParseInt(gidString, 0, 64)
		if err != nil {
			return m
		}
		m[uint32(gid64)] = true
	}
	return m
}()

// setOwner applies entry's uid/gid to local when preservation is
// requested and permitted: changing the owning user requires root,
// changing the group requires root or membership in the target group.
// Ownership is always set with Lchown, so a symlink's own owner changes,
// not its target's.
func (rt *Transfer) setOwner(local string, entry *flist.Entry, isSymlink bool) error {
	if !rt.Opts.PreserveUid && !rt.Opts.PreserveGid {
		return nil
	}

	var st syscall.Stat_t
	var err error
	if isSymlink {
		err = lstatStat(local, &st)
	} else {
		err = statStat(local, &st)
	}
	if err != nil {
		return err
	}

	changeUid := rt.Opts.PreserveUid && amRoot && st.Uid != entry.UID
	changeGid := rt.Opts.PreserveGid && (amRoot || inGroup[entry.GID]) && st.Gid != entry.GID
	if !changeUid && !changeGid {
		return nil
	}

	uid, gid := int(st.Uid), int(st.Gid)
	if changeUid {
		uid = int(entry.UID)
	}
	if changeGid {
		gid = int(entry.GID)
	}
	return os.Lchown(local, uid, gid)
}

func lstatStat(path string, out *syscall.Stat_t) error {
	var fi, err = os.Lstat(path)
	if err != nil {
		return err
	}
	*out = *fi.Sys().(*syscall.Stat_t)
	return nil
}

func statStat(path string, out *syscall.Stat_t) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	*out = *fi.Sys().(*syscall.Stat_t)
	return nil
}
