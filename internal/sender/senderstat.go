//go:build linux || darwin

package sender

import (
	"os"
	"syscall"

	"github.com/oferchen/rsync-sub026/internal/flist"
	"github.com/oferchen/rsync-sub026/internal/fsutil"
)

// fillPlatformMetadata populates the uid/gid/device-number fields the
// flist wire codec can carry. It fills them regardless of the preserve
// options; internal/flist/codec.go decides from PreserveUID/PreserveGID/
// PreserveDevices whether each is written.
func fillPlatformMetadata(e *flist.Entry, fi os.FileInfo) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	e.UID = st.Uid
	e.GID = st.Gid
	if fi.Mode()&os.ModeDevice != 0 {
		e.RdevMajor = fsutil.Devmajor(uint64(st.Rdev))
		e.RdevMinor = fsutil.Devminor(uint64(st.Rdev))
	}
}
