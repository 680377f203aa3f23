//go:build linux || darwin

package receiver

import (
	"os"

	"github.com/google/renameio/v2"

	"github.com/oferchen/rsync-sub026/internal/flist"
)

func symlink(oldname, newname string) error {
	return renameio.Symlink(oldname, newname)
}

// makeSymlink creates entry's symlink at local, replacing whatever is
// there (a symlink has no "basis" to diff against: the target string is
// the entire payload, already carried in the file list entry itself).
func (rt *Transfer) makeSymlink(local string, entry *flist.Entry) error {
	if err := os.MkdirAll(parentDir(local), 0o755); err != nil {
		return err
	}
	os.Remove(local)
	if err := symlink(entry.SymlinkTarget, local); err != nil {
		return err
	}
	return rt.setPerms(local, entry)
}
