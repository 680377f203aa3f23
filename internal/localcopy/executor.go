package localcopy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/renameio/v2"

	"github.com/oferchen/rsync-sub026/internal/fsutil"
	"github.com/oferchen/rsync-sub026/internal/xattr"
)

// Run executes plan against the filesystem, applying o's policy, and
// returns the aggregate Summary (spec.md §4.E "Execution loop").
func (e *Executor) Run(plan *Plan) (*Summary, error) {
	if e.inodes == nil {
		e.inodes = make(map[inodeKey]string)
	}
	summary := &Summary{}

	seen := make(map[string]bool, len(plan.Nodes))
	for _, n := range plan.Nodes {
		seen[n.RelPath] = true
		if !e.Opts.filter().Allow(n.RelPath, n.Info.IsDir()) {
			continue
		}
		if err := e.applyNode(n, summary); err != nil {
			summary.Errors++
			e.emit(Event{Path: n.RelPath, Action: ActionError, Err: err})
		}
	}

	if e.Opts.Delete {
		if err := e.deleteExtraneous(plan, seen, summary); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

func (e *Executor) applyNode(n Node, summary *Summary) error {
	switch {
	case n.Info.IsDir():
		return e.applyDir(n, summary)
	case n.Info.Mode()&os.ModeSymlink != 0:
		return e.applySymlink(n, summary)
	case n.Info.Mode()&(os.ModeDevice|os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0:
		return e.applySpecial(n, summary)
	default:
		return e.applyRegular(n, summary)
	}
}

func (e *Executor) applyDir(n Node, summary *Summary) error {
	if e.Opts.DryRun {
		e.emit(Event{Path: n.RelPath, Action: ActionDryRun})
		return nil
	}
	if _, err := os.Stat(n.Dest); os.IsNotExist(err) {
		if err := os.MkdirAll(n.Dest, n.Info.Mode().Perm()|0o700); err != nil {
			return err
		}
		summary.DirsCreated++
		e.emit(Event{Path: n.RelPath, Action: ActionDirectoryCreated})
	}
	return e.applyMetadata(n)
}

func (e *Executor) applySymlink(n Node, summary *Summary) error {
	if !e.Opts.PreserveLinks {
		return nil
	}
	if e.Opts.DryRun {
		e.emit(Event{Path: n.RelPath, Action: ActionDryRun})
		return nil
	}
	target, err := os.Readlink(n.Source)
	if err != nil {
		return err
	}
	os.Remove(n.Dest)
	if err := renameio.Symlink(target, n.Dest); err != nil {
		return err
	}
	summary.Symlinks++
	e.emit(Event{Path: n.RelPath, Action: ActionSymlinked})
	if e.Opts.PreserveTimes {
		fsutil.Lutimes(n.Dest, n.Info.ModTime())
	}
	return nil
}

func (e *Executor) applySpecial(n Node, summary *Summary) error {
	if !e.Opts.PreserveDevices {
		return nil
	}
	if e.Opts.DryRun {
		e.emit(Event{Path: n.RelPath, Action: ActionDryRun})
		return nil
	}
	st, ok := n.Info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("localcopy: cannot read device numbers for %s", n.RelPath)
	}
	os.Remove(n.Dest)
	mode := uint32(n.Info.Mode().Perm())
	switch {
	case n.Info.Mode()&os.ModeCharDevice != 0:
		mode |= 0o020000
	case n.Info.Mode()&os.ModeDevice != 0:
		mode |= 0o060000
	case n.Info.Mode()&os.ModeNamedPipe != 0:
		mode |= 0o010000
	case n.Info.Mode()&os.ModeSocket != 0:
		mode |= 0o140000
	}
	if err := fsutil.Mknod(n.Dest, mode, fsutil.Devmajor(uint64(st.Rdev)), fsutil.Devminor(uint64(st.Rdev))); err != nil {
		return err
	}
	summary.Specials++
	e.emit(Event{Path: n.RelPath, Action: ActionSpecialCreated})
	return e.applyMetadata(n)
}

func (e *Executor) applyRegular(n Node, summary *Summary) error {
	if e.Opts.PreserveHardlinks {
		if st, ok := n.Info.Sys().(*syscall.Stat_t); ok && st.Nlink > 1 {
			key := inodeKey{dev: uint64(st.Dev), ino: st.Ino}
			if first, ok := e.inodes[key]; ok {
				if e.Opts.DryRun {
					e.emit(Event{Path: n.RelPath, Action: ActionDryRun})
					return nil
				}
				os.Remove(n.Dest)
				if err := os.MkdirAll(filepath.Dir(n.Dest), 0o755); err != nil {
					return err
				}
				if err := os.Link(first, n.Dest); err != nil {
					return err
				}
				summary.Hardlinks++
				e.emit(Event{Path: n.RelPath, Action: ActionHardlinked})
				return nil
			}
			e.inodes[key] = n.Dest
		}
	}

	destInfo := statOrNil(n.Dest)

	copySrc := n.Source
	if refPath, mode, found, err := e.Opts.resolveReference(n.Source, n.Info, n.RelPath); err != nil {
		return err
	} else if found {
		switch mode {
		case CompareDest:
			summary.FilesSkipped++
			e.emit(Event{Path: n.RelPath, Action: ActionSkippedUnchanged})
			return nil
		case LinkDest:
			if e.Opts.DryRun {
				e.emit(Event{Path: n.RelPath, Action: ActionDryRun})
				return nil
			}
			os.Remove(n.Dest)
			if err := os.MkdirAll(filepath.Dir(n.Dest), 0o755); err != nil {
				return err
			}
			if err := os.Link(refPath, n.Dest); err != nil {
				return err
			}
			summary.Hardlinks++
			e.emit(Event{Path: n.RelPath, Action: ActionHardlinked})
			return nil
		case CopyDest:
			copySrc = refPath
		}
	}

	dec, err := e.Opts.shouldCopy(copySrc, n.Info, n.Dest, destInfo)
	if err != nil {
		return err
	}
	switch dec {
	case decisionSkipUnchanged:
		summary.FilesSkipped++
		e.emit(Event{Path: n.RelPath, Action: ActionSkippedUnchanged})
		return nil
	case decisionSkipNewerDestination:
		summary.FilesSkipped++
		e.emit(Event{Path: n.RelPath, Action: ActionSkippedNewerDestination})
		return nil
	}

	if e.Opts.DryRun {
		e.emit(Event{Path: n.RelPath, Action: ActionDryRun, Bytes: n.Info.Size()})
		return nil
	}

	n, err := e.copyFile(n, copySrc)
	if err != nil {
		return err
	}
	summary.FilesCopied++
	summary.BytesCopied += n.Info.Size()
	e.emit(Event{Path: n.RelPath, Action: ActionCopied, Bytes: n.Info.Size()})
	return nil
}

func (e *Executor) copyFile(n Node, copySrc string) (Node, error) {
	src, err := os.Open(copySrc)
	if err != nil {
		return n, err
	}
	defer src.Close()

	wg, err := newWriteGuard(n.Dest, e.Opts)
	if err != nil {
		return n, err
	}
	if _, err := io.Copy(wg, src); err != nil {
		wg.Abort()
		return n, err
	}
	if err := wg.Commit(); err != nil {
		return n, err
	}
	return n, e.applyMetadata(n)
}

func (e *Executor) applyMetadata(n Node) error {
	if e.Opts.PreservePerms {
		if err := os.Chmod(n.Dest, n.Info.Mode().Perm()); err != nil {
			return err
		}
	}
	if e.Opts.PreserveUID || e.Opts.PreserveGID {
		if st, ok := n.Info.Sys().(*syscall.Stat_t); ok {
			uid, gid := -1, -1
			if e.Opts.PreserveUID {
				uid = int(st.Uid)
			}
			if e.Opts.PreserveGID {
				gid = int(st.Gid)
			}
			if err := os.Chown(n.Dest, uid, gid); err != nil {
				return err
			}
		}
	}
	if e.Opts.PreserveXattrs {
		set, err := xattr.Read(n.Source)
		if err == nil && len(set) > 0 {
			xattr.Apply(n.Dest, set)
		}
	}
	if e.Opts.PreserveTimes && !n.Info.IsDir() {
		mtime := n.Info.ModTime()
		return os.Chtimes(n.Dest, mtime, mtime)
	}
	return nil
}

// deleteExtraneous removes destination entries with no corresponding
// plan node, honoring protect/risk predicates (spec.md §4.E "Deletion
// pass").
func (e *Executor) deleteExtraneous(plan *Plan, seen map[string]bool, summary *Summary) error {
	if len(plan.Nodes) == 0 {
		return nil
	}
	walkRoot := plan.Nodes[0].Dest
	root := filepath.Dir(walkRoot)
	for _, n := range plan.Nodes {
		if n.RelPath == "." {
			walkRoot, root = n.Dest, n.Dest
			break
		}
	}

	return filepath.Walk(walkRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if seen[rel] || seen[strings.TrimSuffix(rel, "/")] {
			return nil
		}
		if e.Opts.filter().Protected(rel) && !e.Opts.filter().Risked(rel) {
			return nil
		}
		if e.Opts.DryRun {
			e.emit(Event{Path: rel, Action: ActionDryRun})
			return nil
		}
		if info.IsDir() {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
		if err != nil {
			return err
		}
		summary.Deleted++
		e.emit(Event{Path: rel, Action: ActionDeleted})
		if info.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
}
