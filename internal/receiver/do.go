package receiver

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oferchen/rsync-sub026/internal/checksum"
	"github.com/oferchen/rsync-sub026/internal/delta"
	"github.com/oferchen/rsync-sub026/internal/flist"
	"github.com/oferchen/rsync-sub026/internal/fsutil"
	"github.com/oferchen/rsync-sub026/internal/rsyncstats"
	"github.com/oferchen/rsync-sub026/internal/rsyncwire"
	"github.com/oferchen/rsync-sub026/internal/strongsum"
	"github.com/oferchen/rsync-sub026/internal/sumhead"
	"github.com/google/renameio/v2"
)

// sigAlgo is the strong-digest algorithm used for block signatures and
// whole-file verification. A full implementation negotiates this per
// internal/negotiate.NegotiateDigest; this package hardcodes the
// protocol's historical default rather than threading a negotiated
// choice through every call site (see DESIGN.md).
const sigAlgo = strongsum.MD4

// Do drives the receive side of one transfer: for every entry in
// fileList it either materializes it directly (directories, symlinks,
// device nodes need no data from the peer) or runs the signature/token
// exchange that reconstructs a regular file from a local basis plus
// whatever literal data the sender had to send (spec.md §4.D).
//
// Unlike upstream's generator and receiver, which run as concurrent
// phases so many files can be in flight across the pipe at once, this
// implementation walks the file list once, synchronously requesting and
// then immediately consuming each regular file's delta before moving on
// to the next entry. See DESIGN.md for why: it trades pipelining for a
// single, easy-to-verify control flow over the shared connection.
func (rt *Transfer) Do(c *rsyncwire.Conn, fileList []*flist.Entry, noReport bool) (*rsyncstats.TransferStats, error) {
	if rt.Opts.DeleteMode {
		if err := rt.deleteExtraneous(fileList); err != nil {
			return nil, err
		}
	}

	stats := &rsyncstats.TransferStats{FileCount: len(fileList)}

	for ndx, entry := range fileList {
		local := filepath.Join(rt.Dest, filepath.FromSlash(entry.Name))

		switch {
		case entry.IsDir():
			if err := rt.makeDir(local, entry); err != nil {
				rt.IOErrors++
				logf(rt.Logger, "mkdir %s: %v", local, err)
			}
			rt.reportProgress(entry.Name, entry.Size, ndx+1, len(fileList))
			continue
		case entry.IsSymlink():
			if rt.Opts.PreserveLinks {
				if err := rt.makeSymlink(local, entry); err != nil {
					rt.IOErrors++
					logf(rt.Logger, "symlink %s: %v", local, err)
				}
			}
			rt.reportProgress(entry.Name, entry.Size, ndx+1, len(fileList))
			continue
		case entry.IsDevice(), entry.IsFIFO(), entry.IsSocket():
			if rt.Opts.PreserveDevices || rt.Opts.PreserveSpecials {
				if err := rt.makeSpecial(local, entry); err != nil {
					rt.IOErrors++
					logf(rt.Logger, "mknod %s: %v", local, err)
				}
			}
			rt.reportProgress(entry.Name, entry.Size, ndx+1, len(fileList))
			continue
		case !entry.IsRegular():
			continue
		}

		if rt.Opts.DryRun {
			stats.TotalFileSize += entry.Size
			if !rt.Opts.Server {
				fmt.Fprintln(rt.Env.Stdout, entry.Name)
			}
			rt.reportProgress(entry.Name, entry.Size, ndx+1, len(fileList))
			continue
		}

		written, err := rt.syncRegularFile(c, int32(ndx), entry, local)
		if err != nil {
			return nil, fmt.Errorf("receiving %s: %w", entry.Name, err)
		}
		stats.TotalFileSize += entry.Size
		stats.LiteralData += written
		rt.reportProgress(entry.Name, entry.Size, ndx+1, len(fileList))
	}

	if err := rsyncwire.WriteNdxDone(c); err != nil {
		return nil, err
	}
	done, err := rsyncwire.ReadNdx(c, &rt.ndx)
	if err != nil {
		return nil, err
	}
	if done != rsyncwire.NdxDone {
		return nil, fmt.Errorf("receiver: expected DONE sentinel, got ndx %d", done)
	}

	var outStats *rsyncstats.TransferStats
	if !noReport {
		outStats, err = rt.report(c)
		if err != nil {
			return nil, err
		}
		outStats.FileCount = stats.FileCount
		outStats.TotalFileSize = stats.TotalFileSize
	} else {
		outStats = stats
	}

	if err := c.WriteInt32(rsyncwire.NdxDone); err != nil {
		return nil, err
	}
	return outStats, nil
}

// syncRegularFile requests a delta for one file (sending the signature of
// whatever basis already exists locally, or an empty one to request the
// whole file) and applies the token stream the peer sends back.
func (rt *Transfer) syncRegularFile(c *rsyncwire.Conn, ndx int32, entry *flist.Entry, local string) (int64, error) {
	if err := rsyncwire.WriteNdx(c, &rt.ndx, ndx); err != nil {
		return 0, err
	}

	sig, basis, err := rt.localSignature(local, entry.Size)
	if err != nil {
		return 0, err
	}
	if basis != nil {
		defer basis.Close()
	}
	if err := sumhead.Write(c, sig); err != nil {
		return 0, err
	}

	replyNdx, err := rsyncwire.ReadNdx(c, &rt.ndx)
	if err != nil {
		return 0, err
	}
	if replyNdx != ndx {
		return 0, fmt.Errorf("out-of-order reply: got ndx %d, want %d", replyNdx, ndx)
	}

	return rt.applyDelta(c, entry, local, sig, basis)
}

// localSignature generates a block signature against path's current
// contents, if any. A missing basis file yields a Signature with zero
// blocks, telling the peer to send the file as pure literal data.
func (rt *Transfer) localSignature(path string, size int64) (*checksum.Signature, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &checksum.Signature{}, nil, nil
		}
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !st.Mode().IsRegular() {
		f.Close()
		return &checksum.Signature{}, nil, nil
	}

	blockLength := checksum.BlockLengthFor(st.Size())
	checksumLength := checksum.ChecksumLengthFor(st.Size(), strongsum.Size(sigAlgo))
	sig, err := checksum.Generate(f, st.Size(), blockLength, checksumLength, sigAlgo, rt.Seed)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return sig, f, nil
}

// applyDelta reads the token stream for entry and reconstructs it into a
// temporary file next to local, replacing it atomically on success.
func (rt *Transfer) applyDelta(c *rsyncwire.Conn, entry *flist.Entry, local string, sig *checksum.Signature, basis *os.File) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return 0, err
	}
	out, err := renameio.NewPendingFile(local)
	if err != nil {
		return 0, err
	}
	defer out.Cleanup()

	h, err := strongsum.New(sigAlgo, rt.Seed)
	if err != nil {
		return 0, err
	}

	var basisReaderAt = emptyReaderAt{}
	if basis != nil {
		basisReaderAt = emptyReaderAt{basis}
	}
	bounds := delta.DefaultBlockBounds(sig.BlockLength, int32(len(sig.Blocks)), sig.RemainderLength)

	counting := &countingTeeWriter{w: out, h: h}
	written, err := delta.Apply(c, basisReaderAt, bounds, counting)
	if err != nil {
		return written, err
	}

	localSum := h.Sum(nil)
	remoteSum, err := c.ReadN(len(localSum))
	if err != nil {
		return written, err
	}
	if !bytes.Equal(localSum, remoteSum) {
		return written, fmt.Errorf("checksum mismatch for %s", entry.Name)
	}

	if err := out.CloseAtomicallyReplace(); err != nil {
		return written, err
	}
	if err := rt.setPerms(local, entry); err != nil {
		logf(rt.Logger, "setPerms %s: %v", local, err)
	}
	return written, nil
}

// emptyReaderAt adapts an *os.File (or nil, meaning "no basis") to
// io.ReaderAt; a nil basis returns an error for any read, since a
// zero-block Signature gives the peer no blocks for a match token to
// reference.
type emptyReaderAt struct {
	f *os.File
}

func (e emptyReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if e.f == nil {
		return 0, fmt.Errorf("receiver: match token against nonexistent basis file")
	}
	return e.f.ReadAt(p, off)
}

// countingTeeWriter writes through to w while also feeding the running
// whole-file digest, mirroring the sender's own verification hash so
// both sides agree the reconstructed file is correct.
type countingTeeWriter struct {
	w interface {
		Write([]byte) (int, error)
	}
	h interface {
		Write([]byte) (int, error)
	}
}

func (c *countingTeeWriter) Write(p []byte) (int, error) {
	if _, err := c.h.Write(p); err != nil {
		return 0, err
	}
	return c.w.Write(p)
}

func (rt *Transfer) makeDir(local string, entry *flist.Entry) error {
	if err := os.MkdirAll(local, os.FileMode(entry.Mode&0o7777)|0o700); err != nil {
		return err
	}
	return rt.setPerms(local, entry)
}

func (rt *Transfer) makeSpecial(local string, entry *flist.Entry) error {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	os.Remove(local)
	if err := fsutil.Mknod(local, entry.Mode, entry.RdevMajor, entry.RdevMinor); err != nil {
		return err
	}
	return rt.setPerms(local, entry)
}

// deleteExtraneous removes destination files with no corresponding entry
// in fileList, walking the whole destination root rt.Dest
// (spec.md §4.E "Deletion", the --delete family of options).
func (rt *Transfer) deleteExtraneous(fileList []*flist.Entry) error {
	if rt.IOErrors > 0 {
		logf(rt.Logger, "IO error encountered earlier, skipping deletion")
		return nil
	}
	root := filepath.Clean(rt.Dest)
	strip := root + string(filepath.Separator)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		name := strings.TrimPrefix(path, strip)
		if path == root {
			name = "."
		}
		if findInFileList(fileList, filepath.ToSlash(name)) {
			return nil
		}
		if rt.Opts.Verbose {
			logf(rt.Logger, "deleting %s", name)
		}
		if rt.Opts.DryRun {
			return nil
		}
		if info.IsDir() {
			return os.RemoveAll(path)
		}
		return os.Remove(path)
	})
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// report reads the three closing statistics longs the sender writes
// after the final token stream (spec.md §4.D "Session close").
func (rt *Transfer) report(c *rsyncwire.Conn) (*rsyncstats.TransferStats, error) {
	read, err := c.ReadInt64()
	if err != nil {
		return nil, err
	}
	written, err := c.ReadInt64()
	if err != nil {
		return nil, err
	}
	size, err := c.ReadInt64()
	if err != nil {
		return nil, err
	}
	logf(rt.Logger, "peer reported stats: read=%d written=%d size=%d", read, written, size)
	return &rsyncstats.TransferStats{
		Read:          read,
		Written:       written,
		TotalFileSize: size,
	}, nil
}
