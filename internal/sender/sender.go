// Package sender implements the sending side of a transfer: walking the
// source tree into a file list, sending that list to the peer, and then
// answering each signature request with a delta token stream computed
// against the peer's reported basis (spec.md §4.D "Delta Engine").
package sender

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oferchen/rsync-sub026/internal/checksum"
	"github.com/oferchen/rsync-sub026/internal/delta"
	"github.com/oferchen/rsync-sub026/internal/flist"
	"github.com/oferchen/rsync-sub026/internal/log"
	"github.com/oferchen/rsync-sub026/internal/rsyncopts"
	"github.com/oferchen/rsync-sub026/internal/rsyncstats"
	"github.com/oferchen/rsync-sub026/internal/rsyncwire"
	"github.com/oferchen/rsync-sub026/internal/strongsum"
	"github.com/oferchen/rsync-sub026/internal/sumhead"
)

// sigAlgo mirrors internal/receiver's hardcoded digest choice; both
// sides must agree without negotiation since neither wires
// internal/negotiate's digest exchange into the default transfer path
// yet (see DESIGN.md).
const sigAlgo = strongsum.MD4

// FilterList is the (always empty, in this implementation) set of
// include/exclude patterns exchanged before the file list, kept as its
// own type since rsyncd.go logs len(exclusionList.Filters) regardless of
// which side received it.
type FilterList struct {
	Filters []string
}

// RecvFilterList reads the filter-rule list the peer sends immediately
// after the version/seed handshake. Filter-rule compilation itself is an
// out-of-scope external collaborator (spec.md §"Out of scope"); this
// reads the wire list only far enough to know when it ends.
func RecvFilterList(c *rsyncwire.Conn) (*FilterList, error) {
	fl := &FilterList{}
	for {
		n, err := rsyncwire.ReadVarint30(c.Reader)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		rule, err := c.ReadN(int(n))
		if err != nil {
			return nil, err
		}
		fl.Filters = append(fl.Filters, string(rule))
	}
	return fl, nil
}

// SendFilterList writes fl's filter rules terminated by the zero-length
// sentinel, the counterpart to RecvFilterList. Real filter-rule
// compilation is an out-of-scope external collaborator (spec.md §"Out of
// scope"); callers that don't have any still send the empty list so the
// peer's unconditional RecvFilterList has something to read.
func SendFilterList(c *rsyncwire.Conn, fl *FilterList) error {
	for _, rule := range fl.Filters {
		if err := rsyncwire.WriteVarint30(c.Writer, int32(len(rule))); err != nil {
			return err
		}
		if err := c.WriteString(rule); err != nil {
			return err
		}
	}
	return rsyncwire.WriteVarint30(c.Writer, 0)
}

// Transfer holds the state for one send-side session.
type Transfer struct {
	Logger log.Logger
	Opts   *rsyncopts.Options
	Conn   *rsyncwire.Conn
	Seed   int32

	ndx rsyncwire.NdxState
}

func logf(l log.Logger, format string, args ...any) {
	if l == nil {
		return
	}
	l.Printf(format, args...)
}

// Do walks paths (rooted at modulePath for daemon transfers), sends the
// resulting file list, and then answers signature requests until the
// peer signals it is done (spec.md §4.D, §4.C).
func (st *Transfer) Do(crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, modulePath string, paths []string, exclusionList *FilterList) (*rsyncstats.TransferStats, error) {
	entries, roots, err := st.buildFileList(modulePath, paths)
	if err != nil {
		return nil, err
	}

	codec := &flist.Codec{
		Conn:             st.Conn,
		PreserveUID:      st.Opts.PreserveUid(),
		PreserveGID:      st.Opts.PreserveGid(),
		PreserveLinks:    st.Opts.PreserveLinks(),
		PreserveDevices:  st.Opts.PreserveDevices(),
		PreserveSpecials: st.Opts.PreserveSpecials(),
	}
	for _, e := range entries {
		if err := codec.EncodeEntry(e); err != nil {
			return nil, err
		}
	}
	if err := codec.EndOfList(); err != nil {
		return nil, err
	}

	if err := st.serveRequests(entries, roots); err != nil {
		return nil, err
	}

	if err := st.Conn.WriteInt64(crd.BytesRead); err != nil {
		return nil, err
	}
	if err := st.Conn.WriteInt64(cwr.BytesWritten); err != nil {
		return nil, err
	}
	var totalSize int64
	for _, e := range entries {
		if e.IsRegular() {
			totalSize += e.Size
		}
	}
	if err := st.Conn.WriteInt64(totalSize); err != nil {
		return nil, err
	}

	done, err := rsyncwire.ReadNdx(st.Conn, &st.ndx)
	if err != nil {
		return nil, err
	}
	if done != rsyncwire.NdxDone {
		return nil, fmt.Errorf("sender: expected closing DONE, got ndx %d", done)
	}

	return &rsyncstats.TransferStats{
		Read:          crd.BytesRead,
		Written:       cwr.BytesWritten,
		TotalFileSize: totalSize,
		FileCount:     len(entries),
	}, nil
}

// serveRequests answers the peer's per-file signature requests in file
// list order until it sends the closing DONE sentinel instead of an
// index.
func (st *Transfer) serveRequests(entries []*flist.Entry, roots map[*flist.Entry]string) error {
	for {
		ndx, err := rsyncwire.ReadNdx(st.Conn, &st.ndx)
		if err != nil {
			return err
		}
		if ndx == rsyncwire.NdxDone {
			return nil
		}
		if ndx < 0 || int(ndx) >= len(entries) {
			return fmt.Errorf("sender: ndx %d out of range", ndx)
		}
		entry := entries[ndx]

		sig, err := sumhead.Read(st.Conn)
		if err != nil {
			return err
		}

		if err := rsyncwire.WriteNdx(st.Conn, &st.ndx, ndx); err != nil {
			return err
		}
		if err := st.sendDelta(entry, roots[entry], sig); err != nil {
			return err
		}
	}
}

// sendDelta diffs entry's current on-disk contents against sig (the
// peer's basis signature, possibly empty) and streams the resulting
// token list, followed by a whole-file digest for end-to-end
// verification.
func (st *Transfer) sendDelta(entry *flist.Entry, path string, sig *checksum.Signature) error {
	h, err := strongsum.New(sigAlgo, st.Seed)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	h.Write(data)

	m := checksum.NewMatcher(sig, sigAlgo, st.Seed)
	if err := delta.StreamGenerate(connTokenWriter{st.Conn}, data, m, blockLengthOrDefault(sig, data)); err != nil {
		return err
	}

	_, err = st.Conn.Writer.Write(h.Sum(nil))
	return err
}

// connTokenWriter adapts *rsyncwire.Conn to delta.Writer; Conn exposes
// WriteInt32 directly but has no bare Write method of its own since most
// callers go through its higher-level helpers instead.
type connTokenWriter struct {
	c *rsyncwire.Conn
}

func (w connTokenWriter) WriteInt32(v int32) error { return w.c.WriteInt32(v) }
func (w connTokenWriter) Write(p []byte) (int, error) { return w.c.Writer.Write(p) }

func blockLengthOrDefault(sig *checksum.Signature, data []byte) int32 {
	if sig.BlockLength > 0 {
		return sig.BlockLength
	}
	return checksum.BlockLengthFor(int64(len(data)))
}

// buildFileList walks each of paths (relative to modulePath when set,
// the daemon-module convention) into a sorted, deduplicated flist.Entry
// slice, and records each entry's absolute filesystem path for later
// delta generation.
func (st *Transfer) buildFileList(modulePath string, paths []string) ([]*flist.Entry, map[*flist.Entry]string, error) {
	var entries []*flist.Entry
	roots := make(map[*flist.Entry]string)

	for _, p := range paths {
		abs := p
		if modulePath != "" && !filepath.IsAbs(p) {
			abs = filepath.Join(modulePath, p)
		}
		abs = filepath.Clean(abs)

		fi, err := os.Lstat(abs)
		if err != nil {
			return nil, nil, err
		}

		base := filepath.Base(abs)
		if fi.IsDir() && (strings.HasSuffix(p, "/") || p == ".") {
			// "dir/" (and ".") sends the directory's contents.
			base = "."
		}
		if fi.IsDir() && st.Opts.Recurse() {
			err := filepath.Walk(abs, func(walked string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				rel, err := filepath.Rel(abs, walked)
				if err != nil {
					return err
				}
				name := "."
				if rel != "." {
					name = filepath.ToSlash(filepath.Join(base, rel))
				} else {
					name = base
				}
				e, err := entryFromFileInfo(name, walked, info)
				if err != nil {
					return err
				}
				entries = append(entries, e)
				roots[e] = walked
				return nil
			})
			if err != nil {
				return nil, nil, err
			}
			continue
		}

		e, err := entryFromFileInfo(base, abs, fi)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, e)
		roots[e] = abs
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	list := &flist.List{Entries: entries}
	list.Clean()
	return list.Entries, roots, nil
}

func entryFromFileInfo(name, path string, fi os.FileInfo) (*flist.Entry, error) {
	e := &flist.Entry{
		Name:  name,
		Size:  fi.Size(),
		MTime: fi.ModTime().Unix(),
		Mode:  uint32(fi.Mode().Perm()) | modeFmtBits(fi),
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return nil, err
		}
		e.SymlinkTarget = target
	}
	fillPlatformMetadata(e, fi)
	return e, nil
}

func modeFmtBits(fi os.FileInfo) uint32 {
	switch {
	case fi.IsDir():
		return 0o040000
	case fi.Mode()&os.ModeSymlink != 0:
		return 0o120000
	case fi.Mode()&os.ModeDevice != 0 && fi.Mode()&os.ModeCharDevice != 0:
		return 0o020000
	case fi.Mode()&os.ModeDevice != 0:
		return 0o060000
	case fi.Mode()&os.ModeNamedPipe != 0:
		return 0o010000
	case fi.Mode()&os.ModeSocket != 0:
		return 0o140000
	default:
		return 0o100000
	}
}
