package localcopy

import (
	"io"
	"os"

	"github.com/oferchen/rsync-sub026/internal/strongsum"
)

// decision is the outcome of the should-copy comparison (spec.md §4.E
// "Should-copy comparison").
type decision int

const (
	decisionCopy decision = iota
	decisionSkipUnchanged
	decisionSkipNewerDestination
)

// shouldCopy applies the ordered should-copy rules against an existing
// destination file. destInfo is nil when the destination doesn't exist,
// which always copies.
func (o *Options) shouldCopy(srcPath string, srcInfo os.FileInfo, destPath string, destInfo os.FileInfo) (decision, error) {
	if destInfo == nil {
		return decisionCopy, nil
	}
	if o.IgnoreExisting {
		return decisionSkipUnchanged, nil
	}
	if o.UpdateOnly && destInfo.ModTime().After(srcInfo.ModTime()) {
		return decisionSkipNewerDestination, nil
	}
	if srcInfo.Size() != destInfo.Size() {
		return decisionCopy, nil
	}
	if o.SizeOnly {
		return decisionSkipUnchanged, nil
	}
	if o.AlwaysChecksum {
		equal, err := filesEqualByChecksum(srcPath, destPath)
		if err != nil {
			return decisionCopy, err
		}
		if equal {
			return decisionSkipUnchanged, nil
		}
		return decisionCopy, nil
	}
	window := o.ModifyWindow
	if window < 0 {
		window = 0
	}
	delta := srcInfo.ModTime().Sub(destInfo.ModTime())
	if delta < 0 {
		delta = -delta
	}
	if delta <= window {
		return decisionSkipUnchanged, nil
	}
	return decisionCopy, nil
}

func filesEqualByChecksum(a, b string) (bool, error) {
	ha, err := wholeFileSum(a)
	if err != nil {
		return false, err
	}
	hb, err := wholeFileSum(b)
	if err != nil {
		return false, err
	}
	return string(ha) == string(hb), nil
}

// wholeFileSum hashes a whole file for the --checksum comparison, using
// the same digest registry the wire signature path does even though
// this comparison never touches the wire (spec.md §4.E).
func wholeFileSum(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h, err := strongsum.New(strongsum.MD5, 0)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// resolveReference finds the first configured reference directory
// (compare-dest/copy-dest/link-dest) containing a matching file for
// relPath, applying the same should-copy rules against the candidate
// instead of the real destination (spec.md §4.E "Reference directories").
func (o *Options) resolveReference(srcPath string, srcInfo os.FileInfo, relPath string) (path string, mode ReferenceMode, found bool, err error) {
	for _, ref := range o.References {
		candidate := joinRel(ref.Path, relPath)
		candInfo, statErr := os.Lstat(candidate)
		if statErr != nil {
			continue
		}
		dec, decErr := o.shouldCopy(srcPath, srcInfo, candidate, candInfo)
		if decErr != nil {
			return "", 0, false, decErr
		}
		if dec == decisionSkipUnchanged {
			return candidate, ref.Mode, true, nil
		}
	}
	return "", 0, false, nil
}

func joinRel(base, rel string) string {
	if base == "" {
		return rel
	}
	return base + string(os.PathSeparator) + rel
}
