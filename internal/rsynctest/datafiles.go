package rsynctest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/oferchen/rsync-sub026/internal/fsutil"
)

const largeDataFileSize = 3 * 1024 * 1024

// WriteLargeDataFile writes a multi-megabyte file with a distinguishable
// head, body, and tail pattern, so delta-sync tests can verify that only
// the changed middle region is retransmitted.
func WriteLargeDataFile(t *testing.T, dir string, head, body, tail []byte) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(dir, "large-data-file"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	const headLen, tailLen = 4096, 4096
	if _, err := f.Write(bytes.Repeat(head, headLen/len(head))); err != nil {
		t.Fatal(err)
	}
	bodyLen := largeDataFileSize - headLen - tailLen
	if _, err := f.Write(bytes.Repeat(body, bodyLen/len(body))); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(bytes.Repeat(tail, tailLen/len(tail))); err != nil {
		t.Fatal(err)
	}
}

// DataFileMatches verifies a file previously written by WriteLargeDataFile
// landed with the expected head/body/tail pattern intact.
func DataFileMatches(path string, head, body, tail []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	const headLen, tailLen = 4096, 4096
	if !bytes.Equal(data[:headLen], bytes.Repeat(head, headLen/len(head))) {
		return fmt.Errorf("%s: head mismatch", path)
	}
	if !bytes.Equal(data[len(data)-tailLen:], bytes.Repeat(tail, tailLen/len(tail))) {
		return fmt.Errorf("%s: tail mismatch", path)
	}
	mid := data[headLen : headLen+16]
	if !bytes.Equal(mid, bytes.Repeat(body, 16/len(body))) {
		return fmt.Errorf("%s: body mismatch", path)
	}
	return nil
}

// CreateDummyDeviceFiles creates a character device and a FIFO under
// dir, exercising --devices/--specials preservation; skipped by callers
// when not running as root, since mknod requires privilege.
func CreateDummyDeviceFiles(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := fsutil.Mknod(filepath.Join(dir, "null"), 0o666|0o020000, 1, 3); err != nil {
		t.Fatal(err)
	}
	if err := fsutil.Mknod(filepath.Join(dir, "fifo"), 0o666|0o010000, 0, 0); err != nil {
		t.Fatal(err)
	}
}

// VerifyDummyDeviceFiles checks that the device files CreateDummyDeviceFiles
// wrote to src were faithfully recreated under dst.
func VerifyDummyDeviceFiles(t *testing.T, src, dst string) {
	t.Helper()
	for _, name := range []string{"null", "fifo"} {
		srcFi, err := os.Lstat(filepath.Join(src, name))
		if err != nil {
			t.Fatal(err)
		}
		dstFi, err := os.Lstat(filepath.Join(dst, name))
		if err != nil {
			t.Fatal(err)
		}
		if srcFi.Mode().Type() != dstFi.Mode().Type() {
			t.Errorf("%s: mode type mismatch: src %v, dst %v", name, srcFi.Mode(), dstFi.Mode())
		}
	}
}
