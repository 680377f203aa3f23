package localcopy

import (
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// writeGuard owns a staged destination file: it writes into a temp path
// under PartialDir/TempDir and either renames it onto dest (Commit) or
// removes it (Abort), never leaving a half-written file at dest itself
// (spec.md §4.E "Destination write guard").
type writeGuard struct {
	dest    string
	pending *renameio.PendingFile
}

// newWriteGuard opens a pending file for dest. When opts.TempDir is set,
// the staging file lives there instead of alongside dest; PartialDir is
// honored the same way renameio's own default (dotfile next to dest)
// would be, just redirected to a named directory so --partial-dir runs
// can resume a previous attempt.
func newWriteGuard(dest string, opts *Options) (*writeGuard, error) {
	stageDir := opts.TempDir
	if stageDir == "" {
		stageDir = opts.PartialDir
	}

	if stageDir == "" {
		pf, err := renameio.NewPendingFile(dest)
		if err != nil {
			return nil, err
		}
		return &writeGuard{dest: dest, pending: pf}, nil
	}

	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, err
	}
	pf, err := renameio.NewPendingFile(dest, renameio.WithTempDir(stageDir))
	if err != nil {
		return nil, err
	}
	return &writeGuard{dest: dest, pending: pf}, nil
}

func (w *writeGuard) Write(p []byte) (int, error) { return w.pending.Write(p) }

// Commit renames the staged file onto dest, creating dest's parent
// directory first if it doesn't exist yet (a fresh subtree in the
// destination can reach its first file before its directory entry is
// materialized when traversal order interleaves, though BuildPlan's
// sort keeps this rare).
func (w *writeGuard) Commit() error {
	if err := os.MkdirAll(filepath.Dir(w.dest), 0o755); err != nil {
		return err
	}
	return w.pending.CloseAtomicallyReplace()
}

// Abort discards the staged file without touching dest.
func (w *writeGuard) Abort() error {
	return w.pending.Cleanup()
}
