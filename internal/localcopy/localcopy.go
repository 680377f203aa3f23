// Package localcopy implements the receive-side tree materialization
// used both as the in-process engine for local-to-local transfers (no
// transport, no wire protocol) and as the pattern internal/receiver
// follows for applying a file list to disk (spec.md §4.E "Local-Copy
// Executor").
package localcopy

import (
	"os"
	"time"

	"github.com/oferchen/rsync-sub026/internal/log"
)

// Action classifies what happened to one plan entry, reported through
// the Events callback the way internal/receiver reports progress via its
// own logger.
type Action int

const (
	ActionCopied Action = iota
	ActionSkippedUnchanged
	ActionSkippedNewerDestination
	ActionDirectoryCreated
	ActionSymlinked
	ActionHardlinked
	ActionSpecialCreated
	ActionDeleted
	ActionDryRun
	ActionError
)

func (a Action) String() string {
	switch a {
	case ActionCopied:
		return "copied"
	case ActionSkippedUnchanged:
		return "skipped (unchanged)"
	case ActionSkippedNewerDestination:
		return "skipped (newer destination)"
	case ActionDirectoryCreated:
		return "directory created"
	case ActionSymlinked:
		return "symlinked"
	case ActionHardlinked:
		return "hardlinked"
	case ActionSpecialCreated:
		return "special created"
	case ActionDeleted:
		return "deleted"
	case ActionDryRun:
		return "dry-run"
	case ActionError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one record of the event stream the executor produces, the
// local-copy equivalent of internal/receiver's per-file log lines.
type Event struct {
	Path   string
	Action Action
	Bytes  int64
	Err    error
}

// Filter mirrors spec.md §6.5: allow gates the transfer pass, Protected
// and Risked gate the deletion pass. A nil Filter allows everything and
// protects nothing.
type Filter interface {
	Allow(path string, isDir bool) bool
	Protected(path string) bool
	Risked(path string) bool
}

type allowAllFilter struct{}

func (allowAllFilter) Allow(string, bool) bool { return true }
func (allowAllFilter) Protected(string) bool   { return false }
func (allowAllFilter) Risked(string) bool      { return false }

// ReferenceDest configures one --compare-dest/--copy-dest/--link-dest
// candidate directory, tried in the order given (spec.md §4.E "Reference
// directories").
type ReferenceDest struct {
	Path string
	Mode ReferenceMode
}

type ReferenceMode int

const (
	CompareDest ReferenceMode = iota
	CopyDest
	LinkDest
)

// Options carries the metadata-preservation and comparison policy for
// one run, the local-copy analogue of receiver.TransferOpts.
type Options struct {
	DryRun bool

	IgnoreExisting bool
	UpdateOnly     bool
	SizeOnly       bool
	AlwaysChecksum bool
	ModifyWindow   time.Duration

	PreserveUID       bool
	PreserveGID       bool
	PreservePerms     bool
	PreserveTimes     bool
	PreserveDevices   bool
	PreserveLinks     bool
	PreserveXattrs    bool
	PreserveHardlinks bool

	Delete bool

	PartialDir string
	TempDir    string

	References []ReferenceDest

	Filter Filter
}

func (o *Options) filter() Filter {
	if o.Filter == nil {
		return allowAllFilter{}
	}
	return o.Filter
}

// Summary aggregates the counters a run produces, analogous to
// rsyncstats.TransferStats but scoped to a local-copy run.
type Summary struct {
	FilesCopied  int
	BytesCopied  int64
	FilesSkipped int
	DirsCreated  int
	Symlinks     int
	Hardlinks    int
	Specials     int
	Deleted      int
	Errors       int
}

// Executor runs plans built by Plan against the local filesystem.
type Executor struct {
	Opts   *Options
	Logger log.Logger

	// OnEvent, if set, receives every Event as it's produced, the
	// concrete hook behind spec.md §6.4's on_file_transferred.
	OnEvent func(Event)

	inodes map[inodeKey]string // (dev,ino) -> first destination path copied, for hardlink detection
}

type inodeKey struct {
	dev, ino uint64
}

func (e *Executor) emit(ev Event) {
	if e.OnEvent != nil {
		e.OnEvent(ev)
	}
	if e.Logger == nil {
		return
	}
	if ev.Err != nil {
		e.Logger.Printf("%s: %s: %v", ev.Path, ev.Action, ev.Err)
		return
	}
	e.Logger.Printf("%s: %s", ev.Path, ev.Action)
}

func statOrNil(path string) os.FileInfo {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil
	}
	return fi
}
