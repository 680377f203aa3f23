package flist

import "sort"

// List is an ordered, 0-indexed file list as exchanged on the wire. Index
// into List corresponds directly to the NDX values used by the generator
// and the multiplexed message stream (spec.md §3, "File list").
type List struct {
	Entries []*Entry
}

// Sort orders entries the way upstream rsync's flist_sort does: byte-wise
// by full path, directories do not sort specially (spec.md §4.C,
// "Canonical order"). Sorting must happen before index-based references
// (hardlinks, delete decisions) are computed.
func (l *List) Sort() {
	sort.SliceStable(l.Entries, func(i, j int) bool {
		return l.Entries[i].Name < l.Entries[j].Name
	})
}

// CleanResult reports what flist_clean removed or renamed to resolve
// duplicate names left over after sorting (spec.md §4.C, "Sanitization").
type CleanResult struct {
	DuplicatesRemoved int
}

// Clean removes duplicate entries (same Name, after Sort adjacent),
// keeping the last occurrence, matching upstream's "later entries win"
// rule for repeated command-line arguments.
func (l *List) Clean() CleanResult {
	if len(l.Entries) == 0 {
		return CleanResult{}
	}
	out := l.Entries[:0:0]
	removed := 0
	for i := 0; i < len(l.Entries); i++ {
		e := l.Entries[i]
		if i+1 < len(l.Entries) && l.Entries[i+1].Name == e.Name {
			removed++
			continue
		}
		out = append(out, e)
	}
	l.Entries = out
	return CleanResult{DuplicatesRemoved: removed}
}

// devIno identifies a hardlink group by (device, inode) for protocol <30,
// where entries cannot yet reference each other by file-list index
// because the list may still be streaming incrementally.
type devIno struct {
	dev, ino uint64
}

// HardlinkTable groups entries sharing a device+inode pair, assigning the
// first-seen member's list index as the group's reference point (spec.md
// §3, "Hardlink table").
type HardlinkTable struct {
	groups map[devIno]int32 // dev/ino -> index of first member
}

func NewHardlinkTable() *HardlinkTable {
	return &HardlinkTable{groups: make(map[devIno]int32)}
}

// Register records entry index ndx with the given device/inode and
// returns the entry's Hardlink value: nil if this is the sole member seen
// so far (not yet known to be a hardlink), or a reference to the group's
// first member otherwise. A later call with the same dev/ino always
// returns a non-nil reference, since by definition there are now >=2
// members.
func (t *HardlinkTable) Register(ndx int32, dev, ino uint64) *HardlinkRef {
	key := devIno{dev, ino}
	first, ok := t.groups[key]
	if !ok {
		t.groups[key] = ndx
		return nil
	}
	return &HardlinkRef{Index: first, Dev: dev, Ino: ino, ByDevIno: true}
}

// PromoteFirstMember is called once a second member of a group is found,
// to retroactively mark the first member's entry as the head of a
// hardlink group (XmitHardlinkFirst on the wire).
func PromoteFirstMember(entries []*Entry, firstNdx int32, dev, ino uint64) {
	e := entries[firstNdx]
	if e.Hardlink == nil {
		e.Hardlink = &HardlinkRef{Index: -1, Dev: dev, Ino: ino, ByDevIno: true}
	}
}
