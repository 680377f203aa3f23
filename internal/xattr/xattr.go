// Package xattr wraps github.com/pkg/xattr to implement the extended
// attribute cache the file-list codec references by index
// (flist.Entry.XattrNdx), avoiding retransmitting the same attribute set
// for every entry that shares it (spec.md §3 "File entry",
// "XattrNdx"; SPEC_FULL §B).
package xattr

import (
	"sort"

	"github.com/pkg/xattr"
)

// Pair is one extended attribute name/value.
type Pair struct {
	Name  string
	Value []byte
}

// Set is a sorted, comparable extended-attribute set for one file.
type Set []Pair

// Read lists and reads every extended attribute of path (not following
// symlinks), sorted by name so two files with the same attributes
// produce byte-identical Sets and therefore hash to the same cache
// entry.
func Read(path string) (Set, error) {
	names, err := xattr.LList(path)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	set := make(Set, 0, len(names))
	for _, name := range names {
		value, err := xattr.LGet(path, name)
		if err != nil {
			return nil, err
		}
		set = append(set, Pair{Name: name, Value: value})
	}
	return set, nil
}

// Apply sets every attribute in set on path, not following symlinks.
func Apply(path string, set Set) error {
	for _, p := range set {
		if err := xattr.LSet(path, p.Name, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// key renders a Set into a form usable as a map key for deduplication.
func (s Set) key() string {
	out := make([]byte, 0, 64)
	for _, p := range s {
		out = append(out, p.Name...)
		out = append(out, 0)
		out = append(out, p.Value...)
		out = append(out, 0)
	}
	return string(out)
}

// Cache assigns a stable 1-based index to each distinct Set seen,
// matching flist's convention that XattrNdx == 0 means "no extended
// attributes". Index 0 is therefore never issued by Intern.
type Cache struct {
	byKey  map[string]uint32
	byNdx  []Set
}

func NewCache() *Cache {
	return &Cache{byKey: make(map[string]uint32)}
}

// Intern returns set's stable index, assigning a new one on first sight.
// An empty set always returns 0 without being recorded.
func (c *Cache) Intern(set Set) uint32 {
	if len(set) == 0 {
		return 0
	}
	key := set.key()
	if ndx, ok := c.byKey[key]; ok {
		return ndx
	}
	c.byNdx = append(c.byNdx, set)
	ndx := uint32(len(c.byNdx))
	c.byKey[key] = ndx
	return ndx
}

// Lookup returns the Set for a previously interned index (1-based); it
// returns nil, false for index 0 or an unknown index.
func (c *Cache) Lookup(ndx uint32) (Set, bool) {
	if ndx == 0 || int(ndx) > len(c.byNdx) {
		return nil, false
	}
	return c.byNdx[ndx-1], true
}
