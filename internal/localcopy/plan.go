package localcopy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Node is one planned filesystem entry: a source path (possibly empty
// for a directory that exists only at the destination, e.g. a
// deletion-pass candidate) paired with the destination path it maps to.
type Node struct {
	// RelPath is the destination-relative path using "/" separators,
	// the same namespace flist.Entry.Name uses.
	RelPath string
	Source  string // absolute source path; empty if this entry was synthesized for a symlink parent etc.
	Dest    string // absolute destination path
	Info    os.FileInfo
}

// Plan is the immutable, sorted list of entries one run will visit.
// Built eagerly so the executor never has to re-stat the source tree to
// decide ordering (spec.md §4.E "Plan construction").
type Plan struct {
	Nodes []Node
}

// BuildPlan walks each (source, destination) operand pair and produces a
// single sorted Plan. Trailing-slash semantics on src match rsync: "src/"
// copies src's contents into dst; "src" (no trailing slash) copies src
// itself as a child of dst.
func BuildPlan(pairs [][2]string) (*Plan, error) {
	var nodes []Node
	for _, pair := range pairs {
		src, dst := pair[0], pair[1]
		contentsOnly := strings.HasSuffix(src, "/")
		src = filepath.Clean(src)

		fi, err := os.Lstat(src)
		if err != nil {
			return nil, fmt.Errorf("localcopy: stat %s: %w", src, err)
		}

		base := filepath.Base(src)
		root := dst
		relRoot := base
		if !contentsOnly {
			root = filepath.Join(dst, base)
		} else {
			relRoot = "."
		}

		if !fi.IsDir() {
			rel := filepath.Base(root)
			nodes = append(nodes, Node{RelPath: rel, Source: src, Dest: root, Info: fi})
			continue
		}

		err = filepath.Walk(src, func(walked string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(src, walked)
			if err != nil {
				return err
			}
			destPath := root
			relName := relRoot
			if rel != "." {
				destPath = filepath.Join(root, rel)
				relName = filepath.ToSlash(filepath.Join(relRoot, rel))
			}
			nodes = append(nodes, Node{RelPath: relName, Source: walked, Dest: destPath, Info: info})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].RelPath < nodes[j].RelPath })
	return &Plan{Nodes: nodes}, nil
}
