// Package refindex implements the Ref Index of spec.md §4.2: the mapping
// from a path within one view to a ref entry, plus that view's hide set.
//
// Each view owns exactly one Delta. Resolution across the parent chain
// (step 3 of spec.md §4.2's resolution algorithm) is the View Graph's job,
// since only the View Graph knows the parent links; Delta only implements
// steps 1 and 2 for a single view.
package refindex

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/ghartrid/geology/pkg/content"
	"github.com/ghartrid/geology/pkg/geoerr"
)

// Kind is the type of object a RefEntry names.
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
	KindDevice
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindDevice:
		return "device"
	default:
		return "unknown"
	}
}

// RefEntry is the tuple (path, kind, digest, size, mtime-hint, flags) of
// spec.md §3. It is immutable once inserted into a Delta: "changing a
// file" produces a new RefEntry in a new view, never an edit in place.
type RefEntry struct {
	Path      string
	Kind      Kind
	Digest    content.Digest
	Size      int64
	MTimeHint int64 // unix nanos, advisory only per spec.md §1 Non-goal (iii)
	Flags     uint32
}

// item is the btree element, ordered by Path's byte value so List()
// satisfies spec.md §4.2's ordering guarantee.
type item struct {
	entry RefEntry
}

func (a item) Less(b btree.Item) bool {
	return a.entry.Path < b.(item).entry.Path
}

// Delta is the per-view Ref Index: the set of path->RefEntry bindings
// introduced in exactly this view, plus the paths hidden in this view.
//
// Delta is safe for concurrent readers once sealed; insert/hide require
// external synchronization with the write lease (spec.md §5) and are only
// ever called on a view's own delta before it's sealed.
type Delta struct {
	mu     sync.RWMutex
	tree   *btree.BTree
	hidden map[string]struct{}
	sealed bool
}

// NewDelta returns an empty, unsealed Delta.
func NewDelta() *Delta {
	return &Delta{
		tree:   btree.New(32),
		hidden: make(map[string]struct{}),
	}
}

// Seal marks d immutable. Per spec.md invariant V2, a sealed view's
// ref-entry and hide sets never change again; Insert/Hide return
// geoerr.ErrSealedView thereafter.
func (d *Delta) Seal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sealed = true
}

// Insert binds path to entry in this delta. Permitted only before Seal.
func (d *Delta) Insert(path string, entry RefEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sealed {
		return fmt.Errorf("refindex: insert %s: %w", path, geoerr.ErrSealedView)
	}
	entry.Path = path
	d.tree.ReplaceOrInsert(item{entry})
	return nil
}

// Hide adds path to this delta's hide set. Hiding a path that was also
// written in this same delta erases the write (hide wins over delta at the
// same view level, spec.md §4.2 tie-break rule): lookups will see
// not-found rather than falling through to the write.
func (d *Delta) Hide(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sealed {
		return fmt.Errorf("refindex: hide %s: %w", path, geoerr.ErrSealedView)
	}
	d.hidden[path] = struct{}{}
	return nil
}

// Hidden reports whether path is in this delta's hide set.
func (d *Delta) Hidden(path string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.hidden[path]
	return ok
}

// HiddenPaths returns a snapshot of all paths hidden in this delta, for
// serialization.
func (d *Delta) HiddenPaths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.hidden))
	for p := range d.hidden {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// LookupLocal implements spec.md §4.2 resolution steps 1-2 for this delta
// alone: hide wins, then a local delta entry, otherwise "not present
// locally" (ok=false) so the caller falls through to the parent view. The
// View Graph uses this to walk the parent chain (step 3).
func (d *Delta) LookupLocal(path string) (entry RefEntry, hiddenHere bool, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, h := d.hidden[path]; h {
		return RefEntry{}, true, false
	}
	it := d.tree.Get(item{RefEntry{Path: path}})
	if it == nil {
		return RefEntry{}, false, false
	}
	return it.(item).entry, false, true
}

// Lookup resolves path against this delta alone (no parent fallback). A
// hidden path and an absent path both report ok=false; the View Graph's
// chained resolution uses LookupLocal instead, which tells them apart.
func (d *Delta) Lookup(path string) (RefEntry, bool) {
	e, hidden, ok := d.LookupLocal(path)
	if hidden {
		return RefEntry{}, false
	}
	return e, ok
}

// HiddenImmediateChildren returns the names (not full paths), in no
// particular order, of paths hidden in this delta whose parent directory
// is dir. Used when merging directory listings across a view chain.
func (d *Delta) HiddenImmediateChildren(dir string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	prefix := dir
	if prefix != "" && prefix != "/" {
		prefix += "/"
	} else {
		prefix = "/"
	}
	var out []string
	for p := range d.hidden {
		if !bytes.HasPrefix([]byte(p), []byte(prefix)) {
			continue
		}
		rest := p[len(prefix):]
		if rest == "" || indexByte(rest, '/') >= 0 {
			continue
		}
		out = append(out, rest)
	}
	return out
}

// List returns, in path-byte order, every entry in this delta whose Path
// has dir as its immediate parent directory, excluding hidden ones. This
// is a single-delta listing; the View Graph merges listings across the
// parent chain.
func (d *Delta) List(dir string) []RefEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	prefix := dir
	if prefix != "" && prefix != "/" {
		prefix += "/"
	} else {
		prefix = "/"
	}
	var out []RefEntry
	d.tree.Ascend(func(i btree.Item) bool {
		e := i.(item).entry
		if !bytes.HasPrefix([]byte(e.Path), []byte(prefix)) {
			return true
		}
		rest := e.Path[len(prefix):]
		if rest == "" || (len(rest) > 0 && indexByte(rest, '/') >= 0) {
			return true
		}
		if _, hidden := d.hidden[e.Path]; !hidden {
			out = append(out, e)
		}
		return true
	})
	return out
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// Entries returns every RefEntry in this delta, in path-byte order, for
// serialization.
func (d *Delta) Entries() []RefEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]RefEntry, 0, d.tree.Len())
	d.tree.Ascend(func(i btree.Item) bool {
		out = append(out, i.(item).entry)
		return true
	})
	return out
}
