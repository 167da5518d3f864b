// Package viewgraph implements the View Graph of spec.md §4.3: an
// append-only forest of immutable named snapshots, with a distinguished
// unsealed working view that writes extend and a current view that reads
// resolve against.
//
// Per spec.md §9's "Cyclic / owning references" design note, views are
// represented by stable 64-bit ids in a flat arena (map[ViewID]*View) with
// child-to-parent links only; there are no back-references, so the graph
// can never become cyclic by construction (a child's parent must already
// exist in the arena before the child is created).
package viewgraph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mohae/deepcopy"

	"github.com/ghartrid/geology/pkg/geoerr"
	"github.com/ghartrid/geology/pkg/refindex"
)

// ViewID is a view identifier, monotonic within a volume and never reused
// (spec.md invariant V1).
type ViewID uint64

// View is one node of the View Graph.
type View struct {
	ID       ViewID
	HasParent bool
	Parent   ViewID
	Label    string
	Created  int64 // unix nanoseconds; advisory only, per spec.md §1 Non-goal (iii)
	Sealed   bool
	Delta    *refindex.Delta
}

// Info is the read-only projection of a View returned by ListViews, a
// snapshot taken under lock so callers can't observe a torn write.
type Info struct {
	ID      ViewID
	Parent  ViewID
	HasParent bool
	Label   string
	Created int64
}

// Graph is the View Graph for one volume.
type Graph struct {
	mu      sync.RWMutex
	arena   map[ViewID]*View
	order   []ViewID // sealed views, in creation (sealing) order
	nextID  ViewID
	working ViewID
	current ViewID

	now func() int64
}

// New creates a fresh View Graph: an initial empty, already-sealed root
// view (id 0, no parent, no label) and an empty unsealed working view
// parented on it. The current (read) view starts at the root, so nothing
// is visible until the first snapshot.
func New(now func() int64) *Graph {
	g := &Graph{
		arena: make(map[ViewID]*View),
		now:   now,
	}
	root := &View{ID: 0, Sealed: true, Delta: refindex.NewDelta(), Created: now()}
	root.Delta.Seal()
	g.arena[0] = root
	g.order = append(g.order, 0)
	g.nextID = 1
	g.working = g.newWorkingLocked(0, true)
	g.current = 0
	return g
}

// newWorkingLocked allocates a fresh unsealed view parented on parent and
// returns its id. Callers must hold g.mu.
func (g *Graph) newWorkingLocked(parent ViewID, hasParent bool) ViewID {
	id := g.nextID
	g.nextID++
	g.arena[id] = &View{ID: id, Parent: parent, HasParent: hasParent, Delta: refindex.NewDelta()}
	return id
}

// WorkingID returns the id of the current (unsealed) working view.
func (g *Graph) WorkingID() ViewID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.working
}

// CurrentID returns the id of the view reads resolve against.
func (g *Graph) CurrentID() ViewID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// WorkingDelta returns the Ref Index delta that write/hide extend.
func (g *Graph) WorkingDelta() *refindex.Delta {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.arena[g.working].Delta
}

// view looks up id in the arena. Callers must hold g.mu (read or write).
func (g *Graph) view(id ViewID) (*View, error) {
	v, ok := g.arena[id]
	if !ok {
		return nil, fmt.Errorf("viewgraph: view %d: %w", id, geoerr.ErrNotFound)
	}
	return v, nil
}

// Snapshot seals the current working view under label and allocates a
// fresh working view parented on it (spec.md §4.3). The newly sealed view
// also becomes the current (read) view: this is the release barrier of
// spec.md §5 — "all writes before it are visible in the sealed view and in
// any later switch()". Returns the sealed view's id.
func (g *Graph) Snapshot(label string) (ViewID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	w, err := g.view(g.working)
	if err != nil {
		return 0, err
	}

	w.Label = label
	w.Created = g.now()
	w.Delta.Seal()
	w.Sealed = true
	g.order = append(g.order, w.ID)

	sealedID := w.ID
	g.working = g.newWorkingLocked(sealedID, true)
	g.current = sealedID
	return sealedID, nil
}

// Switch changes the current (read) view. It does not affect the working
// view (spec.md §4.3): this is purely a reader-side operation.
func (g *Graph) Switch(id ViewID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, err := g.view(id)
	if err != nil {
		return err
	}
	if !v.Sealed {
		return fmt.Errorf("viewgraph: switch %d: view not sealed: %w", id, geoerr.ErrInvalidArgument)
	}
	g.current = id
	return nil
}

// Parent returns id's parent view, if any.
func (g *Graph) Parent(id ViewID) (ViewID, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, err := g.view(id)
	if err != nil {
		return 0, false, err
	}
	return v.Parent, v.HasParent, nil
}

// ListViews returns every sealed view in creation (sealing) order, per
// spec.md §4.3. The slice is deep-copied out of the arena (rather than
// referencing View structs directly) so a caller holding the result can
// never observe or alias a later in-place mutation of graph bookkeeping —
// the same defensive-copy discipline spec.md invariant V2 requires of the
// views themselves.
func (g *Graph) ListViews() []Info {
	g.mu.RLock()
	out := make([]Info, 0, len(g.order))
	for _, id := range g.order {
		v := g.arena[id]
		out = append(out, Info{ID: v.ID, Parent: v.Parent, HasParent: v.HasParent, Label: v.Label, Created: v.Created})
	}
	g.mu.RUnlock()
	return deepcopy.Copy(out).([]Info)
}

// Resolve implements spec.md §4.2's full resolution algorithm (hide wins,
// then local delta, then recurse to parent) starting at viewID, which may
// be any view known to the graph, sealed or the current working view.
func (g *Graph) Resolve(viewID ViewID, path string) (refindex.RefEntry, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id := viewID
	for {
		v, ok := g.arena[id]
		if !ok {
			return refindex.RefEntry{}, false, fmt.Errorf("viewgraph: resolve: view %d: %w", id, geoerr.ErrNotFound)
		}
		entry, hiddenHere, found := v.Delta.LookupLocal(path)
		if hiddenHere {
			return refindex.RefEntry{}, false, nil
		}
		if found {
			return entry, true, nil
		}
		if !v.HasParent {
			return refindex.RefEntry{}, false, nil
		}
		id = v.Parent
	}
}

// List merges directory listings across viewID's parent chain: a delta
// closer to viewID decides (present or hidden) a name once and for all;
// an ancestor's entry for an already-decided name is ignored. Results are
// returned in path-byte order, per spec.md §4.2.
func (g *Graph) List(viewID ViewID, dir string) ([]refindex.RefEntry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	decided := make(map[string]bool)
	var out []refindex.RefEntry
	id := viewID
	for {
		v, ok := g.arena[id]
		if !ok {
			return nil, fmt.Errorf("viewgraph: list: view %d: %w", id, geoerr.ErrNotFound)
		}
		for _, e := range v.Delta.List(dir) {
			name := e.Path[len(e.Path)-len(baseName(e.Path)):]
			if decided[name] {
				continue
			}
			decided[name] = true
			out = append(out, e)
		}
		for _, name := range v.Delta.HiddenImmediateChildren(dir) {
			decided[name] = true
		}
		if !v.HasParent {
			break
		}
		id = v.Parent
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// RestoreRow is one sealed view as read back from the volume's on-disk
// views/index plus its refs/<id>/{delta,hide} files, in sealing order.
// Only geofs's Open path constructs these, during crash recovery /
// ordinary reopen.
type RestoreRow struct {
	ID        ViewID
	HasParent bool
	Parent    ViewID
	Label     string
	Created   int64
	Entries   []refindex.RefEntry
	Hidden    []string
}

// Restore rebuilds a Graph from previously sealed rows (oldest first,
// matching views/index's on-disk order) and opens a fresh unsealed working
// view parented on the last row. Any on-disk delta belonging to a view id
// not present in rows has already been discarded by the caller per
// spec.md §6's crash-recovery rule before Restore is called.
func Restore(now func() int64, rows []RestoreRow) (*Graph, error) {
	if len(rows) == 0 {
		return New(now), nil
	}
	g := &Graph{arena: make(map[ViewID]*View), now: now}
	var maxID ViewID
	for _, row := range rows {
		d := refindex.NewDelta()
		for _, e := range row.Entries {
			if err := d.Insert(e.Path, e); err != nil {
				return nil, err
			}
		}
		for _, p := range row.Hidden {
			if err := d.Hide(p); err != nil {
				return nil, err
			}
		}
		d.Seal()
		g.arena[row.ID] = &View{
			ID: row.ID, HasParent: row.HasParent, Parent: row.Parent,
			Label: row.Label, Created: row.Created, Sealed: true, Delta: d,
		}
		g.order = append(g.order, row.ID)
		if row.ID > maxID {
			maxID = row.ID
		}
	}
	g.nextID = maxID + 1
	last := rows[len(rows)-1]
	g.working = g.newWorkingLocked(last.ID, true)
	g.current = last.ID
	return g, nil
}

func baseName(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	return path[i+1:]
}
