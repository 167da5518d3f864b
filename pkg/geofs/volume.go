// Package geofs implements the GeoFS Volume facade of spec.md §4.4: the
// single entry point that ties the Content Store, the Ref Index, and the
// View Graph together into the eight operations of spec.md §3 (write,
// read, hide, exists, list, snapshot, switch, stats), plus the on-disk
// layout and crash-recovery rule of spec.md §6.
package geofs

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/time/rate"

	"github.com/ghartrid/geology/pkg/content"
	"github.com/ghartrid/geology/pkg/geoerr"
	"github.com/ghartrid/geology/pkg/geolog"
	"github.com/ghartrid/geology/pkg/refindex"
	"github.com/ghartrid/geology/pkg/viewgraph"
)

// digestAlgorithm is recorded in every volume's views/index header. Only
// one digest construction is supported today, but the header format
// (indexHeader) leaves room for a volume to record a different one.
const digestAlgorithm = "sha256"

// Options configures Open/Create.
type Options struct {
	// QuotaBytes bounds the total bytes this volume will ever accept
	// across its lifetime (0 disables the quota). Modeled as a token
	// bucket that never refills (spec.md §4.4's budget is a ceiling, not
	// a rate), per SPEC_FULL.md's domain-stack note on golang.org/x/time.
	QuotaBytes int64

	Log geolog.Logger
}

// Stats is the result of Volume.Stats, spec.md §4.4's stats() operation.
type Stats struct {
	ViewCount    int
	LogicalBytes int64 // sum of every ref entry's Size ever written
	UniqueBytes  int64 // sum of distinct blob sizes in the Content Store
	DedupSavings int64 // LogicalBytes - UniqueBytes
}

// Volume is the GeoFS Volume facade for one on-disk root directory.
//
// Per spec.md §5, a volume has a single writer: write/hide/snapshot/switch
// all take v.mu, and Open refuses to proceed if another process already
// holds the write lease. Reads (read/exists/list) need no lock of their
// own since content.Store and viewgraph.Graph are both internally
// synchronized and read a point-in-time view; stats takes v.mu because it
// reads the byte counters that write updates.
type Volume struct {
	root    string
	content *content.Store
	graph   *viewgraph.Graph
	lease   *flock.Flock
	limiter *rate.Limiter
	log     geolog.Logger

	mu          sync.Mutex
	logicalBytes int64
	blobSizes    map[content.Digest]int64
}

// Create initializes a brand-new volume rooted at dir. It is an error for
// dir's views/index to already exist; use Open to reopen one.
func Create(dir string, opts Options) (*Volume, error) {
	if _, err := os.Stat(indexPath(dir)); err == nil {
		return nil, fmt.Errorf("geofs: create %s: %w", dir, geoerr.ErrExists)
	}
	return open(dir, opts, true)
}

// Open reopens an existing volume, or creates one at dir if none exists
// yet. Crash recovery (spec.md §6) happens here: any refs/<id>/delta or
// refs/<id>/hide file whose id is not listed in views/index is simply
// never read, which is equivalent to discarding it.
func Open(dir string, opts Options) (*Volume, error) {
	return open(dir, opts, false)
}

func open(dir string, opts Options, fresh bool) (*Volume, error) {
	log := opts.Log
	if log == nil {
		log = geolog.New(nil, "text", false)
	}
	log = geolog.Component(log, "geofs")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("geofs: open %s: %w: %v", dir, geoerr.ErrIOError, err)
	}

	lease := flock.New(filepath.Join(dir, ".write-lease"))
	locked, err := lease.TryLock()
	if err != nil {
		return nil, fmt.Errorf("geofs: acquire write lease: %w: %v", geoerr.ErrIOError, err)
	}
	if !locked {
		return nil, fmt.Errorf("geofs: %s: another writer already holds the lease: %w", dir, geoerr.ErrIOError)
	}

	store, err := content.Open(dir)
	if err != nil {
		lease.Unlock()
		return nil, err
	}

	v := &Volume{
		root:      dir,
		content:   store,
		lease:     lease,
		log:       log,
		blobSizes: make(map[content.Digest]int64),
	}
	if opts.QuotaBytes > 0 {
		// r=0: the bucket never refills, so burst alone is the volume's
		// total lifetime byte budget rather than a steady-state rate.
		v.limiter = rate.NewLimiter(rate.Limit(0), int(opts.QuotaBytes))
	}

	now := func() int64 { return time.Now().UnixNano() }

	if fresh {
		v.graph = viewgraph.New(now)
		if err := v.persistIndex(); err != nil {
			lease.Unlock()
			return nil, err
		}
		return v, nil
	}

	rows, err := v.loadRestoreRows()
	if err != nil {
		lease.Unlock()
		return nil, err
	}
	graph, err := viewgraph.Restore(now, rows)
	if err != nil {
		lease.Unlock()
		return nil, err
	}
	v.graph = graph
	for _, row := range rows {
		for _, e := range row.Entries {
			v.accountEntryLocked(e)
		}
	}
	if v.limiter != nil && v.logicalBytes > 0 {
		// Drain the reopened bucket by what earlier sessions already
		// spent, so the lifetime quota survives a restart instead of
		// resetting to a full burst every time the volume is opened.
		// AllowN refuses (without consuming) any n above the bucket's
		// burst, so an already-over-quota volume is drained to zero in
		// burst-sized steps instead of one call that would no-op.
		spent := v.logicalBytes
		burst := int64(opts.QuotaBytes)
		for spent > 0 {
			step := burst
			if spent < step {
				step = spent
			}
			v.limiter.AllowN(time.Now(), int(step))
			spent -= step
		}
	}
	return v, nil
}

// Close releases the write lease. It does not close the Content Store,
// which holds no file descriptors between calls.
func (v *Volume) Close() error {
	return v.lease.Unlock()
}

func indexPath(root string) string { return filepath.Join(root, "views", "index") }

func deltaPath(root string, id viewgraph.ViewID) string {
	return filepath.Join(root, "refs", strconv.FormatUint(uint64(id), 10), "delta")
}

func hidePath(root string, id viewgraph.ViewID) string {
	return filepath.Join(root, "refs", strconv.FormatUint(uint64(id), 10), "hide")
}

// loadRestoreRows reads views/index and, for every row it names, the
// matching refs/<id>/{delta,hide} files. A views/index that doesn't exist
// yet means a fresh volume (zero rows, not an error).
func (v *Volume) loadRestoreRows() ([]viewgraph.RestoreRow, error) {
	raw, err := os.ReadFile(indexPath(v.root))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("geofs: read views/index: %w: %v", geoerr.ErrIOError, err)
	}
	_, rows, err := decodeViewsIndex(raw)
	if err != nil {
		return nil, err
	}
	out := make([]viewgraph.RestoreRow, 0, len(rows))
	for _, row := range rows {
		var entries []refindex.RefEntry
		if b, err := os.ReadFile(deltaPath(v.root, row.ID)); err == nil {
			entries, err = decodeDelta(b)
			if err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("geofs: read %s: %w: %v", deltaPath(v.root, row.ID), geoerr.ErrIOError, err)
		}
		var hidden []string
		if b, err := os.ReadFile(hidePath(v.root, row.ID)); err == nil {
			hidden = decodeHideSet(b)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("geofs: read %s: %w: %v", hidePath(v.root, row.ID), geoerr.ErrIOError, err)
		}
		out = append(out, viewgraph.RestoreRow{
			ID: row.ID, HasParent: row.HasParent, Parent: row.Parent,
			Label: row.Label, Created: row.Created,
			Entries: entries, Hidden: hidden,
		})
	}
	return out, nil
}

// persistIndex rewrites views/index from the graph's current sealed-view
// list. Called after every snapshot, and once at volume creation so a
// volume closed before its first snapshot still recovers its root view.
func (v *Volume) persistIndex() error {
	infos := v.graph.ListViews()
	rows := make([]viewRow, 0, len(infos))
	for _, in := range infos {
		rows = append(rows, viewRow{
			ID: in.ID, HasParent: in.HasParent, Parent: in.Parent,
			Label: in.Label, Created: in.Created,
		})
	}
	b := encodeViewsIndex(indexHeader{DigestAlgorithm: digestAlgorithm}, rows)
	return writeFileAtomic(indexPath(v.root), b)
}

// persistWorkingDelta flushes the working view's current delta and hide
// set to disk, so a crash mid-way through a series of writes still leaves
// refs/<working-id>/{delta,hide} in a consistent (if not-yet-sealed)
// state. Per spec.md §6, this unsealed state is discarded on the next
// Open/Restore unless a snapshot sealed it first.
func (v *Volume) persistWorkingDelta() error {
	id := v.graph.WorkingID()
	delta := v.graph.WorkingDelta()
	if err := writeFileAtomic(deltaPath(v.root, id), encodeDelta(delta.Entries())); err != nil {
		return err
	}
	return writeFileAtomic(hidePath(v.root, id), encodeHideSet(delta.HiddenPaths()))
}

func validatePath(p string) error {
	if p == "" || p[0] != '/' {
		return fmt.Errorf("geofs: path %q: %w", p, geoerr.ErrInvalidArgument)
	}
	if p != "/" && strings.HasSuffix(p, "/") {
		return fmt.Errorf("geofs: path %q: trailing slash: %w", p, geoerr.ErrInvalidArgument)
	}
	if path.Clean(p) != p {
		return fmt.Errorf("geofs: path %q: not clean: %w", p, geoerr.ErrInvalidArgument)
	}
	return nil
}

// ensureParentDirsLocked inserts a directory RefEntry for every ancestor
// of p not already resolvable in the working view, per spec.md §4.4:
// "write implicitly creates any missing parent directories." Callers must
// hold v.mu.
func (v *Volume) ensureParentDirsLocked(p string) error {
	dir := path.Dir(p)
	if dir == "/" || dir == "." {
		return nil
	}
	var dirs []string
	for dir != "/" && dir != "." {
		dirs = append([]string{dir}, dirs...)
		dir = path.Dir(dir)
	}
	working := v.graph.WorkingID()
	for _, d := range dirs {
		if _, ok, err := v.graph.Resolve(working, d); err != nil {
			return err
		} else if ok {
			continue
		}
		if err := v.graph.WorkingDelta().Insert(d, refindex.RefEntry{Kind: refindex.KindDirectory}); err != nil {
			return err
		}
	}
	return nil
}

func (v *Volume) accountEntryLocked(e refindex.RefEntry) {
	v.logicalBytes += e.Size
	if _, ok := v.blobSizes[e.Digest]; !ok {
		v.blobSizes[e.Digest] = e.Size
	}
}

// Write stores data under path in the working view, per spec.md §4.4.
// Writing the same bytes to the same path twice leaves the working view
// with one ref entry for path (the second write replaces the first) and a
// single underlying blob, per the Content Store's dedup guarantee. Both
// writes still count towards LogicalBytes in Stats.
func (v *Volume) Write(p string, data []byte) error {
	if err := validatePath(p); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.limiter != nil && !v.limiter.AllowN(time.Now(), len(data)) {
		return fmt.Errorf("geofs: write %s: %w", p, geoerr.ErrQuota)
	}

	digest, err := v.content.Put(data)
	if err != nil {
		return err
	}
	if err := v.ensureParentDirsLocked(p); err != nil {
		return err
	}
	entry := refindex.RefEntry{
		Kind:      refindex.KindFile,
		Digest:    digest,
		Size:      int64(len(data)),
		MTimeHint: time.Now().UnixNano(),
	}
	if err := v.graph.WorkingDelta().Insert(p, entry); err != nil {
		return err
	}
	v.accountEntryLocked(entry)
	if err := v.persistWorkingDelta(); err != nil {
		return err
	}
	v.log.WithField("path", p).WithField("digest", digest.String()).Debug("wrote ref entry")
	return nil
}

// Read returns the bytes referenced by path in the current view, per
// spec.md §4.4.
func (v *Volume) Read(p string) ([]byte, error) {
	if err := validatePath(p); err != nil {
		return nil, err
	}
	entry, ok, err := v.graph.Resolve(v.graph.CurrentID(), p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("geofs: read %s: %w", p, geoerr.ErrNotFound)
	}
	if entry.Kind != refindex.KindFile {
		return nil, fmt.Errorf("geofs: read %s: not a file: %w", p, geoerr.ErrInvalidArgument)
	}
	return v.content.Get(entry.Digest)
}

// Hide marks path not-found in the working view onward, without touching
// the underlying blobs or any sealed view's history (spec.md §4.2). Only
// path itself is hidden: if it names a directory, entries beneath it
// still resolve. Hiding a path already absent in the working view is a
// no-op, not an error.
func (v *Volume) Hide(p string) error {
	if err := validatePath(p); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	_, ok, err := v.graph.Resolve(v.graph.WorkingID(), p)
	if err != nil {
		return err
	}
	if !ok {
		v.log.WithField("path", p).Warn("hide: path already absent, no-op")
		return nil
	}
	if err := v.graph.WorkingDelta().Hide(p); err != nil {
		return err
	}
	return v.persistWorkingDelta()
}

// Exists reports whether path resolves in the current view.
func (v *Volume) Exists(p string) (bool, error) {
	if err := validatePath(p); err != nil {
		return false, err
	}
	_, ok, err := v.graph.Resolve(v.graph.CurrentID(), p)
	return ok, err
}

// CurrentView returns the id of the view reads resolve against right now.
// Callers that need a read pinned against a fixed point in time (VFS's
// snapshot-on-open file handles, SPEC_FULL.md §C.1) should capture this
// once at open time and pass it to ReadAt/StatAt/ListAt thereafter.
func (v *Volume) CurrentView() viewgraph.ViewID {
	return v.graph.CurrentID()
}

// Stat returns path's ref entry as resolved in the current view.
func (v *Volume) Stat(p string) (refindex.RefEntry, bool, error) {
	return v.StatAt(v.graph.CurrentID(), p)
}

// StatAt returns path's ref entry as resolved in the given view,
// regardless of which view is current now.
func (v *Volume) StatAt(viewID viewgraph.ViewID, p string) (refindex.RefEntry, bool, error) {
	if err := validatePath(p); err != nil {
		return refindex.RefEntry{}, false, err
	}
	return v.graph.Resolve(viewID, p)
}

// ReadAt returns path's content as resolved in the given view, regardless
// of which view is current now — the primitive a pinned file handle reads
// through.
func (v *Volume) ReadAt(viewID viewgraph.ViewID, p string) ([]byte, error) {
	entry, ok, err := v.StatAt(viewID, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("geofs: read %s: %w", p, geoerr.ErrNotFound)
	}
	if entry.Kind != refindex.KindFile {
		return nil, fmt.Errorf("geofs: read %s: not a file: %w", p, geoerr.ErrInvalidArgument)
	}
	return v.content.Get(entry.Digest)
}

// ListAt returns dir's immediate children as resolved in the given view.
func (v *Volume) ListAt(viewID viewgraph.ViewID, dir string) ([]refindex.RefEntry, error) {
	if dir != "/" {
		if err := validatePath(dir); err != nil {
			return nil, err
		}
	}
	return v.graph.List(viewID, dir)
}

// List returns dir's immediate children in the current view, merged
// across its view chain, per spec.md §4.2.
func (v *Volume) List(dir string) ([]refindex.RefEntry, error) {
	if dir != "/" {
		if err := validatePath(dir); err != nil {
			return nil, err
		}
	}
	return v.graph.List(v.graph.CurrentID(), dir)
}

// Snapshot seals the working view under label and returns its id, per
// spec.md §4.3. The sealed view becomes the current (read) view.
func (v *Volume) Snapshot(label string) (viewgraph.ViewID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id, err := v.graph.Snapshot(label)
	if err != nil {
		return 0, err
	}
	if err := v.persistIndex(); err != nil {
		return 0, err
	}
	v.log.WithField("view", id).WithField("label", label).Info("sealed view")
	return id, nil
}

// Switch changes the current (read) view to a previously sealed view,
// without affecting the working view, per spec.md §4.3.
func (v *Volume) Switch(id viewgraph.ViewID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.graph.Switch(id)
}

// ListViews returns every sealed view in sealing order.
func (v *Volume) ListViews() []viewgraph.Info {
	return v.graph.ListViews()
}

// Stats reports aggregate usage, including dedup-savings (spec.md §4.4):
// the bytes saved by content-addressed deduplication across every ref
// entry ever written to this volume.
func (v *Volume) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	var unique int64
	for _, sz := range v.blobSizes {
		unique += sz
	}
	return Stats{
		ViewCount:    len(v.graph.ListViews()),
		LogicalBytes: v.logicalBytes,
		UniqueBytes:  unique,
		DedupSavings: v.logicalBytes - unique,
	}
}
