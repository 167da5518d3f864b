// Package procfs implements the pseudo-filesystem of spec.md §4.5.2:
// content-generated-on-open entries describing the running volume and
// Governor, modeled on gVisor's pkg/sentry/fsimpl/proc (tasks.go's
// "newTasksInode" content-generator-per-file map).
package procfs

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ghartrid/geology/pkg/geoerr"
	"github.com/ghartrid/geology/pkg/geofs"
	"github.com/ghartrid/geology/pkg/vfs"
)

// PolicyInfo is implemented by the Governor, giving /proc/constitution
// something to render without procfs importing the governor package
// directly (mirroring how gVisor's proc package takes a *kernel.Kernel
// rather than depending on individual subsystems' packages).
type PolicyInfo interface {
	PolicyVersion() string
	PatternDigest() string
}

// Options configures the procfs mount.
type Options struct {
	Volume *geofs.Volume
	Mounts *vfs.MountTable
	Policy PolicyInfo

	// InodeCacheSize bounds the generated-content cache (spec.md §9 Open
	// Question 1). 0 disables caching: every read regenerates content.
	InodeCacheSize int

	// BootTime is used to compute /proc/uptime. Tests pass a fixed value
	// so the rendered content is deterministic.
	BootTime time.Time
}

// FilesystemType implements vfs.FilesystemType for procfs.
type FilesystemType struct {
	Opts Options
}

func (FilesystemType) Name() string { return "procfs" }

func (FilesystemType) Capabilities() []string { return []string{"read", "list"} }

func (t FilesystemType) GetFilesystem(opts map[string]string) (vfs.Filesystem, error) {
	return newFilesystem(t.Opts), nil
}

type generator func(ctx context.Context) ([]byte, error)

// Filesystem is the mounted procfs instance.
type Filesystem struct {
	root *dirInode
}

func (f *Filesystem) Root() vfs.Inode { return f.root }

func newFilesystem(opts Options) *Filesystem {
	c := newCache(opts.InodeCacheSize)
	root := &dirInode{RefCount: vfs.NewRefCount(), children: make(map[string]vfs.Inode)}

	add := func(name string, gen generator) {
		root.children[name] = &fileInode{RefCount: vfs.NewRefCount(), name: name, gen: gen, cache: c}
	}
	add("version", versionGenerator)
	add("uptime", uptimeGenerator(opts.BootTime))
	add("stat", statGenerator(opts.Volume))
	add("mounts", mountsGenerator(opts.Mounts))
	add("constitution", constitutionGenerator(opts.Policy))
	add("self", selfGenerator)

	return &Filesystem{root: root}
}

func versionGenerator(ctx context.Context) ([]byte, error) {
	return []byte("geology volume kernel\n"), nil
}

func uptimeGenerator(boot time.Time) generator {
	return func(ctx context.Context) ([]byte, error) {
		if boot.IsZero() {
			return []byte("0.00\n"), nil
		}
		secs := time.Since(boot).Seconds()
		return []byte(fmt.Sprintf("%.2f\n", secs)), nil
	}
}

func statGenerator(vol *geofs.Volume) generator {
	return func(ctx context.Context) ([]byte, error) {
		if vol == nil {
			return []byte("views 0\nlogical-bytes 0\nunique-bytes 0\ndedup-savings 0\n"), nil
		}
		st := vol.Stats()
		return []byte(fmt.Sprintf(
			"views %d\nlogical-bytes %d\nunique-bytes %d\ndedup-savings %d\n",
			st.ViewCount, st.LogicalBytes, st.UniqueBytes, st.DedupSavings,
		)), nil
	}
}

func mountsGenerator(mounts *vfs.MountTable) generator {
	return func(ctx context.Context) ([]byte, error) {
		if mounts == nil {
			return nil, nil
		}
		var out []byte
		for _, p := range mounts.Prefixes() {
			out = append(out, []byte(p+"\n")...)
		}
		return out, nil
	}
}

// constitutionGenerator renders the Governor's policy version and
// pattern-table digest as human-readable text, per SPEC_FULL.md §C.3:
// "the Destructive-pattern table... itself a versioned asset."
func constitutionGenerator(policy PolicyInfo) generator {
	return func(ctx context.Context) ([]byte, error) {
		if policy == nil {
			return []byte("policy-version unset\npattern-digest unset\n"), nil
		}
		return []byte(fmt.Sprintf(
			"policy-version %s\npattern-digest %s\n",
			policy.PolicyVersion(), policy.PatternDigest(),
		)), nil
	}
}

// selfGenerator resolves /proc/self to a fixed synthetic actor record,
// per SPEC_FULL.md §C.4: this system has no process table of its own, so
// "self" always names the actor "geology-kernel". It is not tied to the
// actor names on Governor audit records, which the submitting caller
// supplies.
func selfGenerator(ctx context.Context) ([]byte, error) {
	return []byte("actor geology-kernel\n"), nil
}

type dirInode struct {
	*vfs.RefCount
	children map[string]vfs.Inode
}

func (d *dirInode) Kind() vfs.NodeKind { return vfs.KindDirectory }
func (d *dirInode) Stat(ctx context.Context) (vfs.Attr, error) {
	return vfs.Attr{Kind: vfs.KindDirectory}, nil
}
func (d *dirInode) Lookup(ctx context.Context, name string) (vfs.Inode, error) {
	c, ok := d.children[name]
	if !ok {
		return nil, fmt.Errorf("procfs: lookup /proc/%s: %w", name, geoerr.ErrNotFound)
	}
	return c, nil
}
func (d *dirInode) IterDirents(ctx context.Context) ([]vfs.Dirent, error) {
	out := make([]vfs.Dirent, 0, len(d.children))
	for name, c := range d.children {
		out = append(out, vfs.Dirent{Name: name, Kind: c.Kind()})
	}
	return out, nil
}

// fileInode is a content-generator-on-open node: content is generated on
// Open (or Stat), never captured at mount time. With the cache disabled
// every call regenerates it; with the cache enabled, later calls reuse the
// bytes from the first generation until the cache evicts them.
type fileInode struct {
	*vfs.RefCount
	name  string
	gen   generator
	cache *cache
}

func (n *fileInode) Kind() vfs.NodeKind { return vfs.KindFile }

func (n *fileInode) content(ctx context.Context) ([]byte, error) {
	if b, ok := n.cache.get(n.name); ok {
		return b, nil
	}
	b, err := n.gen(ctx)
	if err != nil {
		return nil, err
	}
	n.cache.put(n.name, b)
	return b, nil
}

func (n *fileInode) Stat(ctx context.Context) (vfs.Attr, error) {
	b, err := n.content(ctx)
	if err != nil {
		return vfs.Attr{}, err
	}
	return vfs.Attr{Kind: vfs.KindFile, Size: int64(len(b))}, nil
}

func (n *fileInode) Open(ctx context.Context) (vfs.FileHandle, error) {
	b, err := n.content(ctx)
	if err != nil {
		return nil, err
	}
	return &readerHandle{b: b}, nil
}

type readerHandle struct {
	b   []byte
	pos int
}

func (h *readerHandle) Read(p []byte) (int, error) {
	if h.pos >= len(h.b) {
		return 0, io.EOF
	}
	n := copy(p, h.b[h.pos:])
	h.pos += n
	return n, nil
}

func (h *readerHandle) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("procfs: write: %w", geoerr.ErrNotSupported)
}

func (h *readerHandle) Close() error { return nil }
