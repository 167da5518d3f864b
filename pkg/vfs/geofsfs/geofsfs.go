// Package geofsfs adapts a *geofs.Volume into a vfs.FilesystemType, the
// GeoFS-backed filesystem SPEC_FULL.md's package layout names — the role
// gVisor's gofer/tmpfs client filesystems play for its VFS.
package geofsfs

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ghartrid/geology/pkg/geoerr"
	"github.com/ghartrid/geology/pkg/geofs"
	"github.com/ghartrid/geology/pkg/refindex"
	"github.com/ghartrid/geology/pkg/vfs"
)

// FilesystemType wraps one *geofs.Volume for mounting into a vfs.Registry.
type FilesystemType struct {
	Volume *geofs.Volume
}

func (FilesystemType) Name() string { return "geofs" }

// Capabilities excludes unlink/rmdir/truncate: geofs.Volume exposes no
// such operation, so there is nothing here for vfs.Registry to reject at
// Register time beyond what's already absent from this type.
func (FilesystemType) Capabilities() []string {
	return []string{"read", "write", "hide", "list", "snapshot", "switch"}
}

func (t FilesystemType) GetFilesystem(opts map[string]string) (vfs.Filesystem, error) {
	return &Filesystem{vol: t.Volume}, nil
}

// Filesystem is a mounted GeoFS volume.
type Filesystem struct {
	vol *geofs.Volume
}

func (f *Filesystem) Root() vfs.Inode {
	return &inode{RefCount: vfs.NewRefCount(), vol: f.vol, path: "/", kind: vfs.KindDirectory}
}

// inode is a path handle into a GeoFS volume. It caches only the node
// kind (immutable for this spec's lifetime: a path's kind never changes
// underneath it, only its content does); every other property is
// resolved fresh against the volume's current view on each call, the
// same "dentries don't need to cache filesystem state" posture gVisor's
// VFS documents for remote-backed filesystems.
type inode struct {
	*vfs.RefCount
	vol  *geofs.Volume
	path string
	kind vfs.NodeKind
}

func convertKind(k refindex.Kind) vfs.NodeKind {
	switch k {
	case refindex.KindDirectory:
		return vfs.KindDirectory
	case refindex.KindSymlink:
		return vfs.KindSymlink
	case refindex.KindDevice:
		return vfs.KindDevice
	default:
		return vfs.KindFile
	}
}

func (n *inode) Kind() vfs.NodeKind { return n.kind }

func (n *inode) Stat(ctx context.Context) (vfs.Attr, error) {
	if n.path == "/" {
		return vfs.Attr{Kind: vfs.KindDirectory}, nil
	}
	e, ok, err := n.vol.Stat(n.path)
	if err != nil {
		return vfs.Attr{}, err
	}
	if !ok {
		return vfs.Attr{}, fmt.Errorf("geofsfs: stat %s: %w", n.path, geoerr.ErrNotFound)
	}
	return vfs.Attr{Kind: convertKind(e.Kind), Size: e.Size, MTimeHint: e.MTimeHint}, nil
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

func (n *inode) Lookup(ctx context.Context, name string) (vfs.Inode, error) {
	child := joinPath(n.path, name)
	e, ok, err := n.vol.Stat(child)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("geofsfs: lookup %s: %w", child, geoerr.ErrNotFound)
	}
	return &inode{RefCount: vfs.NewRefCount(), vol: n.vol, path: child, kind: convertKind(e.Kind)}, nil
}

func (n *inode) IterDirents(ctx context.Context) ([]vfs.Dirent, error) {
	entries, err := n.vol.List(n.path)
	if err != nil {
		return nil, err
	}
	out := make([]vfs.Dirent, 0, len(entries))
	for _, e := range entries {
		name := e.Path
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		out = append(out, vfs.Dirent{Name: name, Kind: convertKind(e.Kind)})
	}
	return out, nil
}

// Open implements vfs.FileOpener. Per SPEC_FULL.md's stable-snapshot file
// handles, the handle's content is read against the view that was current
// at Open time, captured here and never re-resolved even if the volume's
// current view moves on while this handle is still open.
func (n *inode) Open(ctx context.Context) (vfs.FileHandle, error) {
	pinned := n.vol.CurrentView()
	data, err := n.vol.ReadAt(pinned, n.path)
	if err != nil {
		return nil, err
	}
	return &fileHandle{r: bytes.NewReader(data)}, nil
}

// fileHandle serves bytes read once at Open time. Writing through a VFS
// file description isn't modeled for geofs: this spec's CLI and Governor
// both write whole files via geofs.Volume.Write directly (there is no
// create-then-append verb in spec.md's permitted operation set), so Write
// here always reports not-supported rather than silently succeeding.
type fileHandle struct {
	r *bytes.Reader
}

func (f *fileHandle) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *fileHandle) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("geofsfs: write through a file handle: %w", geoerr.ErrNotSupported)
}
func (f *fileHandle) Close() error { return nil }
