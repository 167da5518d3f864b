package vfs

import (
	"context"
	"fmt"
	"strings"

	"github.com/ghartrid/geology/pkg/geoerr"
)

// Dispatcher resolves absolute paths through a MountTable and dispatches
// to the resolved Inode's operation-table methods, gVisor's
// ResolvingPath-driven FilesystemImpl dispatch reduced to this spec's
// much smaller verb set (no create/unlink/rename: spec.md §4.5 forbids
// them, so Dispatcher has no methods for them at all).
type Dispatcher struct {
	mounts *MountTable
}

// NewDispatcher returns a Dispatcher resolving through mounts.
func NewDispatcher(mounts *MountTable) *Dispatcher {
	return &Dispatcher{mounts: mounts}
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// walk resolves components against root, honoring "." (no-op) and ".."
// (pop to parent within this filesystem's own tree — it never crosses
// back out through the mount point, matching chroot-style containment).
func walk(ctx context.Context, root Inode, components []string) (Inode, error) {
	stack := []Inode{root}
	cur := root
	for _, c := range components {
		switch c {
		case "", ".":
			continue
		case "..":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
				cur = stack[len(stack)-1]
			}
			continue
		}
		dir, ok := cur.(DirectoryInode)
		if !ok {
			return nil, fmt.Errorf("vfs: walk: %q: not a directory: %w", c, geoerr.ErrInvalidArgument)
		}
		child, err := dir.Lookup(ctx, c)
		if err != nil {
			return nil, err
		}
		stack = append(stack, child)
		cur = child
	}
	return cur, nil
}

// Resolve returns the Inode named by an absolute path.
func (d *Dispatcher) Resolve(ctx context.Context, path string) (Inode, error) {
	fs, rel, err := d.mounts.Resolve(path)
	if err != nil {
		return nil, err
	}
	return walk(ctx, fs.Root(), splitPath(rel))
}

// Open resolves path and opens it, per spec.md §4.5's "open returns a
// handle" contract.
func (d *Dispatcher) Open(ctx context.Context, path string) (FileHandle, error) {
	inode, err := d.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	opener, ok := inode.(FileOpener)
	if !ok {
		return nil, fmt.Errorf("vfs: open %s: %w", path, geoerr.ErrNotSupported)
	}
	return opener.Open(ctx)
}

// Stat returns path's metadata.
func (d *Dispatcher) Stat(ctx context.Context, path string) (Attr, error) {
	inode, err := d.Resolve(ctx, path)
	if err != nil {
		return Attr{}, err
	}
	return inode.Stat(ctx)
}

// List returns path's immediate children, for directory inodes only.
func (d *Dispatcher) List(ctx context.Context, path string) ([]Dirent, error) {
	inode, err := d.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	dir, ok := inode.(DirectoryInode)
	if !ok {
		return nil, fmt.Errorf("vfs: list %s: %w", path, geoerr.ErrInvalidArgument)
	}
	return dir.IterDirents(ctx)
}

// Readlink returns a symlink inode's target.
func (d *Dispatcher) Readlink(ctx context.Context, path string) (string, error) {
	inode, err := d.Resolve(ctx, path)
	if err != nil {
		return "", err
	}
	link, ok := inode.(SymlinkInode)
	if !ok {
		return "", fmt.Errorf("vfs: readlink %s: %w", path, geoerr.ErrInvalidArgument)
	}
	return link.Readlink(ctx)
}
