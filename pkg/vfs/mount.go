package vfs

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ghartrid/geology/pkg/geoerr"
)

// mountEntry is one entry of the mount table.
type mountEntry struct {
	prefix string
	fs     Filesystem
}

// MountTable resolves a path to the Filesystem mounted over the longest
// matching prefix, gVisor's vfs.VirtualFilesystem mount-point lookup
// reduced to a flat table (there is no mount namespace nesting in this
// spec: one volume, one set of pseudo-filesystems).
type MountTable struct {
	mu      sync.RWMutex
	entries []mountEntry // kept sorted by prefix length, longest first
}

// NewMountTable returns an empty MountTable.
func NewMountTable() *MountTable {
	return &MountTable{}
}

// Mount registers fs at prefix ("/" or "/dev", for example). prefix must
// be an absolute, clean path; "/" is the volume's own root filesystem.
func (t *MountTable) Mount(prefix string, fs Filesystem) error {
	if prefix == "" || prefix[0] != '/' {
		return fmt.Errorf("vfs: mount %q: %w", prefix, geoerr.ErrInvalidArgument)
	}
	if prefix != "/" && strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("vfs: mount %q: trailing slash: %w", prefix, geoerr.ErrInvalidArgument)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.prefix == prefix {
			return fmt.Errorf("vfs: mount %q: %w", prefix, geoerr.ErrExists)
		}
	}
	t.entries = append(t.entries, mountEntry{prefix: prefix, fs: fs})
	sort.Slice(t.entries, func(i, j int) bool {
		return len(t.entries[i].prefix) > len(t.entries[j].prefix)
	})
	return nil
}

// Prefixes returns every mounted prefix, longest first, for diagnostic
// listings such as procfs's /proc/mounts.
func (t *MountTable) Prefixes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.prefix
	}
	return out
}

// Resolve returns the Filesystem mounted over the longest prefix of path,
// and path with that prefix stripped (always starting with "/", "/" if
// path named the mount point itself).
func (t *MountTable) Resolve(path string) (fs Filesystem, rel string, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.prefix == "/" {
			rel = path
		} else if path == e.prefix {
			rel = "/"
		} else if strings.HasPrefix(path, e.prefix+"/") {
			rel = path[len(e.prefix):]
		} else {
			continue
		}
		return e.fs, rel, nil
	}
	return nil, "", fmt.Errorf("vfs: resolve %q: no filesystem mounted: %w", path, geoerr.ErrNotFound)
}
