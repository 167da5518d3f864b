package vfs

import (
	"fmt"
	"sync"

	"github.com/ghartrid/geology/pkg/geoerr"
)

// forbiddenOps is the fixed deny-list of spec.md §4.5: a FilesystemType
// that advertises any of these capabilities is rejected at Register time,
// not merely left unreachable at call time, per SPEC_FULL.md's
// "longest-prefix mount resolution with an explicit registry" note.
var forbiddenOps = map[string]bool{
	"unlink":   true,
	"rmdir":    true,
	"truncate": true,
}

// Filesystem is a mounted instance of a FilesystemType: the live object
// that owns a root Inode.
type Filesystem interface {
	Root() Inode
}

// FilesystemType is a filesystem implementation that can be mounted,
// gVisor's vfs.FilesystemType trimmed to this spec's scope (no
// GetFilesystem options parsing beyond a plain string map, since there is
// no block-device/remount machinery here).
type FilesystemType interface {
	Name() string

	// Capabilities lists the verbs this filesystem type implements,
	// e.g. "read", "write", "hide", "list". Register rejects any type
	// whose Capabilities intersect forbiddenOps.
	Capabilities() []string

	// GetFilesystem constructs a mounted Filesystem instance.
	GetFilesystem(opts map[string]string) (Filesystem, error)
}

// Registry is the set of known FilesystemTypes, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	types map[string]FilesystemType
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]FilesystemType)}
}

// Register adds ft to the registry. It fails if ft advertises a forbidden
// capability, or if a type of the same name is already registered.
func (r *Registry) Register(ft FilesystemType) error {
	for _, cap := range ft.Capabilities() {
		if forbiddenOps[cap] {
			return fmt.Errorf("vfs: register %s: capability %q is forbidden: %w", ft.Name(), cap, geoerr.ErrForbidden)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[ft.Name()]; ok {
		return fmt.Errorf("vfs: register %s: %w", ft.Name(), geoerr.ErrExists)
	}
	r.types[ft.Name()] = ft
	return nil
}

// Lookup returns the registered FilesystemType named name.
func (r *Registry) Lookup(name string) (FilesystemType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ft, ok := r.types[name]
	return ft, ok
}
