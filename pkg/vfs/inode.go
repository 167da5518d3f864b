// Package vfs implements the VFS layer of spec.md §4.5: a FilesystemType
// registry, a mount table with longest-prefix-match resolution, and
// Dentry/Inode dispatch modeled on gVisor's pkg/sentry/vfs and
// fsimpl/kernfs.
//
// Unlike gVisor's VFS, this package's Inode interface has no
// Unlink/RmDir/Rename/Truncate methods at all: spec.md §4.5's forbidden
// operations are unrepresentable here, not merely unimplemented, per
// spec.md §9's "dynamic dispatch over filesystems" design note.
package vfs

import "context"

// NodeKind is the type of filesystem object an Inode represents.
type NodeKind uint8

const (
	KindFile NodeKind = iota
	KindDirectory
	KindSymlink
	KindDevice
)

func (k NodeKind) String() string {
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

// Attr is the metadata common to every Inode, the minimal analogue of
// gVisor's linux.Statx for this spec's scope.
type Attr struct {
	Kind      NodeKind
	Size      int64
	MTimeHint int64
}

// Dirent is one entry returned by a DirectoryInode's IterDirents.
type Dirent struct {
	Name string
	Kind NodeKind
}

// Inode maps path-independent filesystem-object operations to a specific
// node, the same responsibility split gVisor's kernfs.Inode makes: the
// interface is grouped into logical sub-interfaces below, and a
// filesystem only implements the ones relevant to the node kinds it
// produces (a devfs device has no DirectoryInode methods; the devfs and
// procfs directories have no FileOpener method).
type Inode interface {
	inodeRefs
	inodeMetadata
}

type inodeRefs interface {
	// IncRef increments the Inode's reference count. A generic
	// implementation is provided by embedding RefCount.
	IncRef()

	// TryIncRef increments the reference count and returns true, unless
	// the count has already reached zero, in which case it does nothing
	// and returns false.
	TryIncRef() bool

	// DecRef decrements the reference count.
	DecRef()
}

type inodeMetadata interface {
	// Kind returns the node's type; Stat returns its full metadata.
	Kind() NodeKind
	Stat(ctx context.Context) (Attr, error)
}

// FileOpener is implemented by inodes that can be opened for reading
// and/or writing: KindFile and KindDevice nodes.
type FileOpener interface {
	Open(ctx context.Context) (FileHandle, error)
}

// DirectoryInode is implemented by KindDirectory inodes.
type DirectoryInode interface {
	// Lookup resolves name as an immediate child of this directory.
	// Returns geoerr.ErrNotFound if name doesn't exist.
	Lookup(ctx context.Context, name string) (Inode, error)

	// IterDirents lists the directory's immediate children.
	IterDirents(ctx context.Context) ([]Dirent, error)
}

// SymlinkInode is implemented by KindSymlink inodes.
type SymlinkInode interface {
	Readlink(ctx context.Context) (string, error)
}

// FileHandle is an open file description: the result of FileOpener.Open.
// Per SPEC_FULL.md's stable-snapshot file handles, an implementation
// backed by a view (geofsfs) pins itself to the view id in force at open
// time, so later writes/hides in the working view never affect reads
// already in progress on this handle.
type FileHandle interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
}
