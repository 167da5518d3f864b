package vfs

import (
	"context"
	"fmt"
	"testing"

	"github.com/ghartrid/geology/pkg/geoerr"
)

// memInode is a minimal in-memory Inode used only to exercise the
// registry/mount/resolver machinery independent of any real filesystem.
type memInode struct {
	*RefCount
	kind     NodeKind
	children map[string]*memInode
	content  string
}

func newMemDir() *memInode {
	return &memInode{RefCount: NewRefCount(), kind: KindDirectory, children: make(map[string]*memInode)}
}

func (m *memInode) Kind() NodeKind { return m.kind }
func (m *memInode) Stat(ctx context.Context) (Attr, error) {
	return Attr{Kind: m.kind, Size: int64(len(m.content))}, nil
}
func (m *memInode) Lookup(ctx context.Context, name string) (Inode, error) {
	c, ok := m.children[name]
	if !ok {
		return nil, errNotFoundFor(name)
	}
	return c, nil
}
func (m *memInode) IterDirents(ctx context.Context) ([]Dirent, error) {
	var out []Dirent
	for name, c := range m.children {
		out = append(out, Dirent{Name: name, Kind: c.kind})
	}
	return out, nil
}

type memFile struct{ s string }

func (f *memFile) Read(p []byte) (int, error)  { return copy(p, f.s), nil }
func (f *memFile) Write(p []byte) (int, error) { return len(p), nil }
func (f *memFile) Close() error                { return nil }

func (m *memInode) Open(ctx context.Context) (FileHandle, error) {
	return &memFile{s: m.content}, nil
}

func errNotFoundFor(name string) error {
	return fmt.Errorf("memfs: %s: %w", name, geoerr.ErrNotFound)
}

type memFS struct{ root *memInode }

func (f *memFS) Root() Inode { return f.root }

type memFSType struct{ name string }

func (t memFSType) Name() string            { return t.name }
func (t memFSType) Capabilities() []string  { return []string{"read", "list"} }
func (t memFSType) GetFilesystem(opts map[string]string) (Filesystem, error) {
	root := newMemDir()
	leaf := &memInode{RefCount: NewRefCount(), kind: KindFile, content: "hi"}
	root.children["leaf"] = leaf
	return &memFS{root: root}, nil
}

func TestRegistryRejectsForbiddenCapability(t *testing.T) {
	r := NewRegistry()
	badType := fakeFSType{name: "bad", caps: []string{"read", "unlink"}}
	if err := r.Register(badType); err == nil {
		t.Fatal("expected Register to reject a type exposing unlink")
	}
}

type fakeFSType struct {
	name string
	caps []string
}

func (f fakeFSType) Name() string                                      { return f.name }
func (f fakeFSType) Capabilities() []string                            { return f.caps }
func (f fakeFSType) GetFilesystem(opts map[string]string) (Filesystem, error) { return nil, nil }

func TestMountAndResolve(t *testing.T) {
	reg := NewRegistry()
	ft := memFSType{name: "memfs"}
	if err := reg.Register(ft); err != nil {
		t.Fatal(err)
	}
	got, ok := reg.Lookup("memfs")
	if !ok {
		t.Fatal("expected memfs registered")
	}
	fs, err := got.GetFilesystem(nil)
	if err != nil {
		t.Fatal(err)
	}

	mt := NewMountTable()
	if err := mt.Mount("/", fs); err != nil {
		t.Fatal(err)
	}

	d := NewDispatcher(mt)
	ctx := context.Background()
	fh, err := d.Open(ctx, "/leaf")
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 2)
	if _, err := fh.Read(buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "hi" {
		t.Fatalf("read = %q, want hi", buf)
	}

	entries, err := d.List(ctx, "/")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "leaf" {
		t.Fatalf("unexpected listing: %+v", entries)
	}
}

func TestLongestPrefixMatch(t *testing.T) {
	mt := NewMountTable()
	rootFS := &memFS{root: newMemDir()}
	devFS := &memFS{root: newMemDir()}
	devFS.root.children["zero"] = &memInode{RefCount: NewRefCount(), kind: KindDevice, content: "\x00"}

	if err := mt.Mount("/", rootFS); err != nil {
		t.Fatal(err)
	}
	if err := mt.Mount("/dev", devFS); err != nil {
		t.Fatal(err)
	}

	fs, rel, err := mt.Resolve("/dev/zero")
	if err != nil {
		t.Fatal(err)
	}
	if fs != Filesystem(devFS) || rel != "/zero" {
		t.Fatalf("resolve(/dev/zero) = %v,%q; want devFS,/zero", fs, rel)
	}
}
