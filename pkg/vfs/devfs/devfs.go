// Package devfs implements the pseudo-filesystem of spec.md §4.5.1: a
// fixed set of device files backed by synthetic content rather than the
// GeoFS Volume, modeled on gVisor's pkg/sentry/fsimpl/dev.
package devfs

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/ghartrid/geology/pkg/geoerr"
	"github.com/ghartrid/geology/pkg/geolog"
	"github.com/ghartrid/geology/pkg/vfs"
)

// Options configures the devfs mount.
type Options struct {
	// Log receives /dev/kmsg writes, the closest analogue this spec has
	// to a kernel ring buffer.
	Log geolog.Logger
}

// FilesystemType implements vfs.FilesystemType for devfs.
type FilesystemType struct {
	Opts Options
}

func (FilesystemType) Name() string { return "devfs" }

func (FilesystemType) Capabilities() []string { return []string{"read", "write", "list"} }

func (t FilesystemType) GetFilesystem(opts map[string]string) (vfs.Filesystem, error) {
	return newFilesystem(t.Opts), nil
}

// Filesystem is the mounted devfs instance.
type Filesystem struct {
	root *dirInode
}

func (f *Filesystem) Root() vfs.Inode { return f.root }

func newFilesystem(opts Options) *Filesystem {
	log := opts.Log
	if log == nil {
		log = geolog.New(nil, "text", false)
	}
	log = geolog.Component(log, "devfs")

	root := &dirInode{RefCount: vfs.NewRefCount(), children: make(map[string]vfs.Inode)}
	for name, open := range standardDevices(log) {
		root.children[name] = &deviceInode{RefCount: vfs.NewRefCount(), open: open}
	}
	return &Filesystem{root: root}
}

// standardDevices is the fixed device set of spec.md §4.5.1: null, zero,
// random, urandom, full, tty, console, kmsg.
func standardDevices(log geolog.Logger) map[string]func() (vfs.FileHandle, error) {
	return map[string]func() (vfs.FileHandle, error){
		"null": func() (vfs.FileHandle, error) { return nullHandle{}, nil },
		"zero": func() (vfs.FileHandle, error) { return zeroHandle{}, nil },
		"random": func() (vfs.FileHandle, error) { return randomHandle{}, nil },
		"urandom": func() (vfs.FileHandle, error) { return randomHandle{}, nil },
		"full": func() (vfs.FileHandle, error) {
			// A burst-0, rate-0 bucket never grants a single token, so
			// every write fails: spec.md §8 scenario 6's "every write
			// fails with quota-exceeded", modeled with the same token
			// bucket primitive geofs.Volume uses for its real quota.
			return &fullHandle{limiter: rate.NewLimiter(rate.Limit(0), 0)}, nil
		},
		"tty":     func() (vfs.FileHandle, error) { return &lineDiscardHandle{}, nil },
		"console": func() (vfs.FileHandle, error) { return &lineDiscardHandle{}, nil },
		"kmsg": func() (vfs.FileHandle, error) { return &kmsgHandle{log: log}, nil },
	}
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
		return nil, fmt.Errorf("devfs: lookup /dev/%s: %w", name, geoerr.ErrNotFound)
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

type deviceInode struct {
	*vfs.RefCount
	open func() (vfs.FileHandle, error)
}

func (n *deviceInode) Kind() vfs.NodeKind { return vfs.KindDevice }
func (n *deviceInode) Stat(ctx context.Context) (vfs.Attr, error) {
	return vfs.Attr{Kind: vfs.KindDevice}, nil
}
func (n *deviceInode) Open(ctx context.Context) (vfs.FileHandle, error) { return n.open() }

type nullHandle struct{}

func (nullHandle) Read(p []byte) (int, error)  { return 0, io.EOF }
func (nullHandle) Write(p []byte) (int, error) { return len(p), nil }
func (nullHandle) Close() error                { return nil }

type zeroHandle struct{}

func (zeroHandle) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
func (zeroHandle) Write(p []byte) (int, error) { return len(p), nil }
func (zeroHandle) Close() error                { return nil }

type randomHandle struct{}

func (randomHandle) Read(p []byte) (int, error)  { return rand.Read(p) }
func (randomHandle) Write(p []byte) (int, error) { return len(p), nil }
func (randomHandle) Close() error                { return nil }

// fullHandle reads like /dev/zero but fails every write, per Linux's
// /dev/full semantics and spec.md §8 scenario 6.
type fullHandle struct {
	limiter *rate.Limiter
}

func (h *fullHandle) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func (h *fullHandle) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}
	if !h.limiter.AllowN(time.Now(), n) {
		return 0, fmt.Errorf("devfs: write /dev/full: %w", geoerr.ErrQuota)
	}
	return n, nil
}

func (h *fullHandle) Close() error { return nil }

// lineDiscardHandle models /dev/tty and /dev/console: reads see nothing
// (no controlling terminal input in this system), writes are accepted
// and discarded.
type lineDiscardHandle struct{}

func (*lineDiscardHandle) Read(p []byte) (int, error)  { return 0, io.EOF }
func (*lineDiscardHandle) Write(p []byte) (int, error) { return len(p), nil }
func (*lineDiscardHandle) Close() error                { return nil }

// kmsgHandle models /dev/kmsg: writes are appended to the structured log
// at info level (the closest analogue this system has to a kernel ring
// buffer); reads see nothing, since there is no log-replay API here.
type kmsgHandle struct {
	log geolog.Logger
}

func (h *kmsgHandle) Read(p []byte) (int, error) { return 0, io.EOF }
func (h *kmsgHandle) Write(p []byte) (int, error) {
	h.log.WithField("device", "kmsg").Info(string(p))
	return len(p), nil
}
func (h *kmsgHandle) Close() error { return nil }
