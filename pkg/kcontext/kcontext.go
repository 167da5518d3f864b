// Package kcontext implements the explicit Kernel Context of spec.md §9's
// "Global state" design note: rather than the process-wide mutable state
// the source repository keeps for its mount table, its active policy
// evaluator, and its device PRNG, every public entry point here is
// reached through one *Context value that owns the Volume, the VFS
// registry and mount table, the Governor, and per-device state.
package kcontext

import (
	"fmt"
	"time"

	"github.com/ghartrid/geology/pkg/geofs"
	"github.com/ghartrid/geology/pkg/geolog"
	"github.com/ghartrid/geology/pkg/governor"
	"github.com/ghartrid/geology/pkg/vfs"
	"github.com/ghartrid/geology/pkg/vfs/devfs"
	"github.com/ghartrid/geology/pkg/vfs/geofsfs"
	"github.com/ghartrid/geology/pkg/vfs/procfs"
)

// Options configures Create/Open. It is the Kernel Context's share of
// geoconfig.Config, passed in already-resolved (flags-then-TOML-overlaid)
// rather than read directly, so this package never depends on geoconfig.
type Options struct {
	Log geolog.Logger

	// QuotaBytes bounds the Volume's lifetime byte budget (0 disables).
	QuotaBytes int64

	// ProcInodeCacheSize bounds procfs's generated-content cache.
	ProcInodeCacheSize int

	// RewriteTablePath, if set, names a JSON Patch rewrite table enabling
	// Governor modify(substitute) decisions.
	RewriteTablePath string

	// BootTime seeds /proc/uptime's origin. The zero value means "now."
	BootTime time.Time

	// Now stamps Governor audit records. nil means time.Now().UnixNano().
	Now func() int64
}

// Context is the Kernel Context: the one value threaded through every
// public operation instead of package-level globals.
type Context struct {
	Volume     *geofs.Volume
	Registry   *vfs.Registry
	Mounts     *vfs.MountTable
	Dispatcher *vfs.Dispatcher
	Governor   *governor.Evaluator
	Log        geolog.Logger
}

// Create initializes a brand-new volume at root and boots a Context over
// it, per spec.md §4.4's create(root) -> volume.
func Create(root string, opts Options) (*Context, error) {
	vol, err := geofs.Create(root, geofs.Options{QuotaBytes: opts.QuotaBytes, Log: opts.Log})
	if err != nil {
		return nil, err
	}
	return assemble(vol, opts)
}

// Open boots a Context over an existing volume at root, recovering its
// views and replaying its quota state per spec.md §6's crash-recovery
// rule.
func Open(root string, opts Options) (*Context, error) {
	vol, err := geofs.Open(root, geofs.Options{QuotaBytes: opts.QuotaBytes, Log: opts.Log})
	if err != nil {
		return nil, err
	}
	return assemble(vol, opts)
}

// Close releases the Volume's write lease. A Context must not be used
// after Close.
func (c *Context) Close() error {
	return c.Volume.Close()
}

func assemble(vol *geofs.Volume, opts Options) (*Context, error) {
	log := opts.Log
	if log == nil {
		log = geolog.New(nil, "text", false)
	}

	rewrites, err := governor.LoadRewriteTable(opts.RewriteTablePath)
	if err != nil {
		vol.Close()
		return nil, err
	}

	gov, err := governor.NewEvaluator(vol, governor.Options{Log: log, RewriteRules: rewrites, Now: opts.Now})
	if err != nil {
		vol.Close()
		return nil, err
	}

	bootTime := opts.BootTime
	if bootTime.IsZero() {
		bootTime = time.Now()
	}

	reg := vfs.NewRegistry()
	mounts := vfs.NewMountTable()

	geofsType := geofsfs.FilesystemType{Volume: vol}
	devfsType := devfs.FilesystemType{Opts: devfs.Options{Log: log}}
	procfsType := procfs.FilesystemType{Opts: procfs.Options{
		Volume:         vol,
		Mounts:         mounts,
		Policy:         gov,
		InodeCacheSize: opts.ProcInodeCacheSize,
		BootTime:       bootTime,
	}}

	for _, ft := range []vfs.FilesystemType{geofsType, devfsType, procfsType} {
		if err := reg.Register(ft); err != nil {
			vol.Close()
			return nil, err
		}
	}

	if err := mountType(mounts, "/", geofsType); err != nil {
		vol.Close()
		return nil, err
	}
	if err := mountType(mounts, "/dev", devfsType); err != nil {
		vol.Close()
		return nil, err
	}
	if err := mountType(mounts, "/proc", procfsType); err != nil {
		vol.Close()
		return nil, err
	}

	return &Context{
		Volume:     vol,
		Registry:   reg,
		Mounts:     mounts,
		Dispatcher: vfs.NewDispatcher(mounts),
		Governor:   gov,
		Log:        log,
	}, nil
}

func mountType(mounts *vfs.MountTable, prefix string, ft vfs.FilesystemType) error {
	fs, err := ft.GetFilesystem(nil)
	if err != nil {
		return fmt.Errorf("kcontext: get filesystem %q: %w", ft.Name(), err)
	}
	return mounts.Mount(prefix, fs)
}
