package vfs

import "sync/atomic"

// RefCount is a minimal reference counter filesystem implementations embed
// to satisfy inodeRefs, the trimmed analogue of gVisor's pkg/refs:
// gVisor's Dentry lifetime machinery (mount-point pinning, rename
// invalidation) has no counterpart here since this spec has no
// unlink/rename, so only the counter itself is carried over.
type RefCount struct {
	n int32
}

// NewRefCount returns a RefCount with one reference already held, the
// same convention gVisor's constructors use: the caller that creates an
// object owns the first reference.
func NewRefCount() *RefCount {
	return &RefCount{n: 1}
}

func (r *RefCount) IncRef() {
	atomic.AddInt32(&r.n, 1)
}

func (r *RefCount) TryIncRef() bool {
	for {
		n := atomic.LoadInt32(&r.n)
		if n <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&r.n, n, n+1) {
			return true
		}
	}
}

func (r *RefCount) DecRef() {
	atomic.AddInt32(&r.n, -1)
}

// ReadCount returns the current reference count, for tests and
// diagnostics only.
func (r *RefCount) ReadCount() int32 {
	return atomic.LoadInt32(&r.n)
}
