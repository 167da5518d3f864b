package devfs

import (
	"context"
	"errors"
	"testing"

	"github.com/ghartrid/geology/pkg/geoerr"
	"github.com/ghartrid/geology/pkg/vfs"
)

func mount(t *testing.T) *vfs.Dispatcher {
	t.Helper()
	mt := vfs.NewMountTable()
	fs, err := (FilesystemType{}).GetFilesystem(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := mt.Mount("/dev", fs); err != nil {
		t.Fatal(err)
	}
	return vfs.NewDispatcher(mt)
}

func TestDevZeroReadsZeroes(t *testing.T) {
	d := mount(t)
	ctx := context.Background()
	fh, err := d.Open(ctx, "/dev/zero")
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = 0xFF
	}
	n, err := fh.Read(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("read /dev/zero: n=%d err=%v", n, err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, b)
		}
	}
}

func TestDevFullWriteAlwaysFails(t *testing.T) {
	d := mount(t)
	ctx := context.Background()
	fh, err := d.Open(ctx, "/dev/full")
	if err != nil {
		t.Fatal(err)
	}
	_, err = fh.Write([]byte("x"))
	if err == nil {
		t.Fatal("expected /dev/full write to fail")
	}
	if !errors.Is(err, geoerr.ErrQuota) {
		t.Fatalf("expected quota-exceeded, got %v", err)
	}
}

func TestDevNullReadsEOF(t *testing.T) {
	d := mount(t)
	ctx := context.Background()
	fh, err := d.Open(ctx, "/dev/null")
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	n, err := fh.Read(buf)
	if n != 0 || err == nil {
		t.Fatalf("read /dev/null: n=%d err=%v, want 0,EOF", n, err)
	}
}

func TestListDevices(t *testing.T) {
	d := mount(t)
	ctx := context.Background()
	entries, err := d.List(ctx, "/dev")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"null": true, "zero": true, "random": true, "urandom": true,
		"full": true, "tty": true, "console": true, "kmsg": true,
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d devices, got %d: %+v", len(want), len(entries), entries)
	}
	for _, e := range entries {
		if !want[e.Name] {
			t.Fatalf("unexpected device %q", e.Name)
		}
		if e.Kind != vfs.KindDevice {
			t.Fatalf("device %q kind = %v, want device", e.Name, e.Kind)
		}
	}
}
