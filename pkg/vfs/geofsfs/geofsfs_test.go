package geofsfs

import (
	"context"
	"testing"

	"github.com/ghartrid/geology/pkg/geofs"
	"github.com/ghartrid/geology/pkg/vfs"
)

func TestOpenReadThroughVFS(t *testing.T) {
	vol, err := geofs.Create(t.TempDir(), geofs.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer vol.Close()
	if err := vol.Write("/a/b", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := vol.Snapshot("v1"); err != nil {
		t.Fatal(err)
	}

	mt := vfs.NewMountTable()
	fs, err := FilesystemType{Volume: vol}.GetFilesystem(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := mt.Mount("/", fs); err != nil {
		t.Fatal(err)
	}
	d := vfs.NewDispatcher(mt)
	ctx := context.Background()

	fh, err := d.Open(ctx, "/a/b")
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 5)
	n, err := fh.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("read = %q, want hello", buf[:n])
	}

	entries, err := d.List(ctx, "/a")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "b" {
		t.Fatalf("unexpected listing: %+v", entries)
	}
}

func TestOpenPinsToViewAtOpenTime(t *testing.T) {
	vol, err := geofs.Create(t.TempDir(), geofs.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer vol.Close()
	if err := vol.Write("/x", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if _, err := vol.Snapshot("v1"); err != nil {
		t.Fatal(err)
	}

	mt := vfs.NewMountTable()
	fs, _ := FilesystemType{Volume: vol}.GetFilesystem(nil)
	mt.Mount("/", fs)
	d := vfs.NewDispatcher(mt)
	ctx := context.Background()

	fh, err := d.Open(ctx, "/x")
	if err != nil {
		t.Fatal(err)
	}

	if err := vol.Hide("/x"); err != nil {
		t.Fatal(err)
	}
	if _, err := vol.Snapshot("v2"); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 3)
	n, err := fh.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "one" {
		t.Fatalf("pinned handle should still read pre-hide content, got %q", buf[:n])
	}
}
