package kcontext

import (
	"context"
	"strings"
	"testing"
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func TestCreateMountsAllThreeFilesystems(t *testing.T) {
	dir := t.TempDir()
	kc, err := Create(dir, Options{BootTime: time.Unix(0, 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer kc.Close()

	if err := kc.Volume.Write("/hello", []byte("world")); err != nil {
		t.Fatal(err)
	}
	if _, err := kc.Volume.Snapshot("v1"); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if got, err := kc.Dispatcher.Open(ctx, "/hello"); err != nil {
		t.Fatalf("open /hello: %v", err)
	} else {
		buf := make([]byte, 5)
		n, _ := got.Read(buf)
		if string(buf[:n]) != "world" {
			t.Fatalf("read /hello = %q, want world", buf[:n])
		}
	}

	if _, err := kc.Dispatcher.Open(ctx, "/dev/zero"); err != nil {
		t.Fatalf("open /dev/zero: %v", err)
	}
	if _, err := kc.Dispatcher.Open(ctx, "/proc/version"); err != nil {
		t.Fatalf("open /proc/version: %v", err)
	}
}

func TestReopenedContextResumesGovernorCounter(t *testing.T) {
	dir := t.TempDir()
	kc, err := Create(dir, Options{BootTime: time.Unix(0, 0), Now: func() int64 { return 1 }})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := kc.Governor.Submit([]byte("a"), specs.LinuxCapabilities{}, "actor"); err != nil {
		t.Fatal(err)
	}
	if err := kc.Close(); err != nil {
		t.Fatal(err)
	}

	kc2, err := Open(dir, Options{BootTime: time.Unix(0, 0), Now: func() int64 { return 2 }})
	if err != nil {
		t.Fatal(err)
	}
	defer kc2.Close()
	rec, err := kc2.Governor.Submit([]byte("b"), specs.LinuxCapabilities{}, "actor")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != 2 {
		t.Fatalf("record id after reopen = %d, want 2", rec.ID)
	}
}

func TestProcMountsListsAllThreeMounts(t *testing.T) {
	dir := t.TempDir()
	kc, err := Create(dir, Options{BootTime: time.Unix(0, 0)})
	if err != nil {
		t.Fatal(err)
	}
	defer kc.Close()

	fh, err := kc.Dispatcher.Open(context.Background(), "/proc/mounts")
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()
	buf := make([]byte, 256)
	n, _ := fh.Read(buf)
	out := string(buf[:n])
	for _, want := range []string{"/", "/dev", "/proc"} {
		if !strings.Contains(out, want) {
			t.Fatalf("mounts output %q missing %q", out, want)
		}
	}
}
