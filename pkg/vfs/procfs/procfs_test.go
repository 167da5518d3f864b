package procfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/ghartrid/geology/pkg/vfs"
)

type fakePolicy struct {
	version string
	digest  string
}

func (p fakePolicy) PolicyVersion() string { return p.version }
func (p fakePolicy) PatternDigest() string { return p.digest }

func mountProcfs(t *testing.T, opts Options) *vfs.Dispatcher {
	t.Helper()
	mt := vfs.NewMountTable()
	fs, err := (FilesystemType{Opts: opts}).GetFilesystem(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := mt.Mount("/proc", fs); err != nil {
		t.Fatal(err)
	}
	return vfs.NewDispatcher(mt)
}

func readAll(t *testing.T, d *vfs.Dispatcher, p string) string {
	t.Helper()
	ctx := context.Background()
	fh, err := d.Open(ctx, p)
	if err != nil {
		t.Fatalf("open %s: %v", p, err)
	}
	defer fh.Close()
	var buf []byte
	chunk := make([]byte, 64)
	for {
		n, err := fh.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
	}
	return string(buf)
}

func TestVersionAndSelf(t *testing.T) {
	d := mountProcfs(t, Options{})
	if v := readAll(t, d, "/proc/version"); !strings.Contains(v, "geology") {
		t.Fatalf("version = %q, want mention of geology", v)
	}
	if s := readAll(t, d, "/proc/self"); !strings.Contains(s, "actor") {
		t.Fatalf("self = %q, want an actor line", s)
	}
}

func TestConstitutionRendersPolicy(t *testing.T) {
	d := mountProcfs(t, Options{Policy: fakePolicy{version: "v3", digest: "abcd1234"}})
	out := readAll(t, d, "/proc/constitution")
	if !strings.Contains(out, "v3") || !strings.Contains(out, "abcd1234") {
		t.Fatalf("constitution = %q, want policy version and digest", out)
	}
}

func TestConstitutionWithoutPolicyIsStillReadable(t *testing.T) {
	d := mountProcfs(t, Options{})
	out := readAll(t, d, "/proc/constitution")
	if !strings.Contains(out, "unset") {
		t.Fatalf("constitution = %q, want unset placeholders", out)
	}
}

func TestMountsListsMountedPrefixes(t *testing.T) {
	mt := vfs.NewMountTable()
	fs, err := (FilesystemType{Opts: Options{Mounts: mt}}).GetFilesystem(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := mt.Mount("/proc", fs); err != nil {
		t.Fatal(err)
	}
	if err := mt.Mount("/dev", fs); err != nil {
		t.Fatal(err)
	}
	d := vfs.NewDispatcher(mt)
	out := readAll(t, d, "/proc/mounts")
	if !strings.Contains(out, "/proc") || !strings.Contains(out, "/dev") {
		t.Fatalf("mounts = %q, want both /proc and /dev listed", out)
	}
}

func TestListProcRoot(t *testing.T) {
	d := mountProcfs(t, Options{})
	entries, err := d.List(context.Background(), "/proc")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"version": true, "uptime": true, "stat": true,
		"mounts": true, "constitution": true, "self": true,
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(entries), entries)
	}
	for _, e := range entries {
		if !want[e.Name] {
			t.Fatalf("unexpected entry %q", e.Name)
		}
		if e.Kind != vfs.KindFile {
			t.Fatalf("entry %q kind = %v, want file", e.Name, e.Kind)
		}
	}
}

func TestCacheServesStaleContentUntilCapacityEvicts(t *testing.T) {
	calls := 0
	mt := vfs.NewMountTable()
	c := newCache(1)
	root := &dirInode{RefCount: vfs.NewRefCount(), children: make(map[string]vfs.Inode)}
	root.children["counter"] = &fileInode{
		RefCount: vfs.NewRefCount(),
		name:     "counter",
		cache:    c,
		gen: func(ctx context.Context) ([]byte, error) {
			calls++
			return []byte{byte(calls)}, nil
		},
	}
	fs := &Filesystem{root: root}
	if err := mt.Mount("/proc", fs); err != nil {
		t.Fatal(err)
	}
	d := vfs.NewDispatcher(mt)
	ctx := context.Background()

	first := readAll(t, d, "/proc/counter")
	second := readAll(t, d, "/proc/counter")
	if first != second {
		t.Fatalf("cached reads diverged: %q != %q", first, second)
	}
	if calls != 1 {
		t.Fatalf("generator called %d times, want 1 (cache hit)", calls)
	}

	// Evict by inserting a second key into the capacity-1 cache, then
	// confirm the generator runs again.
	c.put("other", []byte("x"))
	fh, err := d.Open(ctx, "/proc/counter")
	if err != nil {
		t.Fatal(err)
	}
	fh.Close()
	if calls != 2 {
		t.Fatalf("generator called %d times after eviction, want 2", calls)
	}
}
