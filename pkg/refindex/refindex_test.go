package refindex

import (
	"errors"
	"testing"

	"github.com/ghartrid/geology/pkg/geoerr"
)

func TestInsertAndLookup(t *testing.T) {
	d := NewDelta()
	entry := RefEntry{Kind: KindFile, Size: 5}
	if err := d.Insert("/a", entry); err != nil {
		t.Fatal(err)
	}
	got, ok := d.Lookup("/a")
	if !ok {
		t.Fatal("lookup /a: not found")
	}
	if got.Path != "/a" || got.Size != 5 {
		t.Fatalf("lookup /a = %+v", got)
	}
	if _, ok := d.Lookup("/b"); ok {
		t.Fatal("lookup /b: expected not found")
	}
}

func TestHideWinsOverInsertAtSameLevel(t *testing.T) {
	d := NewDelta()
	if err := d.Insert("/a", RefEntry{Kind: KindFile}); err != nil {
		t.Fatal(err)
	}
	if err := d.Hide("/a"); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Lookup("/a"); ok {
		t.Fatal("expected /a hidden even though it was also inserted in this delta")
	}
	if !d.Hidden("/a") {
		t.Fatal("Hidden(/a) = false, want true")
	}
}

func TestLookupLocalDistinguishesHiddenFromAbsent(t *testing.T) {
	d := NewDelta()
	if err := d.Hide("/gone"); err != nil {
		t.Fatal(err)
	}
	if _, hidden, ok := d.LookupLocal("/gone"); !hidden || ok {
		t.Fatalf("LookupLocal(/gone) = hidden=%v ok=%v, want hidden=true ok=false", hidden, ok)
	}
	if _, hidden, ok := d.LookupLocal("/never-mentioned"); hidden || ok {
		t.Fatalf("LookupLocal(/never-mentioned) = hidden=%v ok=%v, want both false", hidden, ok)
	}
}

func TestSealRejectsFurtherMutation(t *testing.T) {
	d := NewDelta()
	d.Seal()
	if err := d.Insert("/a", RefEntry{}); !errors.Is(err, geoerr.ErrSealedView) {
		t.Fatalf("insert after seal = %v, want ErrSealedView", err)
	}
	if err := d.Hide("/a"); !errors.Is(err, geoerr.ErrSealedView) {
		t.Fatalf("hide after seal = %v, want ErrSealedView", err)
	}
}

func TestListOrdersByPathAndExcludesHidden(t *testing.T) {
	d := NewDelta()
	for _, p := range []string{"/dir/c", "/dir/a", "/dir/b", "/dir/sub/nested", "/other/x"} {
		if err := d.Insert(p, RefEntry{Kind: KindFile}); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.Hide("/dir/b"); err != nil {
		t.Fatal(err)
	}

	got := d.List("/dir")
	want := []string{"/dir/a", "/dir/c"}
	if len(got) != len(want) {
		t.Fatalf("List(/dir) = %v, want %v", got, want)
	}
	for i, e := range got {
		if e.Path != want[i] {
			t.Fatalf("List(/dir)[%d] = %q, want %q", i, e.Path, want[i])
		}
	}
}

func TestListExcludesNestedEntries(t *testing.T) {
	d := NewDelta()
	if err := d.Insert("/dir/sub/nested", RefEntry{Kind: KindFile}); err != nil {
		t.Fatal(err)
	}
	if got := d.List("/dir"); len(got) != 0 {
		t.Fatalf("List(/dir) = %v, want empty (nested entries are not immediate children)", got)
	}
}

func TestHiddenImmediateChildren(t *testing.T) {
	d := NewDelta()
	for _, p := range []string{"/dir/a", "/dir/b", "/dir/sub/nested", "/other"} {
		if err := d.Hide(p); err != nil {
			t.Fatal(err)
		}
	}
	got := d.HiddenImmediateChildren("/dir")
	seen := map[string]bool{}
	for _, name := range got {
		seen[name] = true
	}
	if len(got) != 2 || !seen["a"] || !seen["b"] {
		t.Fatalf("HiddenImmediateChildren(/dir) = %v, want [a b]", got)
	}
}

func TestEntriesReturnsEverythingInPathOrder(t *testing.T) {
	d := NewDelta()
	for _, p := range []string{"/z", "/a", "/m"} {
		if err := d.Insert(p, RefEntry{Kind: KindFile}); err != nil {
			t.Fatal(err)
		}
	}
	entries := d.Entries()
	want := []string{"/a", "/m", "/z"}
	for i, e := range entries {
		if e.Path != want[i] {
			t.Fatalf("Entries()[%d] = %q, want %q", i, e.Path, want[i])
		}
	}
}

func TestHiddenPathsSortedSnapshot(t *testing.T) {
	d := NewDelta()
	for _, p := range []string{"/z", "/a", "/m"} {
		if err := d.Hide(p); err != nil {
			t.Fatal(err)
		}
	}
	got := d.HiddenPaths()
	want := []string{"/a", "/m", "/z"}
	for i, p := range got {
		if p != want[i] {
			t.Fatalf("HiddenPaths()[%d] = %q, want %q", i, p, want[i])
		}
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindFile:      "file",
		KindDirectory: "directory",
		KindSymlink:   "symlink",
		KindDevice:    "device",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
