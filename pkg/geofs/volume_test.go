package geofs

import (
	"path/filepath"
	"testing"
)

func mustOpen(t *testing.T, opts Options) *Volume {
	t.Helper()
	v, err := Create(t.TempDir(), opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

func TestWriteReadRoundTrip(t *testing.T) {
	v := mustOpen(t, Options{})
	if err := v.Write("/a", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Snapshot("v1"); err != nil {
		t.Fatal(err)
	}
	got, err := v.Read("/a")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("read /a = %q, want hello", got)
	}
	if st := v.Stats(); st.UniqueBytes != int64(len("hello")) {
		t.Fatalf("stats unique bytes = %d, want %d", st.UniqueBytes, len("hello"))
	}
}

func TestDeduplication(t *testing.T) {
	v := mustOpen(t, Options{})
	if err := v.Write("/a", []byte("dup")); err != nil {
		t.Fatal(err)
	}
	if err := v.Write("/b", []byte("dup")); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Snapshot("v1"); err != nil {
		t.Fatal(err)
	}
	a, err := v.Read("/a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := v.Read("/b")
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatalf("read /a=%q != read /b=%q", a, b)
	}
	st := v.Stats()
	if st.UniqueBytes != int64(len("dup")) {
		t.Fatalf("unique bytes = %d, want %d", st.UniqueBytes, len("dup"))
	}
	if st.LogicalBytes != int64(2*len("dup")) {
		t.Fatalf("logical bytes = %d, want %d", st.LogicalBytes, 2*len("dup"))
	}
	if st.DedupSavings != int64(len("dup")) {
		t.Fatalf("dedup savings = %d, want %d", st.DedupSavings, len("dup"))
	}
}

func TestHidePreservesHistory(t *testing.T) {
	v := mustOpen(t, Options{})
	if err := v.Write("/x", []byte("one")); err != nil {
		t.Fatal(err)
	}
	v1, err := v.Snapshot("v1")
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Hide("/x"); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Snapshot("v2"); err != nil {
		t.Fatal(err)
	}

	if ok, err := v.Exists("/x"); err != nil || ok {
		t.Fatalf("exists(/x) at v2 = %v,%v; want false,nil", ok, err)
	}
	if err := v.Switch(v1); err != nil {
		t.Fatal(err)
	}
	got, err := v.Read("/x")
	if err != nil || string(got) != "one" {
		t.Fatalf("read(/x) at v1 = %q,%v; want one,nil", got, err)
	}
}

func TestViewTreeShape(t *testing.T) {
	v := mustOpen(t, Options{})
	if err := v.Write("/a", []byte("A")); err != nil {
		t.Fatal(err)
	}
	v1, err := v.Snapshot("v1")
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Hide("/a"); err != nil {
		t.Fatal(err)
	}
	v2, err := v.Snapshot("v2")
	if err != nil {
		t.Fatal(err)
	}

	views := v.ListViews()
	if len(views) != 3 {
		t.Fatalf("expected 3 views, got %d", len(views))
	}
	if views[1].ID != v1 || views[2].ID != v2 {
		t.Fatalf("unexpected view order: %+v", views)
	}
	if !views[2].HasParent || views[2].Parent != v1 {
		t.Fatalf("parent(v2) = %+v, want %d", views[2], v1)
	}
	if !views[1].HasParent || views[1].Parent != views[0].ID {
		t.Fatalf("parent(v1) = %+v, want %d", views[1], views[0].ID)
	}
}

func TestQuotaExceeded(t *testing.T) {
	v := mustOpen(t, Options{QuotaBytes: 4})
	if err := v.Write("/a", []byte("ab")); err != nil {
		t.Fatal(err)
	}
	if err := v.Write("/b", []byte("abc")); err == nil {
		t.Fatal("expected quota-exceeded, got nil")
	}
}

func TestSwitchDoesNotReopenSealedViewForWriting(t *testing.T) {
	v := mustOpen(t, Options{})
	if err := v.Write("/a", []byte("A")); err != nil {
		t.Fatal(err)
	}
	v1, err := v.Snapshot("v1")
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Switch(v1); err != nil {
		t.Fatal(err)
	}
	// The working view is still open for writes after switch; sealed
	// views themselves reject direct mutation, which viewgraph already
	// covers. Here we confirm switch alone never re-opens a sealed view
	// for writing.
	if v.graph.WorkingID() == v1 {
		t.Fatal("switch must not make a sealed view the working view")
	}
}

func TestReopenRecoversSealedViews(t *testing.T) {
	dir := t.TempDir()
	v, err := Create(dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Write("/a", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Snapshot("v1"); err != nil {
		t.Fatal(err)
	}
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}

	v2, err := Open(dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer v2.Close()
	got, err := v2.Read("/a")
	if err != nil || string(got) != "hello" {
		t.Fatalf("read(/a) after reopen = %q,%v; want hello,nil", got, err)
	}
}

func TestHideOnMissingPathIsNoOp(t *testing.T) {
	v := mustOpen(t, Options{})
	if err := v.Hide("/never-written"); err != nil {
		t.Fatalf("hide on missing path should be a no-op, got %v", err)
	}
}

func TestWriteCreatesImplicitParentDirectories(t *testing.T) {
	v := mustOpen(t, Options{})
	if err := v.Write("/a/b/c", []byte("leaf")); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Snapshot("v1"); err != nil {
		t.Fatal(err)
	}
	if ok, err := v.Exists("/a"); err != nil || !ok {
		t.Fatalf("exists(/a) = %v,%v; want true,nil", ok, err)
	}
	if ok, err := v.Exists(filepath.ToSlash("/a/b")); err != nil || !ok {
		t.Fatalf("exists(/a/b) = %v,%v; want true,nil", ok, err)
	}
}
