package content

import (
	"bytes"
	"sync"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	want := []byte("hello")
	d, err := s.Put(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(d)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	d1, err := s.Put([]byte("dup"))
	if err != nil {
		t.Fatal(err)
	}
	d2, err := s.Put([]byte("dup"))
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Fatalf("put(x) != put(x): %s vs %s", d1, d2)
	}
}

func TestEmptyContent(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	d, err := s.Put(nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(d)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestGetNotFound(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(Sum([]byte("never-written"))); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestConcurrentPutSameContentDeduplicates(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	const n = 32
	digests := make([]Digest, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			d, err := s.Put([]byte("same-bytes"))
			if err != nil {
				t.Error(err)
				return
			}
			digests[i] = d
		}(i)
	}
	wg.Wait()
	for _, d := range digests {
		if d != digests[0] {
			t.Fatalf("digests diverged under concurrency: %s vs %s", d, digests[0])
		}
	}
}

func TestHasIsMonotonic(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	d, err := s.Put([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if !s.Has(d) {
		t.Fatal("expected Has to be true after Put")
	}
	if _, err := s.Put([]byte("y")); err != nil {
		t.Fatal(err)
	}
	if !s.Has(d) {
		t.Fatal("Has(d) regressed after an unrelated Put")
	}
}
