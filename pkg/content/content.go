// Package content implements the Content Store of spec.md §4.1: a
// deduplicated, content-addressed blob store keyed by a 256-bit digest.
//
// Storage is sharded on disk as content/<first-2-hex>/<digest-hex>, per
// spec.md §6. Every write is atomic (write-to-temp, rename), and a digest
// that already exists on disk is never rewritten: put is idempotent.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sync/singleflight"

	"github.com/ghartrid/geology/pkg/geoerr"
)

// DigestSize is the width of a Digest in bytes (256 bits), satisfying
// spec.md §4.1's "at least 256 bits" requirement exactly.
const DigestSize = sha256.Size

// Digest identifies a blob by content. The choice of hash (SHA-256) is
// fixed per volume and recorded in the volume's views/index header, per
// spec.md §6.
type Digest [DigestSize]byte

// String renders the digest as lowercase hex, the form used in filesystem
// names and logs per spec.md §6. On-disk records store the raw bytes.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// shard returns the two-hex-character directory shard for d.
func (d Digest) shard() string {
	return hex.EncodeToString(d[:1])
}

// Sum computes the digest of b without storing it.
func Sum(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// Store is the Content Store for one volume. Zero value is not usable; use
// Open.
type Store struct {
	root string

	// group collapses concurrent Put calls for the same digest into a
	// single disk write, the concurrency-safe reading of the idempotence
	// law in spec.md §8 ("put(x) == put(x)").
	group singleflight.Group

	retry func() backoff.BackOff
}

// Open opens (creating if necessary) a Content Store rooted at dir/content.
func Open(dir string) (*Store, error) {
	root := filepath.Join(dir, "content")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("content: open: %w: %v", geoerr.ErrIOError, err)
	}
	return &Store{
		root: root,
		retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 2 * time.Second
			return b
		},
	}, nil
}

func (s *Store) path(d Digest) string {
	return filepath.Join(s.root, d.shard(), d.String())
}

// Has reports whether d has previously been returned by a successful Put.
// Once true, Has(d) is monotonic-true (spec.md invariant C2): nothing ever
// removes an entry.
func (s *Store) Has(d Digest) bool {
	_, err := os.Stat(s.path(d))
	return err == nil
}

// Put stores b and returns its digest. If b's digest is already present,
// Put returns that digest without writing again (spec.md invariant C2:
// dedup, no blob is ever removed or rewritten).
func (s *Store) Put(b []byte) (Digest, error) {
	d := Sum(b)
	key := d.String()
	_, err, _ := s.group.Do(key, func() (interface{}, error) {
		if s.Has(d) {
			return nil, nil
		}
		return nil, s.writeAtomic(d, b)
	})
	if err != nil {
		return Digest{}, err
	}
	return d, nil
}

func (s *Store) writeAtomic(d Digest, b []byte) error {
	dir := filepath.Join(s.root, d.shard())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("content: put: %w: %v", geoerr.ErrIOError, err)
	}
	var lastErr error
	bo := s.retry()
	for {
		tmp, err := os.CreateTemp(dir, ".tmp-*")
		if err != nil {
			lastErr = err
		} else {
			_, werr := tmp.Write(b)
			cerr := tmp.Close()
			if werr == nil && cerr == nil {
				if rerr := os.Rename(tmp.Name(), s.path(d)); rerr == nil {
					return nil
				} else {
					lastErr = rerr
				}
			} else {
				os.Remove(tmp.Name())
				if werr != nil {
					lastErr = werr
				} else {
					lastErr = cerr
				}
			}
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("content: put: %w: %v", geoerr.ErrIOError, lastErr)
		}
		time.Sleep(wait)
	}
}

// Get retrieves the bytes previously stored under d. Returns
// geoerr.ErrNotFound for any digest never returned by a prior successful
// Put (spec.md §4.1).
func (s *Store) Get(d Digest) ([]byte, error) {
	b, err := os.ReadFile(s.path(d))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("content: get %s: %w", d, geoerr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("content: get %s: %w: %v", d, geoerr.ErrIOError, err)
	}
	return b, nil
}
