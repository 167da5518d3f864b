package geofs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghartrid/geology/pkg/geoerr"
)

// writeFileAtomic writes b to path by writing to a temp file in the same
// directory and renaming over path, per spec.md §6: "All files in the
// volume are written atomically (write-to-temp, rename)."
func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("geofs: mkdir %s: %w: %v", dir, geoerr.ErrIOError, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("geofs: create temp in %s: %w: %v", dir, geoerr.ErrIOError, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("geofs: write %s: %w: %v", path, geoerr.ErrIOError, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("geofs: close %s: %w: %v", path, geoerr.ErrIOError, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("geofs: rename onto %s: %w: %v", path, geoerr.ErrIOError, err)
	}
	return nil
}
