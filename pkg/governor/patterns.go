package governor

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ghartrid/geology/pkg/geoerr"
)

// defaultPatterns is the destructive-pattern table seeded into a fresh
// volume the first time an Evaluator is constructed against it: byte
// sequences naming the unlink/truncate/kill/erase primitives spec.md
// §4.6 requires scanning for.
func defaultPatterns() [][]byte {
	return [][]byte{
		[]byte("os.Remove("),
		[]byte("os.RemoveAll("),
		[]byte("syscall.Unlink("),
		[]byte("unlink("),
		[]byte("rmdir("),
		[]byte("truncate("),
		[]byte("rm -rf"),
		[]byte("DROP TABLE"),
		[]byte("DELETE FROM"),
	}
}

// encodePatternTable renders the pattern table as the versioned asset of
// spec.md §6: a first line naming the policy version, one hex-encoded
// pattern per remaining line. Hex avoids any conflict between a pattern's
// own bytes and the newline-separated layout this volume already uses for
// refs/<id>/hide.
func encodePatternTable(version int, patterns [][]byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "version %d\n", version)
	for _, p := range patterns {
		buf.WriteString(hex.EncodeToString(p))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func decodePatternTable(data []byte) (int, [][]byte, error) {
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 0 {
		return 0, nil, fmt.Errorf("governor: empty pattern table: %w", geoerr.ErrIOError)
	}
	var version int
	if _, err := fmt.Sscanf(lines[0], "version %d", &version); err != nil {
		return 0, nil, fmt.Errorf("governor: parse pattern table version: %w: %v", geoerr.ErrIOError, err)
	}
	var patterns [][]byte
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		p, err := hex.DecodeString(line)
		if err != nil {
			return 0, nil, fmt.Errorf("governor: parse pattern table entry: %w: %v", geoerr.ErrIOError, err)
		}
		patterns = append(patterns, p)
	}
	return version, patterns, nil
}
