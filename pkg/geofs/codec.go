// This file implements the on-disk tagged, length-prefixed binary codec
// required by spec.md §6: "each record begins with a fixed-width tag
// identifying the record kind and a 32-bit length of the following
// payload. Digests are raw fixed-width bytes... in the on-disk form."
//
// This is a hand-rolled encoding/binary codec rather than a third-party
// serialization library: spec.md §6 fixes an exact, narrow wire shape
// (one tag byte, one uint32 length, a flat payload with a raw 32-byte
// digest) that doesn't benefit from a general schema system, and the
// pack's only schema libraries (protobuf, gogo-protobuf) would require
// generated .pb.go bindings this process cannot produce. See DESIGN.md.
package geofs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ghartrid/geology/pkg/content"
	"github.com/ghartrid/geology/pkg/geoerr"
	"github.com/ghartrid/geology/pkg/refindex"
	"github.com/ghartrid/geology/pkg/viewgraph"
)

const (
	tagRefEntry byte = 0x01
	tagViewRow  byte = 0x02
)

func encodeRefEntry(buf *bytes.Buffer, e refindex.RefEntry) {
	var payload bytes.Buffer
	writeString(&payload, e.Path)
	payload.WriteByte(byte(e.Kind))
	payload.Write(e.Digest[:])
	binary.Write(&payload, binary.BigEndian, e.Size)
	binary.Write(&payload, binary.BigEndian, e.MTimeHint)
	binary.Write(&payload, binary.BigEndian, e.Flags)

	buf.WriteByte(tagRefEntry)
	binary.Write(buf, binary.BigEndian, uint32(payload.Len()))
	buf.Write(payload.Bytes())
}

func decodeRefEntry(r *bytes.Reader) (refindex.RefEntry, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return refindex.RefEntry{}, err
	}
	if tag != tagRefEntry {
		return refindex.RefEntry{}, fmt.Errorf("geofs: decode delta: unexpected tag %#x: %w", tag, geoerr.ErrIOError)
	}
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return refindex.RefEntry{}, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return refindex.RefEntry{}, err
	}
	pr := bytes.NewReader(payload)
	path, err := readString(pr)
	if err != nil {
		return refindex.RefEntry{}, err
	}
	kindByte, err := pr.ReadByte()
	if err != nil {
		return refindex.RefEntry{}, err
	}
	var digest content.Digest
	if _, err := io.ReadFull(pr, digest[:]); err != nil {
		return refindex.RefEntry{}, err
	}
	var size, mtime int64
	var flags uint32
	if err := binary.Read(pr, binary.BigEndian, &size); err != nil {
		return refindex.RefEntry{}, err
	}
	if err := binary.Read(pr, binary.BigEndian, &mtime); err != nil {
		return refindex.RefEntry{}, err
	}
	if err := binary.Read(pr, binary.BigEndian, &flags); err != nil {
		return refindex.RefEntry{}, err
	}
	return refindex.RefEntry{
		Path:      path,
		Kind:      refindex.Kind(kindByte),
		Digest:    digest,
		Size:      size,
		MTimeHint: mtime,
		Flags:     flags,
	}, nil
}

// encodeDelta serializes every entry of a Delta as a sequence of tagged
// records, the on-disk form of refs/<view-id>/delta.
func encodeDelta(entries []refindex.RefEntry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		encodeRefEntry(&buf, e)
	}
	return buf.Bytes()
}

// decodeDelta parses the tagged-record stream back into RefEntries.
func decodeDelta(b []byte) ([]refindex.RefEntry, error) {
	r := bytes.NewReader(b)
	var out []refindex.RefEntry
	for r.Len() > 0 {
		e, err := decodeRefEntry(r)
		if err != nil {
			return nil, fmt.Errorf("geofs: decode delta: %w: %v", geoerr.ErrIOError, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint16(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// viewRow is the on-disk shape of one views/index entry: (view-id,
// parent-id, label, created), per spec.md §6.
type viewRow struct {
	ID        viewgraph.ViewID
	HasParent bool
	Parent    viewgraph.ViewID
	Label     string
	Created   int64
}

// indexHeader records the digest construction in force for this volume,
// per spec.md §6: "the choice is fixed per volume and recorded in
// views/index header."
type indexHeader struct {
	DigestAlgorithm string
}

func encodeViewsIndex(header indexHeader, rows []viewRow) []byte {
	var buf bytes.Buffer
	writeString(&buf, header.DigestAlgorithm)
	binary.Write(&buf, binary.BigEndian, uint32(len(rows)))
	for _, row := range rows {
		var payload bytes.Buffer
		binary.Write(&payload, binary.BigEndian, uint64(row.ID))
		hasParent := byte(0)
		if row.HasParent {
			hasParent = 1
		}
		payload.WriteByte(hasParent)
		binary.Write(&payload, binary.BigEndian, uint64(row.Parent))
		writeString(&payload, row.Label)
		binary.Write(&payload, binary.BigEndian, row.Created)

		buf.WriteByte(tagViewRow)
		binary.Write(&buf, binary.BigEndian, uint32(payload.Len()))
		buf.Write(payload.Bytes())
	}
	return buf.Bytes()
}

func decodeViewsIndex(b []byte) (indexHeader, []viewRow, error) {
	r := bytes.NewReader(b)
	algo, err := readString(r)
	if err != nil {
		return indexHeader{}, nil, err
	}
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return indexHeader{}, nil, err
	}
	rows := make([]viewRow, 0, count)
	for i := uint32(0); i < count; i++ {
		tag, err := r.ReadByte()
		if err != nil {
			return indexHeader{}, nil, err
		}
		if tag != tagViewRow {
			return indexHeader{}, nil, fmt.Errorf("geofs: decode views/index: unexpected tag %#x: %w", tag, geoerr.ErrIOError)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return indexHeader{}, nil, err
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return indexHeader{}, nil, err
		}
		pr := bytes.NewReader(payload)
		var id, parent uint64
		if err := binary.Read(pr, binary.BigEndian, &id); err != nil {
			return indexHeader{}, nil, err
		}
		hasParentByte, err := pr.ReadByte()
		if err != nil {
			return indexHeader{}, nil, err
		}
		if err := binary.Read(pr, binary.BigEndian, &parent); err != nil {
			return indexHeader{}, nil, err
		}
		label, err := readString(pr)
		if err != nil {
			return indexHeader{}, nil, err
		}
		var created int64
		if err := binary.Read(pr, binary.BigEndian, &created); err != nil {
			return indexHeader{}, nil, err
		}
		rows = append(rows, viewRow{
			ID:        viewgraph.ViewID(id),
			HasParent: hasParentByte == 1,
			Parent:    viewgraph.ViewID(parent),
			Label:     label,
			Created:   created,
		})
	}
	return indexHeader{DigestAlgorithm: algo}, rows, nil
}

func encodeHideSet(paths []string) []byte {
	var buf bytes.Buffer
	for _, p := range paths {
		buf.WriteString(p)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func decodeHideSet(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	lines := bytes.Split(bytes.TrimRight(b, "\n"), []byte("\n"))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if len(l) == 0 {
			continue
		}
		out = append(out, string(l))
	}
	return out
}
