// This file serializes Record with the same tagged, length-prefixed
// binary codec spec.md §6 mandates for everything else the engine
// persists: a fixed-width tag, a 32-bit payload length, raw fixed-width
// digest bytes. See pkg/geofs/codec.go for the sibling implementation
// over RefEntry/view rows; Record needed its own copy since it lives in a
// different package with different fields (capability name lists,
// substitute digest) but the same wire discipline.
package governor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ghartrid/geology/pkg/geoerr"
)

const tagRecord byte = 0x10

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

func writeStringList(buf *bytes.Buffer, ss []string) {
	binary.Write(buf, binary.BigEndian, uint16(len(ss)))
	for _, s := range ss {
		writeString(buf, s)
	}
}

func readStringList(r *bytes.Reader) ([]string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]string, n)
	for i := range out {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// encodeRecord serializes rec as the on-disk content of
// /governor/audit/<id>.
func encodeRecord(rec Record) []byte {
	var payload bytes.Buffer
	binary.Write(&payload, binary.BigEndian, rec.ID)
	payload.WriteByte(byte(rec.Decision))
	payload.Write(rec.CodeDigest[:])
	payload.Write(rec.SubstituteDigest[:])
	writeStringList(&payload, rec.Requested)
	writeStringList(&payload, rec.Granted)
	writeString(&payload, rec.Reason)
	binary.Write(&payload, binary.BigEndian, rec.Timestamp)
	writeString(&payload, rec.Actor)

	var buf bytes.Buffer
	buf.WriteByte(tagRecord)
	binary.Write(&buf, binary.BigEndian, uint32(payload.Len()))
	buf.Write(payload.Bytes())
	return buf.Bytes()
}

func decodeRecord(data []byte) (Record, error) {
	r := bytes.NewReader(data)
	tag, err := r.ReadByte()
	if err != nil {
		return Record{}, err
	}
	if tag != tagRecord {
		return Record{}, fmt.Errorf("governor: decode record: unexpected tag %#x: %w", tag, geoerr.ErrIOError)
	}
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return Record{}, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Record{}, err
	}
	pr := bytes.NewReader(payload)

	var rec Record
	if err := binary.Read(pr, binary.BigEndian, &rec.ID); err != nil {
		return Record{}, err
	}
	decisionByte, err := pr.ReadByte()
	if err != nil {
		return Record{}, err
	}
	rec.Decision = Decision(decisionByte)
	if _, err := io.ReadFull(pr, rec.CodeDigest[:]); err != nil {
		return Record{}, err
	}
	if _, err := io.ReadFull(pr, rec.SubstituteDigest[:]); err != nil {
		return Record{}, err
	}
	if rec.Requested, err = readStringList(pr); err != nil {
		return Record{}, err
	}
	if rec.Granted, err = readStringList(pr); err != nil {
		return Record{}, err
	}
	if rec.Reason, err = readString(pr); err != nil {
		return Record{}, err
	}
	if err := binary.Read(pr, binary.BigEndian, &rec.Timestamp); err != nil {
		return Record{}, err
	}
	if rec.Actor, err = readString(pr); err != nil {
		return Record{}, err
	}
	return rec, nil
}
