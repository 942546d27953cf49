// Package multidb implements the container format that ties together a
// catalog payload and one or more k-vector-backed sub-databases into a
// single file: a fixed-length table of contents, keyed by magic number,
// followed by the concatenated sub-database payloads.
package multidb

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/darkdragonsastro/lost/internal/serialize"
)

// DefaultMaxSubDatabases is the table-of-contents capacity used when a
// caller doesn't have a specific reason to pick another size: room for the
// catalog plus a handful of distance databases.
const DefaultMaxSubDatabases = 16

// tocEntrySize is the serialized size of one (magic int32, offset int32)
// table-of-contents entry.
const tocEntrySize = 8

// ErrNoSubDatabase is returned when a requested magic value has no entry
// in the table of contents.
var ErrNoSubDatabase = errors.New("multidb: no sub-database with that magic value")

// ErrCorrupt is returned when the table of contents references an offset
// that falls outside the buffer, or the buffer is too short to hold a TOC
// of the claimed size.
var ErrCorrupt = errors.New("multidb: corrupt multi-database")

// MultiDatabase is a read-only view over a serialized multi-database
// buffer. It never copies the buffer; callers must keep it alive for as
// long as any sub-database slice obtained from it is in use.
type MultiDatabase struct {
	buf             []byte
	maxSubDatabases int
	order           binary.ByteOrder
}

// Parse wraps buf as a MultiDatabase whose table of contents has
// maxSubDatabases entries.
func Parse(buf []byte, maxSubDatabases int, order binary.ByteOrder) (*MultiDatabase, error) {
	tocLength := maxSubDatabases * tocEntrySize
	if len(buf) < tocLength {
		return nil, fmt.Errorf("%w: buffer shorter than table of contents", ErrCorrupt)
	}
	return &MultiDatabase{buf: buf, maxSubDatabases: maxSubDatabases, order: order}, nil
}

// SubDatabase returns the payload bytes registered under magicValue, i.e.
// everything from that sub-database's declared offset up to the start of
// the next registered sub-database (or the end of the buffer, for the
// last one). Entries in the table of contents after the first unused
// (magic == 0) slot are ignored, matching the construction invariant that
// AddSubDatabase always fills the first available spot.
func (m *MultiDatabase) SubDatabase(magicValue int32) ([]byte, error) {
	r := serialize.NewReader(m.buf, m.order)

	type entry struct {
		magic  int32
		offset int32
	}
	var entries []entry
	for i := 0; i < m.maxSubDatabases; i++ {
		magic, err := r.Int32()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		offset, err := r.Int32()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if magic == 0 {
			break
		}
		entries = append(entries, entry{magic, offset})
	}

	tocLength := m.maxSubDatabases * tocEntrySize
	for i, e := range entries {
		if e.magic != magicValue {
			continue
		}
		start := tocLength + int(e.offset)
		if start < tocLength || start > len(m.buf) {
			return nil, fmt.Errorf("%w: offset %d out of range", ErrCorrupt, e.offset)
		}
		end := len(m.buf)
		if i+1 < len(entries) {
			end = tocLength + int(entries[i+1].offset)
			if end < start || end > len(m.buf) {
				return nil, fmt.Errorf("%w: offset %d out of range", ErrCorrupt, entries[i+1].offset)
			}
		}
		return m.buf[start:end], nil
	}
	return nil, ErrNoSubDatabase
}

// Builder accumulates sub-databases into a single buffer with a leading
// table of contents. Use Builder.Finish to obtain the serialized result;
// intermediate state isn't observable any other way.
type Builder struct {
	maxSubDatabases int
	order           binary.ByteOrder
	toc             []tocSlot
	bulk            []byte
}

type tocSlot struct {
	magic  int32
	offset int32
}

// NewBuilder creates an empty Builder with room for maxSubDatabases
// entries.
func NewBuilder(maxSubDatabases int, order binary.ByteOrder) *Builder {
	return &Builder{maxSubDatabases: maxSubDatabases, order: order}
}

// AddSubDatabase appends payload to the bulk region and registers it in
// the table of contents under magicValue. Panics if the builder's table of
// contents is already full: the caller controls how many sub-databases it
// registers and must size the builder accordingly.
func (b *Builder) AddSubDatabase(magicValue int32, payload []byte) {
	if len(b.toc) >= b.maxSubDatabases {
		panic("multidb: table of contents is full")
	}
	b.toc = append(b.toc, tocSlot{magic: magicValue, offset: int32(len(b.bulk))})
	b.bulk = append(b.bulk, payload...)
}

// Finish returns the serialized multi-database: the table of contents
// (padded with magic=0 slots up to maxSubDatabases), followed by the
// concatenated payloads in registration order.
func (b *Builder) Finish() []byte {
	w := serialize.NewWriter(b.order)
	for _, slot := range b.toc {
		w.WriteInt32(slot.magic)
		w.WriteInt32(slot.offset)
	}
	for i := len(b.toc); i < b.maxSubDatabases; i++ {
		w.WriteInt32(0)
		w.WriteInt32(0)
	}
	toc := w.Finish()
	return append(toc, b.bulk...)
}
