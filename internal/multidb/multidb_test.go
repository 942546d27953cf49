package multidb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// catalogMagic mirrors the reserved catalog magic number, which doesn't
// fit a signed int32 literal directly.
var catalogMagicU32 uint32 = 0xF9A283BC
var catalogMagic = int32(catalogMagicU32)

func TestBuildAndRetrieveSubDatabases(t *testing.T) {
	b := NewBuilder(4, binary.LittleEndian)
	catalogPayload := []byte{1, 2, 3, 4}
	pairPayload := []byte{5, 6, 7, 8, 9, 10}
	b.AddSubDatabase(catalogMagic, catalogPayload)
	b.AddSubDatabase(0x2536F009, pairPayload)
	buf := b.Finish()

	mdb, err := Parse(buf, 4, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got, err := mdb.SubDatabase(catalogMagic)
	if err != nil {
		t.Fatalf("SubDatabase(catalog): %v", err)
	}
	if !bytes.Equal(got, catalogPayload) {
		t.Fatalf("catalog payload mismatch: got %v want %v", got, catalogPayload)
	}

	got, err = mdb.SubDatabase(0x2536F009)
	if err != nil {
		t.Fatalf("SubDatabase(pair): %v", err)
	}
	if !bytes.Equal(got, pairPayload) {
		t.Fatalf("pair payload mismatch: got %v want %v", got, pairPayload)
	}
}

func TestSubDatabaseMissingMagic(t *testing.T) {
	b := NewBuilder(2, binary.LittleEndian)
	b.AddSubDatabase(0x1, []byte{1, 2, 3})
	buf := b.Finish()

	mdb, err := Parse(buf, 2, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := mdb.SubDatabase(0x999); err != ErrNoSubDatabase {
		t.Fatalf("expected ErrNoSubDatabase, got %v", err)
	}
}

func TestAddSubDatabasePanicsWhenFull(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic when table of contents is full")
		}
	}()
	b := NewBuilder(1, binary.LittleEndian)
	b.AddSubDatabase(0x1, []byte{1})
	b.AddSubDatabase(0x2, []byte{2})
}

func TestParseRejectsShortBuffer(t *testing.T) {
	if _, err := Parse([]byte{1, 2, 3}, 4, binary.LittleEndian); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}
