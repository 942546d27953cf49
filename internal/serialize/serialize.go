// Package serialize provides the primitive/array read and write helpers the
// on-disk database formats are built from: fixed-width integers and floats,
// written with alignment padding so that every value of size N bytes sits
// at an offset that is a multiple of N, and a configurable byte order so a
// producer can pick either endianness as long as every reader agrees.
//
// Reader.Int16Array and Reader.Int32Array copy the elements into freshly
// allocated slices; they do not return views into the input buffer, so a
// returned slice does not depend on the buffer staying alive.
package serialize

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrShortBuffer is returned when a read would run past the end of the
// underlying buffer.
var ErrShortBuffer = errors.New("serialize: short buffer")

// Reader walks a byte buffer, applying alignment padding before each
// primitive or array read. Arrays are decoded into newly allocated slices,
// not returned as sub-slices of the original buffer.
type Reader struct {
	buf    []byte
	cursor int
	order  binary.ByteOrder
}

// NewReader creates a Reader over buf using the given byte order.
func NewReader(buf []byte, order binary.ByteOrder) *Reader {
	return &Reader{buf: buf, order: order}
}

// Offset returns the current read position, relative to the start of the
// buffer.
func (r *Reader) Offset() int {
	return r.cursor
}

// align advances the cursor to the next offset that is a multiple of size,
// inserting no bytes (reads skip padding rather than consuming it).
func (r *Reader) align(size int) {
	pad := (size - r.cursor%size) % size
	r.cursor += pad
}

func (r *Reader) take(n int) ([]byte, error) {
	if r.cursor+n > len(r.buf) {
		return nil, ErrShortBuffer
	}
	b := r.buf[r.cursor : r.cursor+n]
	r.cursor += n
	return b, nil
}

// Int16 reads a padded, byte-order-aware int16.
func (r *Reader) Int16() (int16, error) {
	r.align(2)
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return int16(r.order.Uint16(b)), nil
}

// Int32 reads a padded, byte-order-aware int32.
func (r *Reader) Int32() (int32, error) {
	r.align(4)
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(r.order.Uint32(b)), nil
}

// Float32 reads a padded, byte-order-aware float32.
func (r *Reader) Float32() (float32, error) {
	r.align(4)
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(r.order.Uint32(b)), nil
}

// Int16Array aligns, then reads n int16 values into a freshly allocated
// slice, applying the reader's byte order to each element.
func (r *Reader) Int16Array(n int) ([]int16, error) {
	r.align(2)
	byteLen := n * 2
	b, err := r.take(byteLen)
	if err != nil {
		return nil, err
	}
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(r.order.Uint16(b[i*2 : i*2+2]))
	}
	return out, nil
}

// Int32Array aligns, then reads n int32 values.
func (r *Reader) Int32Array(n int) ([]int32, error) {
	r.align(4)
	byteLen := n * 4
	b, err := r.take(byteLen)
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		out[i] = int32(r.order.Uint32(b[i*4 : i*4+4]))
	}
	return out, nil
}

// Writer accumulates a growable byte buffer. Callers only ever see the
// bytes through Finish(); Len reports how many have been written so far.
type Writer struct {
	buf   []byte
	order binary.ByteOrder
}

// NewWriter creates an empty Writer using the given byte order.
func NewWriter(order binary.ByteOrder) *Writer {
	return &Writer{order: order}
}

func (w *Writer) pad(size int) {
	for len(w.buf)%size != 0 {
		w.buf = append(w.buf, 0)
	}
}

// WriteInt16 pads then appends v.
func (w *Writer) WriteInt16(v int16) {
	w.pad(2)
	var b [2]byte
	w.order.PutUint16(b[:], uint16(v))
	w.buf = append(w.buf, b[:]...)
}

// WriteInt32 pads then appends v.
func (w *Writer) WriteInt32(v int32) {
	w.pad(4)
	var b [4]byte
	w.order.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

// WriteFloat32 pads then appends v.
func (w *Writer) WriteFloat32(v float32) {
	w.pad(4)
	var b [4]byte
	w.order.PutUint32(b[:], math.Float32bits(v))
	w.buf = append(w.buf, b[:]...)
}

// WriteInt16Array pads once, then appends every element (each subsequent
// element is already aligned because int16 is 2 bytes).
func (w *Writer) WriteInt16Array(vs []int16) {
	w.pad(2)
	for _, v := range vs {
		var b [2]byte
		w.order.PutUint16(b[:], uint16(v))
		w.buf = append(w.buf, b[:]...)
	}
}

// WriteInt32Array pads once, then appends every element.
func (w *Writer) WriteInt32Array(vs []int32) {
	w.pad(4)
	for _, v := range vs {
		var b [4]byte
		w.order.PutUint32(b[:], uint32(v))
		w.buf = append(w.buf, b[:]...)
	}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Finish returns ownership of the accumulated buffer. The Writer must not
// be used afterward.
func (w *Writer) Finish() []byte {
	return w.buf
}
