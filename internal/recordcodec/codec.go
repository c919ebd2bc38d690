// Package recordcodec provides a small stable-order binary encoding for the
// graph store's node, edge, chunk, and adjacency records.
//
// encoding/gob is deliberately not used here: gob ties wire compatibility to
// Go struct definitions and a type registry, which turns an additive schema
// change (a new optional field) into a decode-time hazard for records written
// by an older binary. The format below is a flat, explicit length-prefixed
// encoding: every field has a fixed tag position, unknown trailing fields are
// ignored on read, and the field order never depends on struct reflection.
package recordcodec

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// ErrTruncated indicates a record buffer ended before an expected field.
var ErrTruncated = errors.New("recordcodec: truncated record")

// Writer accumulates fields into a length-prefixed binary record.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty record writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// Bytes returns the encoded record.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// PutString writes a length-prefixed UTF-8 string.
func (w *Writer) PutString(s string) {
	w.PutBytes([]byte(s))
}

// PutBytes writes a length-prefixed byte slice.
func (w *Writer) PutBytes(b []byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	w.buf = append(w.buf, lenBuf[:n]...)
	w.buf = append(w.buf, b...)
}

// PutUint64 writes a fixed-width uint64 (used for timestamps, ordinals).
func (w *Writer) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutFloat32 writes a fixed-width float32 (used for edge weights, vectors).
func (w *Writer) PutFloat32(v float32) {
	w.PutUint64WithWidth(uint64(math.Float32bits(v)), 4)
}

// PutUint64WithWidth writes the low `width` bytes of v, little-endian.
func (w *Writer) PutUint64WithWidth(v uint64, width int) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:width]...)
}

// PutBool writes a single byte boolean.
func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// PutStringSlice writes a count-prefixed sequence of strings.
func (w *Writer) PutStringSlice(ss []string) {
	w.PutUint64(uint64(len(ss)))
	for _, s := range ss {
		w.PutString(s)
	}
}

// Reader walks a record written by Writer, field by field, in the same
// order it was written. Readers must match the writer's field order; the
// package does not self-describe field names.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps a record buffer for sequential reads.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining reports whether unread bytes remain (used to detect trailing
// fields added by a newer writer that this reader doesn't know about yet).
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) String() (string, error) {
	b, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) Bytes() ([]byte, error) {
	n, err := binary.ReadUvarint(byteReader{r})
	if err != nil {
		return nil, ErrTruncated
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *Reader) Uint64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *Reader) Float32() (float32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, ErrTruncated
	}
	var b [8]byte
	copy(b[:4], r.buf[r.pos:r.pos+4])
	r.pos += 4
	return math.Float32frombits(uint32(binary.LittleEndian.Uint64(b[:]))), nil
}

func (r *Reader) Bool() (bool, error) {
	if r.pos+1 > len(r.buf) {
		return false, ErrTruncated
	}
	v := r.buf[r.pos] != 0
	r.pos++
	return v, nil
}

func (r *Reader) StringSlice() ([]string, error) {
	n, err := r.Uint64()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		s, err := r.String()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// byteReader adapts Reader to io.ByteReader for binary.ReadUvarint.
type byteReader struct {
	r *Reader
}

func (b byteReader) ReadByte() (byte, error) {
	if b.r.pos >= len(b.r.buf) {
		return 0, io.EOF
	}
	c := b.r.buf[b.r.pos]
	b.r.pos++
	return c, nil
}
