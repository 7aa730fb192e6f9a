// Package bytebuf provides a bounds-checked read cursor over a byte slice.
package bytebuf

import (
	"encoding/binary"
	"errors"
)

// ErrTruncated is returned by every read that would run past the end of the
// underlying buffer. The cursor position is left unchanged on failure.
var ErrTruncated = errors.New("bytebuf: truncated input")

// Reader is a sequential read cursor. The zero value is an empty reader.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b without copying it.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Offset reports the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.pos
}

// Remaining reports the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Bytes returns the next n bytes as a subslice of the underlying buffer.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Rest returns all unread bytes without consuming them.
func (r *Reader) Rest() []byte {
	return r.buf[r.pos:]
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Uint16BE() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) Uint16LE() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) Uint32BE() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) Uint32LE() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Uint64BE() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) Uint64LE() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}
